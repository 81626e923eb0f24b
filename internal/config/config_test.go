package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scheduler.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

func TestLoadConfig_Valid(t *testing.T) {
	path := writeConfig(t, `
server_url_base: ws://localhost:5000
entry_name: team-x
track: competition
dialect: bare
planner: priority
tick_deadline: 250ms
logging:
  level: debug
  format: json
tracing:
  enabled: true
  sample_ratio: 0.5
`)
	cfg, err := Load(path, "")
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.EntryName != "team-x" || cfg.Dialect != "bare" || cfg.Planner != "priority" {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if cfg.TickDeadline != 250*time.Millisecond {
		t.Errorf("tick_deadline = %v", cfg.TickDeadline)
	}
	if cfg.HandshakeTimeout != 10*time.Second {
		t.Errorf("default handshake timeout lost: %v", cfg.HandshakeTimeout)
	}
	if !cfg.StrictSchema {
		t.Errorf("strict_schema default should survive an unrelated file")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !cfg.MultiRunEnabled() {
		t.Errorf("competition track should default to multi run")
	}
	if got := cfg.Endpoint(); got != "ws-competition" {
		t.Errorf("Endpoint() = %q", got)
	}
}

func TestLoadConfig_SchemaViolation(t *testing.T) {
	cases := map[string]string{
		"bad scheme":  "server_url_base: http://localhost:5000\n",
		"bad dialect": "server_url_base: ws://x\ndialect: xml\n",
		"bad ratio":   "tracing:\n  sample_ratio: 2\n",
		"unknown key": "server_url_base: ws://x\nspeed: 3\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, body), ""); err == nil {
				t.Fatalf("expected schema validation error")
			}
		})
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "none.yaml"), ""); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestValidateWithCue_ExternalSchema(t *testing.T) {
	dir := t.TempDir()
	schema := filepath.Join(dir, "schema.cue")
	if err := os.WriteFile(schema, []byte("#Config: {entry_name: string}\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := ValidateWithCue(writeConfig(t, "entry_name: a\n"), schema); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ValidateWithCue(writeConfig(t, "entry_name: 3\n"), schema); err == nil {
		t.Fatalf("expected type mismatch error")
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvServerURLBase: "wss://comp.example",
		EnvAuthToken:     "secret",
		EnvTickDeadline:  "1s",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
	cfg := Default()
	cfg.EntryName = "from-file"
	if err := cfg.ApplyEnv(lookup); err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if cfg.ServerURLBase != "wss://comp.example" || cfg.AuthToken != "secret" {
		t.Errorf("env not applied: %+v", cfg)
	}
	if cfg.EntryName != "from-file" {
		t.Errorf("unset env must not override entry name")
	}
	if cfg.TickDeadline != time.Second {
		t.Errorf("tick deadline = %v", cfg.TickDeadline)
	}

	env[EnvTickDeadline] = "soon"
	if err := cfg.ApplyEnv(lookup); err == nil {
		t.Fatalf("expected error for bad duration")
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		c := Default()
		c.ServerURLBase = "ws://localhost:5000"
		return c
	}
	if err := base().Validate(); err != nil {
		t.Fatalf("default with URL should validate: %v", err)
	}
	cases := map[string]func(*Config){
		"missing url": func(c *Config) { c.ServerURLBase = "" },
		"http url":    func(c *Config) { c.ServerURLBase = "http://x" },
		"track":       func(c *Config) { c.Track = "practice" },
		"dialect":     func(c *Config) { c.Dialect = "xml" },
		"planner":     func(c *Config) { c.Planner = "random" },
		"level":       func(c *Config) { c.Logging.Level = "loud" },
		"deadline":    func(c *Config) { c.TickDeadline = -time.Second },
		"tui+print":   func(c *Config) { c.Record.TUI, c.Record.PrintOnly = true, true },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := base()
			mutate(c)
			if err := c.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestMultiRunOverride(t *testing.T) {
	c := Default()
	if c.MultiRunEnabled() {
		t.Fatalf("testing track should default to single run")
	}
	on := true
	c.MultiRun = &on
	if !c.MultiRunEnabled() {
		t.Fatalf("explicit multi_run ignored")
	}
	if c.Endpoint() != "ws-testing" {
		t.Fatalf("Endpoint() = %q", c.Endpoint())
	}
}

func TestLogValueRedactsToken(t *testing.T) {
	c := Default()
	c.AuthToken = "hunter2"
	var sb strings.Builder
	l := slog.New(slog.NewTextHandler(&sb, nil))
	l.Info("config", "cfg", c)
	out := sb.String()
	if strings.Contains(out, "hunter2") {
		t.Fatalf("token leaked: %s", out)
	}
	if !strings.Contains(out, "[redacted]") {
		t.Fatalf("expected redaction marker: %s", out)
	}
}
