// YAML config loader with CUE validation integration
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"droneops-scheduler/internal/logging"
	"droneops-scheduler/internal/planner"
	"droneops-scheduler/internal/protocol"
)

// Run tracks exposed by the competition server.
const (
	TrackTesting     = "testing"
	TrackCompetition = "competition"
)

// LoggingConfig selects log level and handler format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// RecordConfig controls where tick and run rows are written.
type RecordConfig struct {
	LogFile   string `yaml:"log_file"`
	PrintOnly bool   `yaml:"print_only"`
	TUI       bool   `yaml:"tui"`
}

// AdminConfig controls the status HTTP server. An empty Addr disables it.
type AdminConfig struct {
	Addr string `yaml:"addr"`
}

// HistoryConfig points at the SQLite run history. An empty Path disables it.
type HistoryConfig struct {
	Path string `yaml:"path"`
}

// TracingConfig governs decision tracing.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Exporter    string  `yaml:"exporter"`
	Endpoint    string  `yaml:"endpoint"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// Config is the root configuration of a scheduler run.
type Config struct {
	ServerURLBase string `yaml:"server_url_base"`
	EntryName     string `yaml:"entry_name"`
	AuthToken     string `yaml:"auth_token"`
	Track         string `yaml:"track"`
	Dialect       string `yaml:"dialect"`
	StrictSchema  bool   `yaml:"strict_schema"`
	Planner       string `yaml:"planner"`
	// MultiRun keeps the connection open for further scenarios after
	// EndScenarioRun. It defaults to on for the competition track.
	MultiRun *bool `yaml:"multi_run"`

	TickDeadline     time.Duration `yaml:"tick_deadline"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	Compression      bool          `yaml:"compression"`

	Logging LoggingConfig `yaml:"logging"`
	Record  RecordConfig  `yaml:"record"`
	Admin   AdminConfig   `yaml:"admin"`
	History HistoryConfig `yaml:"history"`
	Tracing TracingConfig `yaml:"tracing"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		EntryName:        "droneops-scheduler",
		Track:            TrackTesting,
		Dialect:          string(protocol.DialectTagged),
		StrictSchema:     true,
		Planner:          planner.PolicyGreedy,
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		Logging:          LoggingConfig{Level: "info", Format: "text"},
		Tracing:          TracingConfig{Exporter: "stdout", SampleRatio: 1},
	}
}

// Load reads a YAML config on top of Default and validates it against a
// CUE schema. An empty schemaPath uses the embedded schema.
func Load(configPath, cueSchemaPath string) (*Config, error) {
	if err := ValidateWithCue(configPath, cueSchemaPath); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Env variable names read by ApplyEnv.
const (
	EnvServerURLBase = "DRONEOPS_SERVER_URL_BASE"
	EnvEntryName     = "DRONEOPS_ENTRY_NAME"
	EnvAuthToken     = "DRONEOPS_AUTH_TOKEN"
	EnvTickDeadline  = "DRONEOPS_TICK_DEADLINE"
)

// ApplyEnv overrides fields from environment variables. lookup is usually
// os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvServerURLBase); ok && v != "" {
		c.ServerURLBase = v
	}
	if v, ok := lookup(EnvEntryName); ok && v != "" {
		c.EntryName = v
	}
	if v, ok := lookup(EnvAuthToken); ok && v != "" {
		c.AuthToken = v
	}
	if v, ok := lookup(EnvTickDeadline); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvTickDeadline, err)
		}
		c.TickDeadline = d
	}
	return nil
}

// Validate checks values the CUE schema cannot, including those set by env
// variables and flags after loading.
func (c *Config) Validate() error {
	if c.ServerURLBase == "" {
		return fmt.Errorf("server_url_base is required")
	}
	u, err := url.Parse(c.ServerURLBase)
	if err != nil {
		return fmt.Errorf("server_url_base: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("server_url_base must be a ws:// or wss:// URL, got %q", c.ServerURLBase)
	}
	switch c.Track {
	case TrackTesting, TrackCompetition:
	default:
		return fmt.Errorf("unknown track %q", c.Track)
	}
	if _, err := protocol.ParseDialect(c.Dialect); err != nil {
		return err
	}
	if _, err := planner.ByName(c.Planner); err != nil {
		return err
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	if c.TickDeadline < 0 {
		return fmt.Errorf("tick_deadline must not be negative")
	}
	if c.Record.TUI && c.Record.PrintOnly {
		return fmt.Errorf("record.tui and record.print_only are mutually exclusive")
	}
	return nil
}

// Endpoint returns the server path for the configured track.
func (c *Config) Endpoint() string {
	if c.Track == TrackCompetition {
		return protocol.EndpointCompetition
	}
	return protocol.EndpointTesting
}

// MultiRunEnabled reports whether the client should wait for another
// scenario after the stats of one arrive.
func (c *Config) MultiRunEnabled() bool {
	if c.MultiRun != nil {
		return *c.MultiRun
	}
	return c.Track == TrackCompetition
}

// LogValue implements slog.LogValuer and keeps the auth token out of logs.
func (c *Config) LogValue() slog.Value {
	token := ""
	if c.AuthToken != "" {
		token = "[redacted]"
	}
	return slog.GroupValue(
		slog.String("server_url_base", c.ServerURLBase),
		slog.String("entry_name", c.EntryName),
		slog.String("auth_token", token),
		slog.String("track", c.Track),
		slog.String("dialect", c.Dialect),
		slog.Bool("strict_schema", c.StrictSchema),
		slog.String("planner", c.Planner),
		slog.Bool("multi_run", c.MultiRunEnabled()),
		slog.Duration("tick_deadline", c.TickDeadline),
	)
}

