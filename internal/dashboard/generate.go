// Package dashboard renders Grafana dashboards for the GreptimeDB tables
// the scheduler writes to.
package dashboard

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"droneops-scheduler/internal/record"
)

//go:embed templates/*.json.tmpl
var templates embed.FS

// Render executes every dashboard template and writes the results to
// outDir. Empty table names fall back to the writer defaults. Templates
// read the datasource UID through the env function, which fails on unset
// variables.
func Render(outDir string, tables record.GreptimeTables) error {
	funcMap := template.FuncMap{
		"env": func(key string) (string, error) {
			v := os.Getenv(key)
			if v == "" {
				return "", fmt.Errorf("environment variable %s not set", key)
			}
			return v, nil
		},
	}
	data := withDefaults(tables)

	names, err := templates.ReadDir("templates")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}
	for _, entry := range names {
		name := entry.Name()
		t, err := template.New(name).Funcs(funcMap).ParseFS(templates, "templates/"+name)
		if err != nil {
			return err
		}
		outPath := filepath.Join(outDir, strings.TrimSuffix(name, ".tmpl"))
		f, err := os.Create(outPath)
		if err != nil {
			return err
		}
		if err := t.Execute(f, data); err != nil {
			f.Close()
			return fmt.Errorf("render %s: %w", name, err)
		}
		if err := f.Close(); err != nil {
			return err
		}
	}
	return nil
}

func withDefaults(t record.GreptimeTables) record.GreptimeTables {
	d := record.DefaultGreptimeTables
	if t.Ticks == "" {
		t.Ticks = d.Ticks
	}
	if t.Events == "" {
		t.Events = d.Events
	}
	if t.Stats == "" {
		t.Stats = d.Stats
	}
	if t.Runs == "" {
		t.Runs = d.Runs
	}
	return t
}
