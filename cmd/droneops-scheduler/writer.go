package main

import (
	"log/slog"
	"os"

	"droneops-scheduler/internal/config"
	"droneops-scheduler/internal/record"
)

// Env variables selecting the GreptimeDB sink.
const (
	envGreptimeEndpoint = "GREPTIMEDB_ENDPOINT"
	envGreptimeDatabase = "GREPTIMEDB_DATABASE"
	envTickTable        = "GREPTIMEDB_TICK_TABLE"
	envEventTable       = "GREPTIMEDB_EVENT_TABLE"
	envStatsTable       = "GREPTIMEDB_STATS_TABLE"
	envRunTable         = "GREPTIMEDB_RUN_TABLE"
)

// newWriters sets up the record writers based on config and env vars.
// It returns the writer and a cleanup function to close any resources.
func newWriters(rc config.RecordConfig, ov *record.Overview, log *slog.Logger) (record.TickWriter, func(), error) {
	var closers []func() error
	cleanup := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				log.Warn("closing writer failed", "err", err)
			}
		}
	}

	var writers []record.TickWriter
	display, closeDisplay := displayWriter(rc, ov)
	if closeDisplay != nil {
		closers = append(closers, closeDisplay)
	}
	base, err := baseWriter(rc.PrintOnly, display, log)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	writers = append(writers, base)
	if rc.TUI && base != display {
		writers = append(writers, display)
	}

	if rc.LogFile != "" {
		fw, err := record.NewFileWriter(record.FilePathsFor(rc.LogFile))
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		closers = append(closers, fw.Close)
		writers = append(writers, fw)
	}

	if len(writers) == 1 {
		return writers[0], cleanup, nil
	}
	return record.NewMultiWriter(writers...), cleanup, nil
}

// displayWriter returns the terminal writer: the TUI when enabled,
// otherwise colored or JSON STDOUT output.
func displayWriter(rc config.RecordConfig, ov *record.Overview) (record.TickWriter, func() error) {
	if rc.TUI {
		tw := record.NewTUIWriter(ov)
		return tw, tw.Close
	}
	return record.NewStdoutWriter(ov), nil
}

// baseWriter chooses GreptimeDB when configured through env vars and not
// in print-only mode, and the display writer otherwise.
func baseWriter(printOnly bool, display record.TickWriter, log *slog.Logger) (record.TickWriter, error) {
	endpoint := os.Getenv(envGreptimeEndpoint)
	if printOnly || endpoint == "" {
		return display, nil
	}
	database := os.Getenv(envGreptimeDatabase)
	if database == "" {
		database = "public"
	}
	log.Info("writing records to GreptimeDB", "endpoint", endpoint, "database", database)
	return record.NewGreptimeDBWriter(endpoint, database, greptimeTablesFromEnv(), log)
}

// greptimeTablesFromEnv reads table name overrides. Unset names keep the
// writer defaults.
func greptimeTablesFromEnv() record.GreptimeTables {
	return record.GreptimeTables{
		Ticks:  os.Getenv(envTickTable),
		Events: os.Getenv(envEventTable),
		Stats:  os.Getenv(envStatsTable),
		Runs:   os.Getenv(envRunTable),
	}
}
