package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"droneops-scheduler/internal/admin"
	"droneops-scheduler/internal/channel"
	"droneops-scheduler/internal/config"
	"droneops-scheduler/internal/history"
	"droneops-scheduler/internal/logging"
	"droneops-scheduler/internal/metrics"
	"droneops-scheduler/internal/planner"
	"droneops-scheduler/internal/protocol"
	"droneops-scheduler/internal/record"
	"droneops-scheduler/internal/session"
	"droneops-scheduler/internal/tracing"
)

var (
	runConfigPath   string
	runSchemaPath   string
	runServerURL    string
	runEntryName    string
	runAuthToken    string
	runCompMode     bool
	runMultiRun     bool
	runDialect      string
	runPlanner      string
	runTickDeadline time.Duration
	runLogFile      string
	runPrintOnly    bool
	runTUI          bool
	runAdminAddr    string
	runHistoryDB    string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Connect to the competition server and play one run",
	Long:  "run performs the handshake, receives scenarios and answers every decision request with a launch plan until the server ends the run.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		log, err := logging.NewWithOptions(logging.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		ctx = logging.NewContext(ctx, log)

		shutdownTracing, err := tracing.Init(ctx, tracing.Config{
			Enabled:     cfg.Tracing.Enabled,
			ServiceName: "droneops-scheduler",
			Exporter:    cfg.Tracing.Exporter,
			Endpoint:    cfg.Tracing.Endpoint,
			SampleRatio: cfg.Tracing.SampleRatio,
		}, log)
		if err != nil {
			return err
		}
		defer tracing.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

		dialect, err := protocol.ParseDialect(cfg.Dialect)
		if err != nil {
			return err
		}
		codec, err := protocol.NewCodec(dialect, cfg.StrictSchema)
		if err != nil {
			return err
		}
		pl, err := planner.ByName(cfg.Planner)
		if err != nil {
			return err
		}

		url := channel.BuildURL(cfg.ServerURLBase, cfg.Endpoint())
		ov := &record.Overview{EntryName: cfg.EntryName, Track: cfg.Track, Dialect: cfg.Dialect, Planner: cfg.Planner, URL: url}
		base, cleanup, err := newWriters(cfg.Record, ov, log)
		if err != nil {
			return err
		}
		defer cleanup()

		collector, err := metrics.NewCollector(nil)
		if err != nil {
			return err
		}
		mw := record.NewMultiWriter(base, collector)
		var runs admin.RunLister
		if cfg.History.Path != "" {
			store, err := history.Open(cfg.History.Path)
			if err != nil {
				return fmt.Errorf("open history: %w", err)
			}
			defer store.Close()
			mw.Add(store)
			runs = store
		}

		log.Info("connecting", "url", url, "config", cfg)
		conn, err := channel.Dial(ctx, url, channel.Options{
			Codec:            codec,
			HandshakeTimeout: cfg.HandshakeTimeout,
			WriteTimeout:     cfg.WriteTimeout,
			Compression:      cfg.Compression,
		})
		if err != nil {
			return fmt.Errorf("connect %s: %w", url, err)
		}
		defer conn.Close("shutdown")

		machine := session.NewMachine(conn, session.Options{
			AuthToken:    cfg.AuthToken,
			EntryName:    cfg.EntryName,
			Planner:      pl,
			MultiRun:     cfg.MultiRunEnabled(),
			TickDeadline: cfg.TickDeadline,
			Writer:       mw,
			Logger:       log,
			Track:        cfg.Track,
			Dialect:      cfg.Dialect,
			PlannerName:  cfg.Planner,
		})

		if cfg.Admin.Addr != "" {
			adminCtx, cancelAdmin := context.WithCancel(ctx)
			defer cancelAdmin()
			srv := admin.NewServer(machine, collector.Handler(), runs, log)
			go func() {
				log.Info("admin UI listening", "addr", cfg.Admin.Addr)
				mw.SetAdminStatus(true)
				if err := srv.Start(adminCtx, cfg.Admin.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("admin server failed", "err", err)
				}
				mw.SetAdminStatus(false)
			}()
		}

		if err := session.Run(ctx, conn, machine); err != nil {
			return fmt.Errorf("run %s: %w", machine.RunID(), err)
		}
		st := machine.Status()
		log.Info("run finished", "run_id", st.RunID, "scenarios", st.Scenarios, "ticks", st.Ticks, "launches", st.Launches)
		return nil
	},
}

// loadConfig layers the config file, env variables and flags, in that
// order, over the defaults.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Default()
	if runConfigPath != "" {
		loaded, err := config.Load(runConfigPath, runSchemaPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	applyFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// applyFlags copies explicitly set flags into cfg.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("server-url-base") {
		cfg.ServerURLBase = runServerURL
	}
	if flags.Changed("entry-name") {
		cfg.EntryName = runEntryName
	}
	if flags.Changed("auth-token") {
		cfg.AuthToken = runAuthToken
	}
	if flags.Changed("comp-mode") {
		cfg.Track = config.TrackTesting
		if runCompMode {
			cfg.Track = config.TrackCompetition
		}
	}
	if flags.Changed("multi-run") {
		v := runMultiRun
		cfg.MultiRun = &v
	}
	if flags.Changed("dialect") {
		cfg.Dialect = runDialect
	}
	if flags.Changed("planner") {
		cfg.Planner = runPlanner
	}
	if flags.Changed("tick-deadline") {
		cfg.TickDeadline = runTickDeadline
	}
	if flags.Changed("log-file") {
		cfg.Record.LogFile = runLogFile
	}
	if flags.Changed("print-only") {
		cfg.Record.PrintOnly = runPrintOnly
	}
	if flags.Changed("tui") {
		cfg.Record.TUI = runTUI
	}
	if flags.Changed("admin-addr") {
		cfg.Admin.Addr = runAdminAddr
	}
	if flags.Changed("history-db") {
		cfg.History.Path = runHistoryDB
	}
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&runConfigPath, "config", "", "Path to scheduler configuration YAML")
	f.StringVar(&runSchemaPath, "schema", "", "Path to CUE schema file (embedded schema when empty)")
	f.StringVar(&runServerURL, "server-url-base", "", "Server base URL, e.g. ws://localhost:5000")
	f.StringVar(&runEntryName, "entry-name", "", "Entry name sent in the handshake")
	f.StringVar(&runAuthToken, "auth-token", "", "Auth token sent in the handshake")
	f.BoolVar(&runCompMode, "comp-mode", false, "Use the competition track instead of testing")
	f.BoolVar(&runMultiRun, "multi-run", false, "Wait for further scenarios after stats arrive")
	f.StringVar(&runDialect, "dialect", "", "Wire dialect: tagged or bare")
	f.StringVar(&runPlanner, "planner", "", "Planner policy: greedy or priority")
	f.DurationVar(&runTickDeadline, "tick-deadline", 0, "Per-tick decision deadline (e.g. 200ms); server timeout when zero")
	f.StringVar(&runLogFile, "log-file", "", "Path to export tick/event/run logs (JSONL, .zst to compress)")
	f.BoolVar(&runPrintOnly, "print-only", false, "Print records to STDOUT instead of writing to DB")
	f.BoolVar(&runTUI, "tui", false, "Show a live terminal dashboard")
	f.StringVar(&runAdminAddr, "admin-addr", "", "Serve the status page and metrics on this address, e.g. :8080")
	f.StringVar(&runHistoryDB, "history-db", "", "SQLite file to record finished runs in")
}
