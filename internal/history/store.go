// Package history keeps a SQLite record of finished runs and the stats of
// their scenarios.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"droneops-scheduler/internal/record"
)

// Store is a record writer backed by SQLite. It keeps run summaries and
// scenario stats; tick rows are left to the log and metrics writers.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			entry_name TEXT NOT NULL,
			track TEXT NOT NULL,
			dialect TEXT NOT NULL,
			planner TEXT NOT NULL,
			outcome TEXT NOT NULL,
			error TEXT NOT NULL,
			scenarios INTEGER NOT NULL,
			ticks INTEGER NOT NULL,
			launches INTEGER NOT NULL,
			violations INTEGER NOT NULL,
			deadline_misses INTEGER NOT NULL,
			started_at TEXT NOT NULL,
			ended_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS runs_started ON runs(started_at);`,
		`CREATE TABLE IF NOT EXISTS scenario_stats (
			run_id TEXT NOT NULL,
			scenario INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			name TEXT NOT NULL,
			label TEXT NOT NULL,
			value TEXT NOT NULL,
			recorded_at TEXT NOT NULL,
			PRIMARY KEY (run_id, scenario, seq)
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// WriteTick implements record.TickWriter. Ticks are not stored.
func (s *Store) WriteTick(record.TickRow) error { return nil }

// WriteStats stores the stats of one scenario.
func (s *Store) WriteStats(row record.StatsRow) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for i, v := range row.Values {
		val, err := json.Marshal(v.Value)
		if err != nil {
			return fmt.Errorf("encode stat %s: %w", v.Name, err)
		}
		if _, err := tx.Exec(`INSERT OR REPLACE INTO scenario_stats
			(run_id, scenario, seq, name, label, value, recorded_at) VALUES (?,?,?,?,?,?,?)`,
			row.RunID, row.Scenario, i, v.Name, v.Label, string(val), formatTime(row.Timestamp)); err != nil {
			return fmt.Errorf("insert stat: %w", err)
		}
	}
	return tx.Commit()
}

// WriteRun stores or replaces a run summary.
func (s *Store) WriteRun(row record.RunRow) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO runs
		(run_id, entry_name, track, dialect, planner, outcome, error, scenarios, ticks, launches, violations, deadline_misses, started_at, ended_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		row.RunID, row.EntryName, row.Track, row.Dialect, row.Planner, string(row.Outcome), row.Error,
		row.Scenarios, row.Ticks, row.Launches, row.Violations, row.DeadlineMisses,
		formatTime(row.StartedAt), formatTime(row.EndedAt))
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// Runs returns the most recent runs, newest first. A limit of zero or less
// returns all of them.
func (s *Store) Runs(ctx context.Context, limit int) ([]record.RunRow, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `SELECT run_id, entry_name, track, dialect, planner, outcome, error,
		scenarios, ticks, launches, violations, deadline_misses, started_at, ended_at
		FROM runs ORDER BY started_at DESC, run_id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []record.RunRow
	for rows.Next() {
		var (
			r              record.RunRow
			outcome        string
			started, ended string
		)
		if err := rows.Scan(&r.RunID, &r.EntryName, &r.Track, &r.Dialect, &r.Planner, &outcome, &r.Error,
			&r.Scenarios, &r.Ticks, &r.Launches, &r.Violations, &r.DeadlineMisses, &started, &ended); err != nil {
			return nil, err
		}
		r.Outcome = record.Outcome(outcome)
		r.StartedAt = parseTime(started)
		r.EndedAt = parseTime(ended)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Stats returns the stored scenario stats of a run in scenario order.
func (s *Store) Stats(ctx context.Context, runID string) ([]record.StatsRow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT scenario, name, label, value, recorded_at
		FROM scenario_stats WHERE run_id = ? ORDER BY scenario, seq`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []record.StatsRow
	for rows.Next() {
		var (
			scenario           int
			name, label, value string
			recorded           string
		)
		if err := rows.Scan(&scenario, &name, &label, &value, &recorded); err != nil {
			return nil, err
		}
		var v any
		if err := json.Unmarshal([]byte(value), &v); err != nil {
			return nil, fmt.Errorf("decode stat %s: %w", name, err)
		}
		if len(out) == 0 || out[len(out)-1].Scenario != scenario {
			out = append(out, record.StatsRow{RunID: runID, Scenario: scenario, Timestamp: parseTime(recorded)})
		}
		last := &out[len(out)-1]
		last.Values = append(last.Values, record.StatValue{Name: name, Label: label, Value: v, Display: true})
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// timeLayout is fixed width so stored times sort as text in time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
