package history

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"droneops-scheduler/internal/record"
)

func openTemp(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nested", "history.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func TestStoreRuns(t *testing.T) {
	s, _ := openTemp(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		row := record.RunRow{
			RunID:     id,
			EntryName: "team",
			Track:     "testing",
			Dialect:   "tagged",
			Planner:   "greedy",
			Outcome:   record.OutcomeCompleted,
			Ticks:     10 * (i + 1),
			StartedAt: base.Add(time.Duration(i) * time.Minute),
			EndedAt:   base.Add(time.Duration(i)*time.Minute + 30*time.Second),
		}
		if err := s.WriteRun(row); err != nil {
			t.Fatalf("WriteRun: %v", err)
		}
	}
	// Replacing a run keeps one row.
	if err := s.WriteRun(record.RunRow{RunID: "a", Outcome: record.OutcomeChannelClosed, Error: "dropped", StartedAt: base}); err != nil {
		t.Fatalf("WriteRun replace: %v", err)
	}

	runs, err := s.Runs(context.Background(), 2)
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(runs) != 2 || runs[0].RunID != "c" || runs[1].RunID != "b" {
		t.Fatalf("unexpected order %+v", runs)
	}
	if runs[0].Ticks != 30 || !runs[0].StartedAt.Equal(base.Add(2*time.Minute)) {
		t.Fatalf("row not round-tripped: %+v", runs[0])
	}

	all, err := s.Runs(context.Background(), 0)
	if err != nil {
		t.Fatalf("Runs all: %v", err)
	}
	if len(all) != 3 || all[2].Outcome != record.OutcomeChannelClosed || all[2].Error != "dropped" {
		t.Fatalf("unexpected runs %+v", all)
	}
}

func TestStoreRunsSubSecondOrder(t *testing.T) {
	s, _ := openTemp(t)
	base := time.Date(2026, 3, 1, 12, 0, 5, 0, time.UTC)
	starts := map[string]time.Time{
		"whole":   base,
		"half":    base.Add(500 * time.Millisecond),
		"tenth":   base.Add(1100 * time.Millisecond),
		"twelfth": base.Add(1120 * time.Millisecond),
	}
	for id, at := range starts {
		if err := s.WriteRun(record.RunRow{RunID: id, Outcome: record.OutcomeCompleted, StartedAt: at, EndedAt: at}); err != nil {
			t.Fatalf("WriteRun: %v", err)
		}
	}
	runs, err := s.Runs(context.Background(), 0)
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	want := []string{"twelfth", "tenth", "half", "whole"}
	if len(runs) != len(want) {
		t.Fatalf("got %d runs", len(runs))
	}
	for i, id := range want {
		if runs[i].RunID != id {
			t.Fatalf("run %d = %s, want %s", i, runs[i].RunID, id)
		}
		if !runs[i].StartedAt.Equal(starts[id]) {
			t.Fatalf("%s started_at = %v", id, runs[i].StartedAt)
		}
	}
}

func TestStoreStats(t *testing.T) {
	s, path := openTemp(t)
	ts := time.Unix(100, 0).UTC()
	for sc := 1; sc <= 2; sc++ {
		row := record.StatsRow{RunID: "r", Scenario: sc, Timestamp: ts, Values: []record.StatValue{
			{Name: "late", Label: "Late", Value: sc},
			{Name: "note", Label: "Note", Value: "ok"},
		}}
		if err := s.WriteStats(row); err != nil {
			t.Fatalf("WriteStats: %v", err)
		}
	}
	stats, err := s.Stats(context.Background(), "r")
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if len(stats) != 2 || len(stats[1].Values) != 2 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if stats[1].Values[0].Value != float64(2) || stats[1].Values[1].Value != "ok" || stats[0].Values[0].Label != "Late" {
		t.Fatalf("values not decoded: %+v", stats[1].Values)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer db.Close()
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM scenario_stats WHERE run_id='r'`).Scan(&n); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if n != 4 {
		t.Fatalf("stored %d stat rows, want 4", n)
	}
}

func TestOpenEmptyPath(t *testing.T) {
	if _, err := Open(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
}
