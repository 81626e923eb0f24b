package record

import (
	"context"
	"errors"
	"testing"
	"time"

	gpb "github.com/GreptimeTeam/greptime-proto/go/greptime/v1"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"

	"droneops-scheduler/internal/logging"
)

type mockGreptimeClient struct {
	table *table.Table
	calls int
	err   error
}

func (m *mockGreptimeClient) Write(ctx context.Context, tables ...*table.Table) (*gpb.GreptimeResponse, error) {
	m.calls++
	if len(tables) > 0 {
		m.table = tables[0]
	}
	return &gpb.GreptimeResponse{}, m.err
}

func TestGreptimeWriterTicksJSON(t *testing.T) {
	m := &mockGreptimeClient{}
	w := newGreptimeDBWriter(m, GreptimeTables{}, logging.Discard())

	if err := w.WriteTicks([]TickRow{sampleTick(1), sampleTick(2)}); err != nil {
		t.Fatalf("WriteTicks: %v", err)
	}
	if m.calls != 1 || m.table == nil {
		t.Fatalf("expected one batched write, got %d", m.calls)
	}
	rows := m.table.GetRows()
	if len(rows.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows.Rows))
	}
	if rows.Schema[10].Datatype != gpb.ColumnDataType_JSON {
		t.Fatalf("launches column type = %v, want %v", rows.Schema[10].Datatype, gpb.ColumnDataType_JSON)
	}
	got := rows.Rows[0].Values[10].GetStringValue()
	want := `[{"DroneId":"d1","OrderIds":["o1"]}]`
	if got != want {
		t.Fatalf("launches = %s, want %s", got, want)
	}
	if id := rows.Rows[0].Values[0].GetStringValue(); id != "run-1" {
		t.Fatalf("run_id = %s", id)
	}
}

func TestGreptimeWriterEmptyBatch(t *testing.T) {
	m := &mockGreptimeClient{}
	w := newGreptimeDBWriter(m, GreptimeTables{}, logging.Discard())
	if err := w.WriteTicks(nil); err != nil {
		t.Fatalf("WriteTicks: %v", err)
	}
	if err := w.WriteStats(StatsRow{}); err != nil {
		t.Fatalf("WriteStats: %v", err)
	}
	if m.calls != 0 {
		t.Fatalf("empty input should not write, got %d calls", m.calls)
	}
}

func TestGreptimeWriterStatsAndRuns(t *testing.T) {
	m := &mockGreptimeClient{}
	w := newGreptimeDBWriter(m, GreptimeTables{Runs: "runs"}, logging.Discard())

	ts := time.Unix(10, 0).UTC()
	stats := StatsRow{RunID: "r", Scenario: 2, Timestamp: ts, Values: []StatValue{
		{Name: "late", Label: "Late", Value: 3},
		{Name: "ok", Label: "On time", Value: 9},
	}}
	if err := w.WriteStats(stats); err != nil {
		t.Fatalf("WriteStats: %v", err)
	}
	if got := m.table.GetRows().Rows[1].Values[1].GetStringValue(); got != "ok" {
		t.Fatalf("name = %s, want ok", got)
	}
	if got := m.table.GetRows().Rows[0].Values[4].GetStringValue(); got != "3" {
		t.Fatalf("value = %s, want 3", got)
	}

	run := RunRow{RunID: "r", EntryName: "team", Outcome: OutcomeCompleted, Ticks: 5, StartedAt: ts, EndedAt: ts.Add(time.Minute)}
	if err := w.WriteRun(run); err != nil {
		t.Fatalf("WriteRun: %v", err)
	}
	if got := m.table.GetRows().Rows[0].Values[5].GetStringValue(); got != "completed" {
		t.Fatalf("outcome = %s", got)
	}
	if got := m.table.GetRows().Rows[0].Values[8].GetI64Value(); got != 5 {
		t.Fatalf("ticks = %d", got)
	}
}

func TestGreptimeWriterPropagatesError(t *testing.T) {
	boom := errors.New("unavailable")
	m := &mockGreptimeClient{err: boom}
	w := newGreptimeDBWriter(m, GreptimeTables{}, logging.Discard())
	if err := w.WriteEvent(EventRow{RunID: "r", Type: EventChannel}); !errors.Is(err, boom) {
		t.Fatalf("expected client error, got %v", err)
	}
}
