package record

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	gpb "github.com/GreptimeTeam/greptime-proto/go/greptime/v1"
	greptime "github.com/GreptimeTeam/greptimedb-ingester-go"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table/types"
)

// greptimeClient is the subset of the ingester client used by the writer.
type greptimeClient interface {
	Write(ctx context.Context, tables ...*table.Table) (*gpb.GreptimeResponse, error)
}

// GreptimeTables names the tables rows are written to.
type GreptimeTables struct {
	Ticks  string
	Events string
	Stats  string
	Runs   string
}

// DefaultGreptimeTables are used for empty table names.
var DefaultGreptimeTables = GreptimeTables{
	Ticks:  "scheduler_ticks",
	Events: "scheduler_events",
	Stats:  "scheduler_stats",
	Runs:   "scheduler_runs",
}

// GreptimeDBWriter writes rows to GreptimeDB via the ingester client.
// Tables are created on first write.
type GreptimeDBWriter struct {
	client  greptimeClient
	tables  GreptimeTables
	timeout time.Duration
	log     *slog.Logger
}

// NewGreptimeDBWriter connects to endpoint ("host" or "host:port").
func NewGreptimeDBWriter(endpoint, database string, tables GreptimeTables, log *slog.Logger) (*GreptimeDBWriter, error) {
	host, port := endpoint, 0
	if h, p, err := net.SplitHostPort(endpoint); err == nil {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("greptime endpoint %q: %w", endpoint, err)
		}
		host, port = h, n
	}
	cfg := greptime.NewConfig(host).WithDatabase(database)
	if port != 0 {
		cfg = cfg.WithPort(port)
	}
	client, err := greptime.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("greptime client: %w", err)
	}
	return newGreptimeDBWriter(client, tables, log), nil
}

func newGreptimeDBWriter(client greptimeClient, tables GreptimeTables, log *slog.Logger) *GreptimeDBWriter {
	if tables.Ticks == "" {
		tables.Ticks = DefaultGreptimeTables.Ticks
	}
	if tables.Events == "" {
		tables.Events = DefaultGreptimeTables.Events
	}
	if tables.Stats == "" {
		tables.Stats = DefaultGreptimeTables.Stats
	}
	if tables.Runs == "" {
		tables.Runs = DefaultGreptimeTables.Runs
	}
	if log == nil {
		log = slog.Default()
	}
	return &GreptimeDBWriter{client: client, tables: tables, timeout: 5 * time.Second, log: log}
}

func (w *GreptimeDBWriter) write(name string, tbl *table.Table, rows int) error {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()
	if _, err := w.client.Write(ctx, tbl); err != nil {
		w.log.Error("greptime write failed", "table", name, "err", err)
		return err
	}
	w.log.Debug("greptime write", "table", name, "rows", rows)
	return nil
}

type columnKind int

const (
	tagColumn columnKind = iota
	fieldColumn
	timeIndex
)

type column struct {
	name string
	kind columnKind
	typ  types.ColumnType
}

func newTable(name string, cols []column) (*table.Table, error) {
	tbl, err := table.New(name)
	if err != nil {
		return nil, err
	}
	for _, c := range cols {
		switch c.kind {
		case tagColumn:
			err = tbl.AddTagColumn(c.name, c.typ)
		case fieldColumn:
			err = tbl.AddFieldColumn(c.name, c.typ)
		case timeIndex:
			err = tbl.AddTimestampColumn(c.name, c.typ)
		}
		if err != nil {
			return nil, fmt.Errorf("table %s column %s: %w", name, c.name, err)
		}
	}
	return tbl, nil
}

var tickColumns = []column{
	{"run_id", tagColumn, types.STRING},
	{"entry_name", tagColumn, types.STRING},
	{"scenario", fieldColumn, types.INT64},
	{"tick", fieldColumn, types.INT64},
	{"time_of_day", fieldColumn, types.INT64},
	{"pending", fieldColumn, types.INT64},
	{"available", fieldColumn, types.INT64},
	{"launched", fieldColumn, types.INT64},
	{"decision_us", fieldColumn, types.INT64},
	{"deadline_missed", fieldColumn, types.BOOLEAN},
	{"launches", fieldColumn, types.JSON},
	{"ts", timeIndex, types.TIMESTAMP_MILLISECOND},
}

var eventColumns = []column{
	{"run_id", tagColumn, types.STRING},
	{"type", tagColumn, types.STRING},
	{"phase", fieldColumn, types.STRING},
	{"kind", fieldColumn, types.STRING},
	{"message", fieldColumn, types.STRING},
	{"ts", timeIndex, types.TIMESTAMP_MILLISECOND},
}

var statsColumns = []column{
	{"run_id", tagColumn, types.STRING},
	{"name", tagColumn, types.STRING},
	{"scenario", fieldColumn, types.INT64},
	{"label", fieldColumn, types.STRING},
	{"value", fieldColumn, types.JSON},
	{"ts", timeIndex, types.TIMESTAMP_MILLISECOND},
}

var runColumns = []column{
	{"run_id", tagColumn, types.STRING},
	{"entry_name", tagColumn, types.STRING},
	{"track", fieldColumn, types.STRING},
	{"dialect", fieldColumn, types.STRING},
	{"planner", fieldColumn, types.STRING},
	{"outcome", fieldColumn, types.STRING},
	{"error", fieldColumn, types.STRING},
	{"scenarios", fieldColumn, types.INT64},
	{"ticks", fieldColumn, types.INT64},
	{"launches", fieldColumn, types.INT64},
	{"violations", fieldColumn, types.INT64},
	{"deadline_misses", fieldColumn, types.INT64},
	{"started_at", fieldColumn, types.TIMESTAMP_MILLISECOND},
	{"ts", timeIndex, types.TIMESTAMP_MILLISECOND},
}

// WriteTick inserts a single tick row.
func (w *GreptimeDBWriter) WriteTick(row TickRow) error {
	return w.WriteTicks([]TickRow{row})
}

// WriteTicks inserts multiple tick rows.
func (w *GreptimeDBWriter) WriteTicks(rows []TickRow) error {
	if len(rows) == 0 {
		return nil
	}
	tbl, err := newTable(w.tables.Ticks, tickColumns)
	if err != nil {
		return err
	}
	for _, r := range rows {
		launches, err := json.Marshal(r.Launches)
		if err != nil {
			return err
		}
		if err := tbl.AddRow(r.RunID, r.EntryName, int64(r.Scenario), int64(r.Tick), int64(r.TimeOfDay),
			int64(r.Pending), int64(r.Available), int64(r.Launched), r.DecisionMicros, r.DeadlineMissed,
			string(launches), r.Timestamp); err != nil {
			return err
		}
	}
	return w.write(w.tables.Ticks, tbl, len(rows))
}

// WriteEvent inserts a lifecycle event.
func (w *GreptimeDBWriter) WriteEvent(row EventRow) error {
	tbl, err := newTable(w.tables.Events, eventColumns)
	if err != nil {
		return err
	}
	if err := tbl.AddRow(row.RunID, string(row.Type), row.Phase, row.Kind, row.Message, row.Timestamp); err != nil {
		return err
	}
	return w.write(w.tables.Events, tbl, 1)
}

// WriteStats inserts one row per stat value. Values are stored as JSON.
func (w *GreptimeDBWriter) WriteStats(row StatsRow) error {
	if len(row.Values) == 0 {
		return nil
	}
	tbl, err := newTable(w.tables.Stats, statsColumns)
	if err != nil {
		return err
	}
	for _, v := range row.Values {
		b, err := json.Marshal(v.Value)
		if err != nil {
			return err
		}
		if err := tbl.AddRow(row.RunID, v.Name, int64(row.Scenario), v.Label, string(b), row.Timestamp); err != nil {
			return err
		}
	}
	return w.write(w.tables.Stats, tbl, len(row.Values))
}

// WriteRun inserts the run summary.
func (w *GreptimeDBWriter) WriteRun(row RunRow) error {
	tbl, err := newTable(w.tables.Runs, runColumns)
	if err != nil {
		return err
	}
	if err := tbl.AddRow(row.RunID, row.EntryName, row.Track, row.Dialect, row.Planner, string(row.Outcome), row.Error,
		int64(row.Scenarios), int64(row.Ticks), int64(row.Launches), int64(row.Violations), int64(row.DeadlineMisses),
		row.StartedAt, row.EndedAt); err != nil {
		return err
	}
	return w.write(w.tables.Runs, tbl, 1)
}
