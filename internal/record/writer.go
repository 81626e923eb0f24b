package record

// TickWriter handles decision rows. It is the one interface every writer
// implements; the others are optional and found by type assertion.
type TickWriter interface {
	WriteTick(TickRow) error
}

// Optional: writers may support batch mode for tick rows.
type batchTickWriter interface {
	WriteTicks([]TickRow) error
}

// EventWriter handles protocol lifecycle rows.
type EventWriter interface {
	WriteEvent(EventRow) error
}

// StatsWriter handles per-scenario stats rows.
type StatsWriter interface {
	WriteStats(StatsRow) error
}

// RunWriter handles end-of-run summaries.
type RunWriter interface {
	WriteRun(RunRow) error
}

// WriteTicks writes rows through w, in one batch when w supports it.
func WriteTicks(w TickWriter, rows []TickRow) error {
	if bw, ok := w.(batchTickWriter); ok {
		return bw.WriteTicks(rows)
	}
	for _, r := range rows {
		if err := w.WriteTick(r); err != nil {
			return err
		}
	}
	return nil
}
