package record

import "errors"

// MultiWriter fans rows out to several writers. Each row kind goes only to
// the writers that implement the matching interface.
type MultiWriter struct {
	writers []TickWriter
}

// NewMultiWriter creates a MultiWriter. Nil writers are skipped.
func NewMultiWriter(ws ...TickWriter) *MultiWriter {
	mw := &MultiWriter{}
	for _, w := range ws {
		if w != nil {
			mw.writers = append(mw.writers, w)
		}
	}
	return mw
}

// Add appends a writer.
func (mw *MultiWriter) Add(w TickWriter) {
	if w != nil {
		mw.writers = append(mw.writers, w)
	}
}

// Len reports the number of writers.
func (mw *MultiWriter) Len() int { return len(mw.writers) }

// WriteTick sends a tick row to all writers. Every writer is attempted even
// when an earlier one fails.
func (mw *MultiWriter) WriteTick(row TickRow) error {
	var errs []error
	for _, w := range mw.writers {
		if err := w.WriteTick(row); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// WriteTicks sends multiple tick rows to all writers, using batch if supported.
func (mw *MultiWriter) WriteTicks(rows []TickRow) error {
	var errs []error
	for _, w := range mw.writers {
		if err := WriteTicks(w, rows); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// WriteEvent sends an event row to all event writers.
func (mw *MultiWriter) WriteEvent(row EventRow) error {
	var errs []error
	for _, w := range mw.writers {
		if ew, ok := w.(EventWriter); ok {
			if err := ew.WriteEvent(row); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// WriteStats sends a stats row to all stats writers.
func (mw *MultiWriter) WriteStats(row StatsRow) error {
	var errs []error
	for _, w := range mw.writers {
		if sw, ok := w.(StatsWriter); ok {
			if err := sw.WriteStats(row); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// WriteRun sends a run summary to all run writers.
func (mw *MultiWriter) WriteRun(row RunRow) error {
	var errs []error
	for _, w := range mw.writers {
		if rw, ok := w.(RunWriter); ok {
			if err := rw.WriteRun(row); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// SetAdminStatus forwards the admin UI state to writers that display it.
func (mw *MultiWriter) SetAdminStatus(active bool) {
	for _, w := range mw.writers {
		if s, ok := w.(interface{ SetAdminStatus(bool) }); ok {
			s.SetAdminStatus(active)
		}
	}
}
