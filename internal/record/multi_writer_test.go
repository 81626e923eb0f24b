package record

import (
	"errors"
	"testing"
)

type tickOnly struct{ ticks int }

func (w *tickOnly) WriteTick(TickRow) error { w.ticks++; return nil }

type allKinds struct {
	ticks, events, stats, runs int
	err                        error
}

func (w *allKinds) WriteTick(TickRow) error   { w.ticks++; return w.err }
func (w *allKinds) WriteEvent(EventRow) error { w.events++; return w.err }
func (w *allKinds) WriteStats(StatsRow) error { w.stats++; return w.err }
func (w *allKinds) WriteRun(RunRow) error     { w.runs++; return w.err }

type batchOnly struct {
	tickOnly
	batches int
}

func (w *batchOnly) WriteTicks(rows []TickRow) error { w.batches++; return nil }

func TestMultiWriterFanOut(t *testing.T) {
	a, b := &tickOnly{}, &allKinds{}
	mw := NewMultiWriter(a, nil, b)
	if mw.Len() != 2 {
		t.Fatalf("nil writer should be skipped, got %d writers", mw.Len())
	}
	_ = mw.WriteTick(TickRow{})
	_ = mw.WriteEvent(EventRow{})
	_ = mw.WriteStats(StatsRow{})
	_ = mw.WriteRun(RunRow{})
	if a.ticks != 1 || b.ticks != 1 || b.events != 1 || b.stats != 1 || b.runs != 1 {
		t.Fatalf("unexpected counts a=%+v b=%+v", a, b)
	}
}

func TestMultiWriterContinuesAfterError(t *testing.T) {
	boom := errors.New("boom")
	failing, ok := &allKinds{err: boom}, &allKinds{}
	mw := NewMultiWriter(failing, ok)
	if err := mw.WriteEvent(EventRow{}); !errors.Is(err, boom) {
		t.Fatalf("expected joined error, got %v", err)
	}
	if ok.events != 1 {
		t.Fatalf("second writer not attempted")
	}
}

func TestMultiWriterBatch(t *testing.T) {
	bw, plain := &batchOnly{}, &tickOnly{}
	mw := NewMultiWriter(bw, plain)
	if err := mw.WriteTicks([]TickRow{{}, {}, {}}); err != nil {
		t.Fatalf("WriteTicks: %v", err)
	}
	if bw.batches != 1 || bw.ticks != 0 {
		t.Fatalf("batch writer should get one batch, got %+v", bw)
	}
	if plain.ticks != 3 {
		t.Fatalf("plain writer should get 3 rows, got %d", plain.ticks)
	}
}

type adminAware struct {
	tickOnly
	active bool
}

func (w *adminAware) SetAdminStatus(active bool) { w.active = active }

func TestMultiWriterSetAdminStatus(t *testing.T) {
	a := &adminAware{}
	mw := NewMultiWriter(&tickOnly{})
	mw.Add(a)
	mw.SetAdminStatus(true)
	if !a.active {
		t.Fatalf("admin status not forwarded")
	}
}
