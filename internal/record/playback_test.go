package record

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

type collectWriter struct{ rows []TickRow }

func (c *collectWriter) WriteTick(r TickRow) error {
	c.rows = append(c.rows, r)
	return nil
}

func TestReplayLog(t *testing.T) {
	rows := []TickRow{sampleTick(1), sampleTick(2)}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, r := range rows {
		if err := enc.Encode(r); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	cw := &collectWriter{}
	if err := ReplayLog(&buf, cw, 0); err != nil {
		t.Fatalf("ReplayLog: %v", err)
	}
	if len(cw.rows) != len(rows) {
		t.Fatalf("expected %d rows, got %d", len(rows), len(cw.rows))
	}
	for i, r := range rows {
		if cw.rows[i].Tick != r.Tick {
			t.Fatalf("row %d mismatch: %+v vs %+v", i, cw.rows[i], r)
		}
	}
}

func TestReadTicksReportsLine(t *testing.T) {
	in := strings.NewReader("{\"tick\":1}\n\n{broken\n")
	err := ReadTicks(in, func(TickRow) error { return nil })
	if err == nil || !strings.Contains(err.Error(), "line 3") {
		t.Fatalf("expected line 3 error, got %v", err)
	}
}
