package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"droneops-scheduler/internal/record"
)

func TestCollectorTicks(t *testing.T) {
	c, err := NewCollector(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}
	_ = c.WriteTick(record.TickRow{Pending: 4, Available: 2, Launched: 2, DecisionMicros: 1500})
	_ = c.WriteTick(record.TickRow{Pending: 1, Available: 0, Launched: 0, DeadlineMissed: true})

	if got := testutil.ToFloat64(c.Ticks); got != 2 {
		t.Fatalf("ticks = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.Launches); got != 2 {
		t.Fatalf("launches = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.DeadlineMisses); got != 1 {
		t.Fatalf("deadline misses = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.PendingOrders); got != 1 {
		t.Fatalf("pending gauge = %v, want latest value 1", got)
	}
	if got := testutil.ToFloat64(c.AvailableDrones); got != 0 {
		t.Fatalf("available gauge = %v, want 0", got)
	}
}

func TestCollectorEventsAndRuns(t *testing.T) {
	c, err := NewCollector(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}
	_ = c.WriteEvent(record.EventRow{Type: record.EventViolation})
	_ = c.WriteEvent(record.EventRow{Type: record.EventViolation})
	_ = c.WriteEvent(record.EventRow{Type: record.EventPhase})
	_ = c.WriteStats(record.StatsRow{})
	_ = c.WriteRun(record.RunRow{Outcome: record.OutcomeRejected})

	if got := testutil.ToFloat64(c.Events.WithLabelValues("violation")); got != 2 {
		t.Fatalf("violations = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.ScenarioRuns); got != 1 {
		t.Fatalf("scenario runs = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.Runs.WithLabelValues("rejected")); got != 1 {
		t.Fatalf("rejected runs = %v, want 1", got)
	}
}

func TestCollectorReRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	_ = first.WriteTick(record.TickRow{})
	if got := testutil.ToFloat64(second.Ticks); got != 1 {
		t.Fatalf("re-registered collector should share counters, got %v", got)
	}
}

func TestCollectorHandler(t *testing.T) {
	c, err := NewCollector(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}
	_ = c.WriteTick(record.TickRow{Launched: 3})

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "scheduler_launches_total 3") {
		t.Fatalf("metrics output missing launches: %s", body)
	}
}

func TestNilCollector(t *testing.T) {
	var c *Collector
	if err := c.WriteTick(record.TickRow{}); err != nil {
		t.Fatalf("nil collector should be a no-op: %v", err)
	}
	if c.Handler() == nil {
		t.Fatalf("nil collector should still serve the default gatherer")
	}
}
