// Package metrics exposes scheduler activity as Prometheus metrics. The
// Collector is fed through the record writer interfaces so it can sit in
// the same fan-out as the log and database writers.
package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"droneops-scheduler/internal/record"
)

// Collector bundles the scheduler's Prometheus metrics.
type Collector struct {
	gatherer prometheus.Gatherer

	Ticks            prometheus.Counter
	Launches         prometheus.Counter
	DeadlineMisses   prometheus.Counter
	DecisionDuration prometheus.Histogram
	PendingOrders    prometheus.Gauge
	AvailableDrones  prometheus.Gauge
	ScenarioRuns     prometheus.Counter
	Events           *prometheus.CounterVec
	Runs             *prometheus.CounterVec
}

// NewCollector registers the metrics against reg, defaulting to the global
// Prometheus registry when nil. Registering twice reuses the existing
// collectors.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}
	c := &Collector{gatherer: gatherer}

	var err error
	if c.Ticks, err = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scheduler_ticks_total",
		Help: "Decision requests answered.",
	}), "scheduler_ticks_total"); err != nil {
		return nil, err
	}
	if c.Launches, err = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scheduler_launches_total",
		Help: "Drone launches sent to the server.",
	}), "scheduler_launches_total"); err != nil {
		return nil, err
	}
	if c.DeadlineMisses, err = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scheduler_deadline_missed_total",
		Help: "Decisions that took longer than the per-tick deadline.",
	}), "scheduler_deadline_missed_total"); err != nil {
		return nil, err
	}
	if c.DecisionDuration, err = registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "scheduler_decision_duration_seconds",
		Help:    "Time spent planning one tick.",
		Buckets: []float64{0.00001, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}), "scheduler_decision_duration_seconds"); err != nil {
		return nil, err
	}
	if c.PendingOrders, err = registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "scheduler_pending_orders",
		Help: "Pending orders in the latest decision request.",
	}), "scheduler_pending_orders"); err != nil {
		return nil, err
	}
	if c.AvailableDrones, err = registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "scheduler_available_drones",
		Help: "Available drones in the latest decision request.",
	}), "scheduler_available_drones"); err != nil {
		return nil, err
	}
	if c.ScenarioRuns, err = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scheduler_scenario_runs_total",
		Help: "Scenario runs that ended with stats.",
	}), "scheduler_scenario_runs_total"); err != nil {
		return nil, err
	}
	if c.Events, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduler_events_total",
		Help: "Protocol lifecycle events, labeled by type.",
	}, []string{"type"}), "scheduler_events_total"); err != nil {
		return nil, err
	}
	if c.Runs, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduler_runs_total",
		Help: "Finished connection runs, labeled by outcome.",
	}, []string{"outcome"}), "scheduler_runs_total"); err != nil {
		return nil, err
	}
	return c, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *Collector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := c.Gatherer()
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// WriteTick implements record.TickWriter.
func (c *Collector) WriteTick(row record.TickRow) error {
	if c == nil {
		return nil
	}
	c.Ticks.Inc()
	c.Launches.Add(float64(row.Launched))
	c.PendingOrders.Set(float64(row.Pending))
	c.AvailableDrones.Set(float64(row.Available))
	c.DecisionDuration.Observe(float64(row.DecisionMicros) / 1e6)
	if row.DeadlineMissed {
		c.DeadlineMisses.Inc()
	}
	return nil
}

// WriteEvent implements record.EventWriter.
func (c *Collector) WriteEvent(row record.EventRow) error {
	if c == nil {
		return nil
	}
	c.Events.WithLabelValues(string(row.Type)).Inc()
	return nil
}

// WriteStats implements record.StatsWriter.
func (c *Collector) WriteStats(record.StatsRow) error {
	if c == nil {
		return nil
	}
	c.ScenarioRuns.Inc()
	return nil
}

// WriteRun implements record.RunWriter.
func (c *Collector) WriteRun(row record.RunRow) error {
	if c == nil {
		return nil
	}
	c.Runs.WithLabelValues(string(row.Outcome)).Inc()
	return nil
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}
