// Package session drives one scheduler run: it tracks the protocol phase,
// answers decision requests through a planner and records what happened.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"droneops-scheduler/internal/channel"
	"droneops-scheduler/internal/logging"
	"droneops-scheduler/internal/planner"
	"droneops-scheduler/internal/protocol"
	"droneops-scheduler/internal/record"
	"droneops-scheduler/internal/tracing"
)

// Sender is the outbound half of a connection.
type Sender interface {
	Send(protocol.Outbound) error
	Close(reason string) error
}

// Options configure a Machine.
type Options struct {
	AuthToken string
	EntryName string
	Planner   planner.Planner
	// MultiRun returns to AwaitingScenario after stats instead of ending
	// the run.
	MultiRun bool
	// TickDeadline bounds one decision. Zero means use the server's
	// TimeoutMs from the handshake result, if any.
	TickDeadline time.Duration

	Writer record.TickWriter
	Logger *slog.Logger
	Tracer trace.Tracer

	// RunID identifies the run in records. Generated when empty.
	RunID string
	// Track, Dialect and PlannerName only label the run summary.
	Track       string
	Dialect     string
	PlannerName string

	Now func() time.Time
}

// Status is a point-in-time view of a Machine.
type Status struct {
	RunID          string    `json:"run_id"`
	EntryName      string    `json:"entry_name"`
	Track          string    `json:"track"`
	Phase          string    `json:"phase"`
	Scenarios      int       `json:"scenarios"`
	Ticks          int       `json:"ticks"`
	Launches       int       `json:"launches"`
	Violations     int       `json:"violations"`
	DeadlineMisses int       `json:"deadline_misses"`
	LastTimeOfDay  int       `json:"last_time_of_day"`
	StartedAt      time.Time `json:"started_at"`
	Outcome        string    `json:"outcome,omitempty"`
	Error          string    `json:"error,omitempty"`
}

// Machine is the protocol state machine of one connection. Handle must be
// called from a single goroutine; Status may be called from any.
type Machine struct {
	opts   Options
	sender Sender
	log    *slog.Logger
	tracer trace.Tracer
	now    func() time.Time

	// mu serializes Handle and Cancel and is held across sends.
	mu            sync.Mutex
	handshakeSent bool
	scenario      *protocol.Scenario
	deadline      time.Duration
	completed     int
	tick          int
	startedAt     time.Time
	done          chan struct{}

	// statusMu guards the fields below for readers. They are only written
	// with mu held, so the handling path reads them without statusMu.
	statusMu      sync.Mutex
	phase         Phase
	scenarios     int
	ticks         int
	launches      int
	violations    int
	misses        int
	lastTimeOfDay int
	outcome       record.Outcome
	err           error
}

// NewMachine creates a Machine in the Unauthenticated phase.
func NewMachine(sender Sender, opts Options) *Machine {
	if opts.Planner == nil {
		opts.Planner = planner.Greedy{}
	}
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := opts.Logger
	if log == nil {
		log = logging.Discard()
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = tracing.Tracer()
	}
	return &Machine{
		opts:      opts,
		sender:    sender,
		log:       log.With("run_id", opts.RunID),
		tracer:    tracer,
		now:       opts.Now,
		phase:     PhaseUnauthenticated,
		deadline:  opts.TickDeadline,
		startedAt: opts.Now().UTC(),
		done:      make(chan struct{}),
	}
}

// RunID returns the identifier used in records for this run.
func (m *Machine) RunID() string { return m.opts.RunID }

// Phase returns the current phase.
func (m *Machine) Phase() Phase {
	m.statusMu.Lock()
	defer m.statusMu.Unlock()
	return m.phase
}

// Done is closed when the machine reaches Terminated.
func (m *Machine) Done() <-chan struct{} { return m.done }

// Err returns the error the run ended with. It is nil while the run is
// live and after a normal end.
func (m *Machine) Err() error {
	m.statusMu.Lock()
	defer m.statusMu.Unlock()
	return m.err
}

// Status returns a snapshot for status pages.
func (m *Machine) Status() Status {
	m.statusMu.Lock()
	defer m.statusMu.Unlock()
	st := Status{
		RunID:          m.opts.RunID,
		EntryName:      m.opts.EntryName,
		Track:          m.opts.Track,
		Phase:          m.phase.String(),
		Scenarios:      m.scenarios,
		Ticks:          m.ticks,
		Launches:       m.launches,
		Violations:     m.violations,
		DeadlineMisses: m.misses,
		LastTimeOfDay:  m.lastTimeOfDay,
		StartedAt:      m.startedAt,
		Outcome:        string(m.outcome),
	}
	if m.err != nil {
		st.Error = m.err.Error()
	}
	return st
}

// Handle applies one connection event. Events arriving after Terminated
// are ignored and never cause a send.
func (m *Machine) Handle(ctx context.Context, ev channel.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase == PhaseTerminated {
		m.log.Debug("event after termination ignored", "event", ev.Kind.String())
		return
	}

	switch ev.Kind {
	case channel.EventOpened:
		m.onOpened()
	case channel.EventMessage:
		m.onMessage(ctx, ev.Message)
	case channel.EventMalformed:
		m.fail(record.OutcomeProtocolError, &ProtocolError{Phase: m.phase, Reason: "malformed message", Err: ev.Err},
			record.EventMalformed, "malformed message")
	case channel.EventClosed, channel.EventError:
		m.onChannelGone(ev)
	default:
		m.log.Warn("unknown channel event", "event", ev.Kind.String())
	}
}

// Cancel terminates a live run on behalf of the caller, for example on
// shutdown. It closes the connection.
func (m *Machine) Cancel(cause error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase == PhaseTerminated {
		return
	}
	m.fail(record.OutcomeChannelClosed, fmt.Errorf("%w: %w", ErrChannelClosed, cause), record.EventChannel, "cancelled")
}

func (m *Machine) onOpened() {
	if m.phase != PhaseUnauthenticated || m.handshakeSent {
		m.log.Debug("duplicate open event ignored", "phase", m.phase.String())
		return
	}
	m.handshakeSent = true
	m.log.Info("sending handshake", "entry_name", m.opts.EntryName)
	if err := m.sender.Send(protocol.HandshakeMessage(m.opts.AuthToken, m.opts.EntryName)); err != nil {
		m.fail(record.OutcomeChannelClosed, fmt.Errorf("%w: send handshake: %w", ErrChannelClosed, err), record.EventChannel, "handshake send failed")
	}
}

func (m *Machine) onMessage(ctx context.Context, msg protocol.Inbound) {
	if want, ordered := legalIn[msg.Kind]; ordered && want != m.phase {
		m.violation(msg.Kind)
		return
	}

	switch msg.Kind {
	case protocol.KindHandshakeResult:
		m.onHandshakeResult(msg.HandshakeResult)
	case protocol.KindStartScenarioRun:
		m.onStartScenario(msg.StartScenarioRun)
	case protocol.KindGetMoves:
		m.decide(ctx, msg.GetMoves.State)
	case protocol.KindEndScenarioRun:
		m.onEndScenario(msg.EndScenarioRun)
	case protocol.KindError:
		m.fail(record.OutcomeServerError, &ServerError{Message: msg.Error.Message}, record.EventServer, msg.Error.Message)
	case protocol.KindClose:
		m.onClose(msg.Close)
	default:
		m.fail(record.OutcomeProtocolError,
			&ProtocolError{Phase: m.phase, Reason: "unrecognized message", Err: protocol.ErrUnknownKind},
			record.EventMalformed, msg.Kind.String())
	}
}

func (m *Machine) onHandshakeResult(res *protocol.HandshakeResult) {
	if !res.IsOk {
		err := fmt.Errorf("%w: %s", ErrHandshakeRejected, res.Message)
		if res.Message == "" {
			err = ErrHandshakeRejected
		}
		m.fail(record.OutcomeRejected, err, record.EventServer, res.Message)
		return
	}
	if m.deadline == 0 && res.TimeoutMs > 0 {
		m.deadline = time.Duration(res.TimeoutMs) * time.Millisecond
	}
	m.log.Info("handshake accepted",
		"message", res.Message,
		"timeout_ms", res.TimeoutMs,
		"scenario_freq_secs", res.ScenarioFreqSecs,
		"next_start", res.NextStartDatetime,
	)
	m.setPhase(PhaseAwaitingScenario, res.Message)
}

func (m *Machine) onStartScenario(msg *protocol.StartScenarioRun) {
	sc := msg.Scenario
	m.scenario = &sc
	m.tick = 0
	m.update(func() { m.scenarios++ })
	m.log.Info("scenario started",
		"scenario", m.scenarios,
		"drones", len(sc.Drones),
		"hospitals", len(sc.Hospitals),
		"max_time", sc.MaxTime,
	)
	m.setPhase(PhaseRunning, fmt.Sprintf("scenario %d", m.scenarios))
}

// decide runs the planner once and sends its plan. A missed deadline is
// logged and counted but the plan is still sent.
func (m *Machine) decide(ctx context.Context, state protocol.State) {
	_, span := m.tracer.Start(ctx, "session.decide", trace.WithAttributes(
		attribute.String("run_id", m.opts.RunID),
		attribute.Int("scenario", m.scenarios),
		attribute.Int("time_of_day", state.TimeOfDay),
		attribute.Int("pending", len(state.PendingOrders)),
		attribute.Int("available", len(state.AvailableDroneIds)),
	))
	defer span.End()

	start := m.now()
	launches := m.opts.Planner.Plan(m.scenario, state)
	elapsed := m.now().Sub(start)
	missed := m.deadline > 0 && elapsed > m.deadline

	m.tick++
	m.update(func() {
		m.ticks++
		m.launches += len(launches)
		m.lastTimeOfDay = state.TimeOfDay
		if missed {
			m.misses++
		}
	})
	if missed {
		m.log.Warn("decision exceeded tick deadline", "tick", m.tick, "elapsed", elapsed, "deadline", m.deadline)
	}
	span.SetAttributes(
		attribute.Int("launched", len(launches)),
		attribute.Bool("deadline_missed", missed),
	)
	m.log.Debug("decision", "tick", m.tick, "time_of_day", state.TimeOfDay, "launched", len(launches), "elapsed", elapsed)

	if err := m.sender.Send(protocol.MovesMessage(launches)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "send moves")
		m.fail(record.OutcomeChannelClosed, fmt.Errorf("%w: send moves: %w", ErrChannelClosed, err), record.EventChannel, "moves send failed")
		return
	}

	m.writeTick(record.TickRow{
		RunID:          m.opts.RunID,
		EntryName:      m.opts.EntryName,
		Scenario:       m.scenarios,
		Tick:           m.tick,
		TimeOfDay:      state.TimeOfDay,
		Pending:        len(state.PendingOrders),
		Available:      len(state.AvailableDroneIds),
		Launched:       len(launches),
		DecisionMicros: elapsed.Microseconds(),
		DeadlineMissed: missed,
		State:          state,
		Launches:       launches,
		Timestamp:      m.now().UTC(),
	})
}

func (m *Machine) onEndScenario(msg *protocol.EndScenarioRun) {
	m.completed++
	values := record.OrderedStats(msg.Stats)
	for _, v := range values {
		m.log.Info("scenario stat", "scenario", m.scenarios, "name", v.Label, "value", v.Value)
	}
	if sw, ok := m.opts.Writer.(record.StatsWriter); ok {
		if err := sw.WriteStats(record.StatsRow{RunID: m.opts.RunID, Scenario: m.scenarios, Values: values, Timestamp: m.now().UTC()}); err != nil {
			m.log.Warn("write stats failed", "err", err)
		}
	}
	m.scenario = nil
	if m.opts.MultiRun {
		m.setPhase(PhaseAwaitingScenario, fmt.Sprintf("scenario %d finished", m.scenarios))
		return
	}
	m.finish(record.OutcomeCompleted, nil, "scenario finished")
}

func (m *Machine) onClose(msg *protocol.Close) {
	if !msg.IsOk {
		m.fail(record.OutcomeServerError, &ServerError{Message: msg.Message}, record.EventServer, msg.Message)
		return
	}
	m.log.Info("server closed the run", "message", msg.Message)
	m.finish(record.OutcomeCompleted, nil, msg.Message)
}

// onChannelGone handles the connection going away underneath the machine.
// A clean close after at least one finished scenario in multi-run mode
// counts as a normal end.
func (m *Machine) onChannelGone(ev channel.Event) {
	if ev.Kind == channel.EventClosed && ev.Err == nil && m.phase == PhaseAwaitingScenario && m.completed > 0 {
		m.finish(record.OutcomeCompleted, nil, "connection closed")
		return
	}
	var err error
	switch {
	case ev.Err != nil:
		err = fmt.Errorf("%w: %w", ErrChannelClosed, ev.Err)
	case ev.Kind == channel.EventClosed:
		err = fmt.Errorf("%w: code %d %s", ErrChannelClosed, ev.Code, ev.Reason)
	default:
		err = ErrChannelClosed
	}
	m.terminate(record.OutcomeChannelClosed, err, record.EventChannel, ev.Reason, false)
}

func (m *Machine) violation(kind protocol.Kind) {
	m.update(func() { m.violations++ })
	m.log.Warn("message not valid in current phase ignored", "phase", m.phase.String(), "kind", kind.String())
	m.writeEvent(record.EventViolation, kind.String(), "message not valid in current phase")
}

func (m *Machine) setPhase(p Phase, msg string) {
	m.log.Debug("phase change", "from", m.phase.String(), "to", p.String())
	m.update(func() { m.phase = p })
	m.writeEvent(record.EventPhase, "", msg)
}

// finish ends the run normally and closes the connection.
func (m *Machine) finish(outcome record.Outcome, err error, msg string) {
	m.terminate(outcome, err, record.EventPhase, msg, true)
}

// fail ends the run with err and closes the connection.
func (m *Machine) fail(outcome record.Outcome, err error, typ record.EventType, msg string) {
	m.log.Error("run failed", "phase", m.phase.String(), "err", err)
	m.terminate(outcome, err, typ, msg, true)
}

func (m *Machine) terminate(outcome record.Outcome, err error, typ record.EventType, msg string, closeConn bool) {
	if typ != record.EventPhase {
		m.writeEvent(typ, "", msg)
	}
	m.update(func() {
		m.phase = PhaseTerminated
		m.outcome = outcome
		m.err = err
	})
	m.writeEvent(record.EventPhase, "", string(outcome))
	if closeConn {
		reason := "done"
		if err != nil {
			reason = string(outcome)
		}
		if cerr := m.sender.Close(reason); cerr != nil && !errors.Is(cerr, channel.ErrClosed) {
			m.log.Debug("close failed", "err", cerr)
		}
	}
	m.writeRun()
	close(m.done)
}

// update applies f to the status fields under statusMu.
func (m *Machine) update(f func()) {
	m.statusMu.Lock()
	defer m.statusMu.Unlock()
	f()
}

func (m *Machine) writeTick(row record.TickRow) {
	if m.opts.Writer == nil {
		return
	}
	if err := m.opts.Writer.WriteTick(row); err != nil {
		m.log.Warn("write tick failed", "err", err)
	}
}

func (m *Machine) writeEvent(typ record.EventType, kind, msg string) {
	ew, ok := m.opts.Writer.(record.EventWriter)
	if !ok {
		return
	}
	row := record.EventRow{
		RunID:     m.opts.RunID,
		Type:      typ,
		Phase:     m.phase.String(),
		Kind:      kind,
		Message:   msg,
		Timestamp: m.now().UTC(),
	}
	if err := ew.WriteEvent(row); err != nil {
		m.log.Warn("write event failed", "err", err)
	}
}

func (m *Machine) writeRun() {
	rw, ok := m.opts.Writer.(record.RunWriter)
	if !ok {
		return
	}
	row := record.RunRow{
		RunID:          m.opts.RunID,
		EntryName:      m.opts.EntryName,
		Track:          m.opts.Track,
		Dialect:        m.opts.Dialect,
		Planner:        m.opts.PlannerName,
		Outcome:        m.outcome,
		Scenarios:      m.scenarios,
		Ticks:          m.ticks,
		Launches:       m.launches,
		Violations:     m.violations,
		DeadlineMisses: m.misses,
		StartedAt:      m.startedAt,
		EndedAt:        m.now().UTC(),
	}
	if m.err != nil {
		row.Error = m.err.Error()
	}
	if err := rw.WriteRun(row); err != nil {
		m.log.Warn("write run failed", "err", err)
	}
}
