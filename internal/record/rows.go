// Row types written by the scheduler for every decision and lifecycle step
package record

import (
	"sort"
	"time"

	"droneops-scheduler/internal/protocol"
)

// TickRow records one decision request and the plan sent back.
type TickRow struct {
	RunID          string            `json:"run_id"`     // TAG
	EntryName      string            `json:"entry_name"` // TAG
	Scenario       int               `json:"scenario"`
	Tick           int               `json:"tick"`
	TimeOfDay      int               `json:"time_of_day"`
	Pending        int               `json:"pending"`
	Available      int               `json:"available"`
	Launched       int               `json:"launched"`
	DecisionMicros int64             `json:"decision_us"`
	DeadlineMissed bool              `json:"deadline_missed"`
	State          protocol.State    `json:"state"`
	Launches       []protocol.Launch `json:"launches"`
	Timestamp      time.Time         `json:"ts"` // TIME INDEX
}

// EventType classifies an EventRow.
type EventType string

const (
	EventPhase     EventType = "phase"
	EventViolation EventType = "violation"
	EventMalformed EventType = "malformed"
	EventServer    EventType = "server"
	EventChannel   EventType = "channel"
)

// EventRow records a protocol lifecycle event.
type EventRow struct {
	RunID     string    `json:"run_id"`
	Type      EventType `json:"type"`
	Phase     string    `json:"phase"`
	Kind      string    `json:"kind,omitempty"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"ts"`
}

// StatValue is one named score of a finished scenario run.
type StatValue struct {
	Name    string `json:"name"`
	Label   string `json:"label"`
	Value   any    `json:"value"`
	Display bool   `json:"display"`
}

// StatsRow records the stats of one finished scenario run.
type StatsRow struct {
	RunID     string      `json:"run_id"`
	Scenario  int         `json:"scenario"`
	Values    []StatValue `json:"values"`
	Timestamp time.Time   `json:"ts"`
}

// Outcome is how a run ended.
type Outcome string

const (
	OutcomeCompleted     Outcome = "completed"
	OutcomeRejected      Outcome = "rejected"
	OutcomeProtocolError Outcome = "protocol_error"
	OutcomeServerError   Outcome = "server_error"
	OutcomeChannelClosed Outcome = "channel_closed"
)

// RunRow summarizes one connection lifetime.
type RunRow struct {
	RunID          string    `json:"run_id"`
	EntryName      string    `json:"entry_name"`
	Track          string    `json:"track"`
	Dialect        string    `json:"dialect"`
	Planner        string    `json:"planner"`
	Outcome        Outcome   `json:"outcome"`
	Error          string    `json:"error,omitempty"`
	Scenarios      int       `json:"scenarios"`
	Ticks          int       `json:"ticks"`
	Launches       int       `json:"launches"`
	Violations     int       `json:"violations"`
	DeadlineMisses int       `json:"deadline_misses"`
	StartedAt      time.Time `json:"started_at"`
	EndedAt        time.Time `json:"ended_at"`
}

// OrderedStats lists stats in KeySpecs order. Without key specs the values
// are listed by sorted name.
func OrderedStats(s protocol.Stats) []StatValue {
	out := make([]StatValue, 0, len(s.Values))
	if len(s.KeySpecs) > 0 {
		for _, ks := range s.KeySpecs {
			label := ks.DisplayName
			if label == "" {
				label = ks.FullName
			}
			out = append(out, StatValue{Name: ks.FullName, Label: label, Value: s.Values[ks.FullName], Display: ks.ShouldDisplay})
		}
		return out
	}
	names := make([]string, 0, len(s.Values))
	for k := range s.Values {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		out = append(out, StatValue{Name: k, Label: k, Value: s.Values[k], Display: true})
	}
	return out
}
