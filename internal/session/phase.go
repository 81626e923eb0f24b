package session

import "droneops-scheduler/internal/protocol"

// Phase is the client's view of where the protocol stands.
type Phase int

const (
	PhaseUnauthenticated Phase = iota
	PhaseAwaitingScenario
	PhaseRunning
	PhaseTerminated
)

func (p Phase) String() string {
	switch p {
	case PhaseUnauthenticated:
		return "Unauthenticated"
	case PhaseAwaitingScenario:
		return "AwaitingScenario"
	case PhaseRunning:
		return "Running"
	case PhaseTerminated:
		return "Terminated"
	}
	return "Unknown"
}

// legalIn lists the phase in which each ordered message kind is expected.
// Kinds missing here (Close, Error) are accepted in every live phase.
var legalIn = map[protocol.Kind]Phase{
	protocol.KindHandshakeResult:  PhaseUnauthenticated,
	protocol.KindStartScenarioRun: PhaseAwaitingScenario,
	protocol.KindGetMoves:         PhaseRunning,
	protocol.KindEndScenarioRun:   PhaseRunning,
}
