package protocol

// Kind names an inbound message variant.
type Kind int

const (
	KindUnknown Kind = iota
	KindHandshakeResult
	KindStartScenarioRun
	KindGetMoves
	KindEndScenarioRun
	KindClose
	KindError
)

var kindNames = map[Kind]string{
	KindUnknown:          "Unknown",
	KindHandshakeResult:  "HandshakeResult",
	KindStartScenarioRun: "StartScenarioRun",
	KindGetMoves:         "GetMoves",
	KindEndScenarioRun:   "EndScenarioRun",
	KindClose:            "Close",
	KindError:            "Error",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "Unknown"
}

// Inbound is a decoded server message. Exactly the field matching Kind is
// non-nil.
type Inbound struct {
	Kind             Kind
	HandshakeResult  *HandshakeResult
	StartScenarioRun *StartScenarioRun
	GetMoves         *GetMoves
	EndScenarioRun   *EndScenarioRun
	Close            *Close
	Error            *ServerError
}

// OutboundKind names an outbound message variant.
type OutboundKind int

const (
	OutHandshake OutboundKind = iota + 1
	OutMoves
)

func (k OutboundKind) String() string {
	switch k {
	case OutHandshake:
		return "Handshake"
	case OutMoves:
		return "Moves"
	}
	return "Unknown"
}

// Outbound is a client message before dialect encoding.
type Outbound struct {
	Kind      OutboundKind
	Handshake *Handshake
	Moves     *Moves
}

// HandshakeMessage builds the outbound handshake.
func HandshakeMessage(authToken, entryName string) Outbound {
	return Outbound{Kind: OutHandshake, Handshake: &Handshake{AuthToken: authToken, EntryName: entryName}}
}

// MovesMessage builds the outbound decision response. A nil plan is sent
// as an empty launch list.
func MovesMessage(launches []Launch) Outbound {
	if launches == nil {
		launches = []Launch{}
	}
	return Outbound{Kind: OutMoves, Moves: &Moves{Launches: launches}}
}
