// Wire types shared by both protocol dialects
package protocol

// Endpoint paths selecting the run track on the competition server.
const (
	EndpointTesting     = "ws-testing"
	EndpointCompetition = "ws-competition"
)

// Priority of a delivery order.
type Priority string

const (
	PriorityEmergency Priority = "Emergency"
	PriorityResupply  Priority = "Resupply"
)

// Coord is a position in scenario space.
type Coord struct {
	X float64
	Y float64
}

// DroneConfig describes one drone of the scenario fleet.
type DroneConfig struct {
	DroneId     ID
	MaxCapacity int
	MaxSpeed    float64
	MaxRange    float64
}

// DroneStatus reports a drone that is currently out on a delivery.
type DroneStatus struct {
	DroneId            ID
	TimeToAvailability int
}

// Scenario is received once per scenario run and is read-only afterwards.
type Scenario struct {
	WarehousePosition Coord
	Hospitals         map[string]Coord
	Drones            []DroneConfig
	MaxTime           int
	SlaSecs           map[Priority]int
}

// Order is a pending delivery demand.
type Order struct {
	OrderId  ID
	Time     int
	Hospital string
	Priority Priority
}

// Launch assigns one drone to a non-empty list of orders.
type Launch struct {
	DroneId  ID
	OrderIds []ID
}

// KeySpec describes how a stats value should be presented.
type KeySpec struct {
	FullName      string
	StatName      string
	Priority      Priority
	Type          string
	ShouldDisplay bool
	DisplayName   string
}

// Stats are the final scores of a scenario run.
type Stats struct {
	KeySpecs []KeySpec
	Values   map[string]any
}

// Handshake is the first message the client sends.
type Handshake struct {
	AuthToken string
	EntryName string
}

// HandshakeResult answers the handshake.
type HandshakeResult struct {
	IsOk              bool
	Message           string
	TimeoutMs         int
	ScenarioFreqSecs  int
	NextStartDatetime string // RFC3339 format
}

// StartScenarioRun carries the scenario for the next run.
type StartScenarioRun struct {
	Scenario Scenario
}

// GetMoves is the per-tick decision request.
type GetMoves struct {
	State State
}

// Moves is the per-tick decision response.
type Moves struct {
	Launches []Launch
}

// EndScenarioRun carries the final stats of a scenario run.
type EndScenarioRun struct {
	Stats Stats
}

// Close announces that the server is about to close the connection.
// IsOk=false means the client misbehaved.
type Close struct {
	IsOk    bool
	Message string
}

// ServerError is an error reported by the server mid-run.
type ServerError struct {
	Message string
}
