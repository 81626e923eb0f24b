// Per-tick drone assignment policies
package planner

import (
	"fmt"
	"strings"

	"droneops-scheduler/internal/protocol"
)

// Planner turns one tick's state into launches. Implementations must be
// deterministic and must never assign a drone twice or invent identifiers.
// The scenario may be nil.
type Planner interface {
	Plan(scenario *protocol.Scenario, state protocol.State) []protocol.Launch
}

// Func adapts a plain function to the Planner interface.
type Func func(scenario *protocol.Scenario, state protocol.State) []protocol.Launch

// Plan implements Planner.
func (f Func) Plan(scenario *protocol.Scenario, state protocol.State) []protocol.Launch {
	return f(scenario, state)
}

// Policy names accepted by ByName.
const (
	PolicyGreedy   = "greedy"
	PolicyPriority = "priority"
)

// ByName returns the planner registered under name. An empty name selects
// the greedy planner.
func ByName(name string) (Planner, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", PolicyGreedy:
		return Greedy{}, nil
	case PolicyPriority:
		return PriorityFirst{}, nil
	}
	return nil, fmt.Errorf("unknown planner %q", name)
}

// Greedy pairs orders with drones one-to-one in received order. Orders left
// over once drones run out stay pending for the next tick.
type Greedy struct{}

// Plan implements Planner.
func (Greedy) Plan(_ *protocol.Scenario, state protocol.State) []protocol.Launch {
	return assign(state.PendingOrders, state.AvailableDroneIds)
}

// PriorityFirst serves emergency orders before all others, keeping the
// received order within each class, then assigns like Greedy.
type PriorityFirst struct{}

// Plan implements Planner.
func (PriorityFirst) Plan(_ *protocol.Scenario, state protocol.State) []protocol.Launch {
	ordered := make(protocol.Orders, 0, len(state.PendingOrders))
	for _, o := range state.PendingOrders {
		if o.Priority == protocol.PriorityEmergency {
			ordered = append(ordered, o)
		}
	}
	for _, o := range state.PendingOrders {
		if o.Priority != protocol.PriorityEmergency {
			ordered = append(ordered, o)
		}
	}
	return assign(ordered, state.AvailableDroneIds)
}

func assign(orders protocol.Orders, drones []protocol.ID) []protocol.Launch {
	launches := []protocol.Launch{}
	next := 0
	for _, o := range orders {
		if next >= len(drones) {
			break
		}
		launches = append(launches, protocol.Launch{
			DroneId:  drones[next],
			OrderIds: []protocol.ID{o.OrderId},
		})
		next++
	}
	return launches
}
