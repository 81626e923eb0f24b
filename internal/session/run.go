package session

import (
	"context"

	"droneops-scheduler/internal/channel"
)

// Conn is the connection a Machine is driven by.
type Conn interface {
	Sender
	Events() <-chan channel.Event
}

// Run feeds connection events to m one at a time until the run ends or
// ctx is cancelled, and returns the error the run ended with.
func Run(ctx context.Context, conn Conn, m *Machine) error {
	events := conn.Events()
	for {
		select {
		case <-ctx.Done():
			m.Cancel(ctx.Err())
			return m.Err()
		case <-m.Done():
			return m.Err()
		case ev, ok := <-events:
			if !ok {
				// The reader stopped without reporting why.
				m.Handle(ctx, channel.Event{Kind: channel.EventError})
				return m.Err()
			}
			m.Handle(ctx, ev)
		}
	}
}
