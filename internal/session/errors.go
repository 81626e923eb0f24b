package session

import (
	"errors"
	"fmt"
)

var (
	// ErrHandshakeRejected is returned when the server answers the
	// handshake with IsOk=false.
	ErrHandshakeRejected = errors.New("handshake rejected")
	// ErrChannelClosed is returned when the connection drops before the
	// run reached a normal end.
	ErrChannelClosed = errors.New("channel closed before the run ended")
)

// ProtocolError reports an inbound message that could not be decoded or
// is of an unrecognized kind. The run is terminated.
type ProtocolError struct {
	Phase  Phase
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("protocol error in %s: %s", e.Phase, e.Reason)
	}
	return fmt.Sprintf("protocol error in %s: %s: %v", e.Phase, e.Reason, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// ServerError is an error reported by the server, either as an error
// message or as a Close with IsOk=false.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	if e.Message == "" {
		return "server error"
	}
	return "server error: " + e.Message
}
