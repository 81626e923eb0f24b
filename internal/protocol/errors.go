package protocol

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformed marks inbound text that is not valid JSON or lacks a
	// required field.
	ErrMalformed = errors.New("malformed message")
	// ErrUnknownKind marks a well-formed message of an unrecognized kind.
	ErrUnknownKind = errors.New("unknown message kind")
)

// DecodeError wraps a failure to decode one inbound frame.
type DecodeError struct {
	Raw []byte
	Err error
}

func (e *DecodeError) Error() string {
	const limit = 120
	raw := string(e.Raw)
	if len(raw) > limit {
		raw = raw[:limit] + "..."
	}
	return fmt.Sprintf("decode %q: %v", raw, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func unknownOutbound(k OutboundKind) error {
	return fmt.Errorf("encode: unsupported outbound message %s", k)
}
