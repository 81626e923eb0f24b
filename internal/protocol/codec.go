package protocol

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Dialect selects the wire shape spoken by the server.
type Dialect string

const (
	// DialectTagged wraps every message in a single-key object naming its kind.
	DialectTagged Dialect = "tagged"
	// DialectBare sends unwrapped objects matched by position and shape.
	DialectBare Dialect = "bare"
)

// ParseDialect converts a config value to a Dialect.
func ParseDialect(s string) (Dialect, error) {
	switch Dialect(strings.ToLower(strings.TrimSpace(s))) {
	case "", DialectTagged:
		return DialectTagged, nil
	case DialectBare:
		return DialectBare, nil
	}
	return "", fmt.Errorf("unknown dialect %q", s)
}

// Codec converts between text frames and protocol messages.
type Codec interface {
	Decode(raw []byte) (Inbound, error)
	Encode(msg Outbound) ([]byte, error)
}

// NewCodec returns a codec for the dialect. With strict set, tagged
// messages are validated against the inbound JSON schema before decoding.
func NewCodec(d Dialect, strict bool) (Codec, error) {
	switch d {
	case DialectTagged, "":
		c := &TaggedCodec{}
		if strict {
			s, err := InboundSchema()
			if err != nil {
				return nil, err
			}
			c.schema = s
		}
		return c, nil
	case DialectBare:
		return &BareCodec{}, nil
	}
	return nil, fmt.Errorf("unknown dialect %q", d)
}

//go:embed schema/inbound.schema.json
var inboundSchemaSrc string

// InboundSchema compiles the tagged inbound message schema.
func InboundSchema() (*jsonschema.Schema, error) {
	s, err := jsonschema.CompileString("inbound.schema.json", inboundSchemaSrc)
	if err != nil {
		return nil, fmt.Errorf("compile inbound schema: %w", err)
	}
	return s, nil
}

func malformed(raw []byte, format string, args ...any) error {
	return &DecodeError{Raw: raw, Err: fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))}
}

func unknownKind(raw []byte, kind string) error {
	return &DecodeError{Raw: raw, Err: fmt.Errorf("%w: %q", ErrUnknownKind, kind)}
}

// decodeObject parses one JSON object into its raw members.
func decodeObject(raw []byte) (map[string]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, malformed(raw, "expected a JSON object")
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return nil, malformed(raw, "%v", err)
	}
	return obj, nil
}

// decodeBody unmarshals body into v after checking it is an object holding
// every required key.
func decodeBody(raw, body []byte, v any, required ...string) error {
	obj, err := decodeObject(body)
	if err != nil {
		return malformed(raw, "body is not an object")
	}
	for _, k := range required {
		if _, ok := obj[k]; !ok {
			return malformed(raw, "missing %s", k)
		}
	}
	if err := json.Unmarshal(body, v); err != nil {
		return malformed(raw, "%v", err)
	}
	return nil
}

// decodeGetMoves decodes a tagged GetMoves body.
func decodeGetMoves(raw, body []byte, gm *GetMoves) error {
	obj, err := decodeObject(body)
	if err != nil {
		return malformed(raw, "body is not an object")
	}
	st, ok := obj["State"]
	if !ok {
		return malformed(raw, "missing State")
	}
	return decodeState(raw, st, &gm.State)
}

// decodeState checks the fields every decision request carries before
// decoding the state: TimeOfDay, PendingOrders and the drone list under
// either of its names.
func decodeState(raw, body []byte, st *State) error {
	obj, err := decodeObject(body)
	if err != nil {
		return malformed(raw, "State is not an object")
	}
	for _, k := range []string{"TimeOfDay", "PendingOrders"} {
		if _, ok := obj[k]; !ok {
			return malformed(raw, "State missing %s", k)
		}
	}
	_, ids := obj["AvailableDroneIds"]
	_, drones := obj["AvailableDrones"]
	if !ids && !drones {
		return malformed(raw, "State missing AvailableDroneIds")
	}
	if err := json.Unmarshal(body, st); err != nil {
		return malformed(raw, "%v", err)
	}
	return nil
}
