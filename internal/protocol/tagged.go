package protocol

import (
	"encoding/json"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// TaggedCodec speaks the envelope dialect: {"<Kind>": {...}}.
type TaggedCodec struct {
	schema *jsonschema.Schema
}

// Decode implements Codec.
func (c *TaggedCodec) Decode(raw []byte) (Inbound, error) {
	env, err := decodeObject(raw)
	if err != nil {
		return Inbound{}, err
	}
	if len(env) != 1 {
		return Inbound{}, malformed(raw, "envelope has %d keys, want 1", len(env))
	}
	var key string
	var body json.RawMessage
	for k, v := range env {
		key, body = k, v
	}
	kind := kindByEnvelopeKey(key)
	if kind == KindUnknown {
		return Inbound{}, unknownKind(raw, key)
	}
	if c.schema != nil {
		var doc any
		if err := json.Unmarshal(raw, &doc); err != nil {
			return Inbound{}, malformed(raw, "%v", err)
		}
		if err := c.schema.Validate(doc); err != nil {
			return Inbound{}, malformed(raw, "schema: %v", err)
		}
	}

	msg := Inbound{Kind: kind}
	switch kind {
	case KindHandshakeResult:
		msg.HandshakeResult = &HandshakeResult{}
		err = decodeBody(raw, body, msg.HandshakeResult, "IsOk")
	case KindStartScenarioRun:
		msg.StartScenarioRun = &StartScenarioRun{}
		err = decodeBody(raw, body, msg.StartScenarioRun, "Scenario")
	case KindGetMoves:
		msg.GetMoves = &GetMoves{}
		err = decodeGetMoves(raw, body, msg.GetMoves)
	case KindEndScenarioRun:
		msg.EndScenarioRun = &EndScenarioRun{}
		err = decodeBody(raw, body, msg.EndScenarioRun, "Stats")
	case KindClose:
		msg.Close = &Close{}
		err = decodeBody(raw, body, msg.Close)
	case KindError:
		msg.Error = &ServerError{}
		err = decodeBody(raw, body, msg.Error, "Message")
	}
	if err != nil {
		return Inbound{}, err
	}
	return msg, nil
}

func kindByEnvelopeKey(key string) Kind {
	switch key {
	case "HandshakeResult":
		return KindHandshakeResult
	case "StartScenarioRun":
		return KindStartScenarioRun
	case "GetMoves":
		return KindGetMoves
	case "EndScenarioRun":
		return KindEndScenarioRun
	case "Close":
		return KindClose
	case "Error":
		return KindError
	}
	return KindUnknown
}

type taggedOutbound struct {
	Handshake *Handshake `json:",omitempty"`
	Moves     *Moves     `json:",omitempty"`
}

// Encode implements Codec.
func (c *TaggedCodec) Encode(msg Outbound) ([]byte, error) {
	switch msg.Kind {
	case OutHandshake:
		return json.Marshal(taggedOutbound{Handshake: msg.Handshake})
	case OutMoves:
		return json.Marshal(taggedOutbound{Moves: msg.Moves})
	}
	return nil, unknownOutbound(msg.Kind)
}
