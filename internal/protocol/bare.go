package protocol

import "encoding/json"

type bareExpect int

const (
	bareExpectHandshake bareExpect = iota
	bareExpectScenario
	bareExpectTick
)

// BareCodec speaks the positional dialect: the first inbound message is the
// handshake result, the next is the scenario, and later messages are told
// apart by shape. A BareCodec is bound to one connection and is not safe
// for concurrent use.
type BareCodec struct {
	expect bareExpect
}

// Decode implements Codec.
func (c *BareCodec) Decode(raw []byte) (Inbound, error) {
	obj, err := decodeObject(raw)
	if err != nil {
		return Inbound{}, err
	}
	if body, ok := obj["Error"]; ok {
		msg := Inbound{Kind: KindError, Error: &ServerError{}}
		if err := decodeBody(raw, body, msg.Error, "Message"); err != nil {
			return Inbound{}, err
		}
		return msg, nil
	}

	switch c.expect {
	case bareExpectHandshake:
		msg := Inbound{Kind: KindHandshakeResult, HandshakeResult: &HandshakeResult{}}
		if err := decodeBody(raw, raw, msg.HandshakeResult, "IsOk"); err != nil {
			return Inbound{}, err
		}
		c.expect = bareExpectScenario
		return msg, nil

	case bareExpectScenario:
		body := json.RawMessage(raw)
		if inner, ok := obj["Scenario"]; ok && len(obj) == 1 {
			body = inner
		}
		msg := Inbound{Kind: KindStartScenarioRun, StartScenarioRun: &StartScenarioRun{}}
		if err := decodeBody(raw, body, &msg.StartScenarioRun.Scenario); err != nil {
			return Inbound{}, err
		}
		c.expect = bareExpectTick
		return msg, nil
	}

	if _, ok := obj["Stats"]; ok {
		msg := Inbound{Kind: KindEndScenarioRun, EndScenarioRun: &EndScenarioRun{}}
		if err := decodeBody(raw, raw, msg.EndScenarioRun, "Stats"); err != nil {
			return Inbound{}, err
		}
		c.expect = bareExpectScenario
		return msg, nil
	}
	if body, ok := obj["State"]; ok {
		msg := Inbound{Kind: KindGetMoves, GetMoves: &GetMoves{}}
		if err := decodeState(raw, body, &msg.GetMoves.State); err != nil {
			return Inbound{}, err
		}
		return msg, nil
	}
	return Inbound{}, unknownKind(raw, "unrecognized shape")
}

// Encode implements Codec.
func (c *BareCodec) Encode(msg Outbound) ([]byte, error) {
	switch msg.Kind {
	case OutHandshake:
		return json.Marshal(msg.Handshake)
	case OutMoves:
		return json.Marshal(msg.Moves)
	}
	return nil, unknownOutbound(msg.Kind)
}
