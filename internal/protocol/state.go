package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// State is the per-tick simulation snapshot sent with a decision request.
type State struct {
	TimeOfDay         int
	PendingOrders     Orders
	AvailableDroneIds []ID
	BusyDrones        []DroneStatus `json:",omitempty"`
}

// UnmarshalJSON accepts the drone list under either AvailableDroneIds
// (tagged dialect) or AvailableDrones (bare dialect).
func (s *State) UnmarshalJSON(b []byte) error {
	type plain State
	var aux struct {
		plain
		AvailableDrones []ID
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	*s = State(aux.plain)
	if s.AvailableDroneIds == nil && aux.AvailableDrones != nil {
		s.AvailableDroneIds = aux.AvailableDrones
	}
	return nil
}

// Orders is the pending order collection in the order it was received.
type Orders []Order

// UnmarshalJSON decodes either an array of orders or an object keyed by
// order id. Object keys keep their received order; a key becomes the
// OrderId when the value does not carry one.
func (o *Orders) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*o = nil
		return nil
	}
	switch b[0] {
	case '[':
		var list []Order
		if err := json.Unmarshal(b, &list); err != nil {
			return err
		}
		for i, ord := range list {
			if ord.OrderId.IsZero() {
				return fmt.Errorf("%w: order %d has no OrderId", ErrMalformed, i)
			}
		}
		*o = list
		return nil
	case '{':
		return o.decodeKeyed(b)
	default:
		return fmt.Errorf("%w: PendingOrders must be an array or object", ErrMalformed)
	}
}

func (o *Orders) decodeKeyed(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	if _, err := dec.Token(); err != nil {
		return err
	}
	list := Orders{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("%w: unexpected order key %v", ErrMalformed, tok)
		}
		var ord Order
		if err := dec.Decode(&ord); err != nil {
			return fmt.Errorf("order %q: %w", key, err)
		}
		if ord.OrderId.IsZero() {
			ord.OrderId = StringID(key)
		}
		if ord.OrderId.IsZero() {
			return fmt.Errorf("%w: order with empty key has no OrderId", ErrMalformed)
		}
		list = append(list, ord)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*o = list
	return nil
}

// IDs returns the order identifiers in received order.
func (o Orders) IDs() []ID {
	ids := make([]ID, len(o))
	for i, ord := range o {
		ids[i] = ord.OrderId
	}
	return ids
}
