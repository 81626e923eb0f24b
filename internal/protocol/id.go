package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// ID is an opaque drone or order identifier. The server may send either a
// JSON string or a JSON number; the ID remembers which so it is echoed back
// in the same form.
type ID struct {
	text    string
	numeric bool
}

// StringID returns an ID encoded as a JSON string.
func StringID(s string) ID { return ID{text: s} }

// NumberID returns an ID encoded as a JSON number.
func NumberID(n int64) ID { return ID{text: strconv.FormatInt(n, 10), numeric: true} }

// String returns the identifier text without JSON quoting.
func (id ID) String() string { return id.text }

// IsZero reports whether the ID was never set.
func (id ID) IsZero() bool { return id.text == "" && !id.numeric }

// MarshalJSON implements json.Marshaler.
func (id ID) MarshalJSON() ([]byte, error) {
	if id.numeric {
		return []byte(id.text), nil
	}
	return json.Marshal(id.text)
}

// UnmarshalJSON implements json.Unmarshaler.
func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return fmt.Errorf("%w: empty identifier", ErrMalformed)
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID{text: s}
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("%w: identifier %s is neither string nor number", ErrMalformed, b)
	}
	*id = ID{text: n.String(), numeric: true}
	return nil
}
