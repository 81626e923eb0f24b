// Package channel wraps the WebSocket connection to the competition server.
// It frames and decodes whole messages and reports lifecycle events; it
// never interprets message semantics.
package channel

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"droneops-scheduler/internal/protocol"
)

// ErrClosed is returned by Send once the connection has been closed.
var ErrClosed = errors.New("channel closed")

// EventKind identifies a connection lifecycle event.
type EventKind int

const (
	EventOpened EventKind = iota + 1
	EventMessage
	EventMalformed
	EventClosed
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventOpened:
		return "opened"
	case EventMessage:
		return "message"
	case EventMalformed:
		return "malformed"
	case EventClosed:
		return "closed"
	case EventError:
		return "error"
	}
	return "unknown"
}

// Event is one notification from the connection. Message is set for
// EventMessage; Raw and Err for EventMalformed; Code, Reason and possibly
// Err for EventClosed; Err for EventError.
type Event struct {
	Kind    EventKind
	Message protocol.Inbound
	Raw     []byte
	Code    int
	Reason  string
	Err     error
}

// Options tune Dial.
type Options struct {
	Codec            protocol.Codec
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	Compression      bool
	ReadLimit        int64
	Header           http.Header
	// Buffer is the capacity of the event channel.
	Buffer int
}

func (o *Options) withDefaults() {
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = 10 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 5 * time.Second
	}
	if o.ReadLimit <= 0 {
		o.ReadLimit = 32 << 20
	}
	if o.Buffer <= 0 {
		o.Buffer = 16
	}
}

// Conn is an open connection. Events are delivered on Events in arrival
// order by a single reader goroutine; Send and Close are safe for
// concurrent use.
type Conn struct {
	ws           *websocket.Conn
	codec        protocol.Codec
	url          string
	writeTimeout time.Duration

	events chan Event

	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

// BuildURL joins the server base URL and a track endpoint.
func BuildURL(base, endpoint string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(endpoint, "/")
}

// Dial opens the connection. The first event is always EventOpened.
func Dial(ctx context.Context, url string, opts Options) (*Conn, error) {
	if opts.Codec == nil {
		return nil, fmt.Errorf("dial %s: no codec", url)
	}
	opts.withDefaults()
	dialer := websocket.Dialer{
		Proxy:             http.ProxyFromEnvironment,
		HandshakeTimeout:  opts.HandshakeTimeout,
		EnableCompression: opts.Compression,
	}
	ws, resp, err := dialer.DialContext(ctx, url, opts.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (http %d)", url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	ws.SetReadLimit(opts.ReadLimit)

	c := &Conn{
		ws:           ws,
		codec:        opts.Codec,
		url:          url,
		writeTimeout: opts.WriteTimeout,
		events:       make(chan Event, opts.Buffer),
		done:         make(chan struct{}),
	}
	c.events <- Event{Kind: EventOpened}
	go c.readLoop()
	return c, nil
}

// URL returns the address the connection was dialed with.
func (c *Conn) URL() string { return c.url }

// Events returns the event stream. It is closed after the final
// EventClosed or EventError.
func (c *Conn) Events() <-chan Event { return c.events }

// Done is closed once Close has been called.
func (c *Conn) Done() <-chan struct{} { return c.done }

func (c *Conn) readLoop() {
	defer close(c.events)
	for {
		typ, raw, err := c.ws.ReadMessage()
		if err != nil {
			c.emit(closeEvent(err, c.isClosed()))
			return
		}
		if typ != websocket.TextMessage {
			c.emit(Event{Kind: EventMalformed, Raw: raw, Err: fmt.Errorf("%w: unexpected binary frame", protocol.ErrMalformed)})
			continue
		}
		msg, err := c.codec.Decode(raw)
		if err != nil {
			c.emit(Event{Kind: EventMalformed, Raw: raw, Err: err})
			continue
		}
		c.emit(Event{Kind: EventMessage, Message: msg})
	}
}

// emit delivers ev unless the consumer has already closed the connection.
func (c *Conn) emit(ev Event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

func closeEvent(err error, local bool) Event {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		ev := Event{Kind: EventClosed, Code: ce.Code, Reason: ce.Text}
		if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			ev.Err = err
		}
		return ev
	}
	if local {
		return Event{Kind: EventClosed, Code: websocket.CloseNormalClosure, Reason: "closed by client"}
	}
	return Event{Kind: EventError, Err: err}
}

func (c *Conn) isClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Send encodes msg and writes it as one text frame. After Close it
// returns ErrClosed.
func (c *Conn) Send(msg protocol.Outbound) error {
	if c.isClosed() {
		return ErrClosed
	}
	b, err := c.codec.Encode(msg)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.isClosed() {
		return ErrClosed
	}
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	if err := c.ws.WriteMessage(websocket.TextMessage, b); err != nil {
		return fmt.Errorf("send %s: %w", msg.Kind, err)
	}
	return nil
}

// Close sends a normal close frame and releases the socket. Calls after
// the first are no-ops.
func (c *Conn) Close(reason string) error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.ws.Close()
	})
	return err
}
