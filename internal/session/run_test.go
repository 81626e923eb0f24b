package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"droneops-scheduler/internal/channel"
	"droneops-scheduler/internal/logging"
	"droneops-scheduler/internal/protocol"
)

// scriptServer plays the server side of one run: it reads the handshake,
// then writes each scripted frame and, for GetMoves frames, waits for the
// client's reply. Client frames are delivered on the returned channel.
func scriptServer(t *testing.T, script []string) (string, <-chan string) {
	t.Helper()
	got := make(chan string, len(script)+1)
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer ws.Close()
		_, hs, err := ws.ReadMessage()
		if err != nil {
			return
		}
		got <- string(hs)
		for _, frame := range script {
			if err := ws.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
				return
			}
			if strings.HasPrefix(frame, `{"GetMoves"`) {
				_, reply, err := ws.ReadMessage()
				if err != nil {
					return
				}
				got <- string(reply)
			}
		}
		// Wait for the client to hang up.
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http"), got
}

func dialTagged(t *testing.T, base string) *channel.Conn {
	t.Helper()
	codec, err := protocol.NewCodec(protocol.DialectTagged, true)
	if err != nil {
		t.Fatalf("codec: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := channel.Dial(ctx, channel.BuildURL(base, protocol.EndpointTesting), channel.Options{Codec: codec})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func TestRunEndToEnd(t *testing.T) {
	base, got := scriptServer(t, []string{
		`{"HandshakeResult":{"IsOk":true,"TimeoutMs":1000}}`,
		`{"StartScenarioRun":{"Scenario":{"MaxTime":100}}}`,
		`{"GetMoves":{"State":{"TimeOfDay":1,"PendingOrders":{"o1":{"Time":0},"o2":{"Time":0}},"AvailableDroneIds":["d1"]}}}`,
		`{"GetMoves":{"State":{"TimeOfDay":2,"PendingOrders":{"o2":{"Time":0}},"AvailableDroneIds":[]}}}`,
		`{"EndScenarioRun":{"Stats":{"Values":{"delivered":1}}}}`,
	})
	conn := dialTagged(t, base)
	defer conn.Close("test done")

	rec := &recorder{}
	m := NewMachine(conn, Options{AuthToken: "tok", EntryName: "team", Writer: rec, Logger: logging.Discard()})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := Run(ctx, conn, m); err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []string{
		`{"Handshake":{"AuthToken":"tok","EntryName":"team"}}`,
		`{"Moves":{"Launches":[{"DroneId":"d1","OrderIds":["o1"]}]}}`,
		`{"Moves":{"Launches":[]}}`,
	}
	for i, w := range want {
		select {
		case frame := <-got:
			if frame != w {
				t.Fatalf("frame %d = %s, want %s", i, frame, w)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for frame %d", i)
		}
	}
	if len(rec.runs) != 1 || rec.runs[0].Ticks != 2 {
		t.Fatalf("run rows = %+v", rec.runs)
	}
}

func TestRunRejected(t *testing.T) {
	base, _ := scriptServer(t, []string{`{"HandshakeResult":{"IsOk":false,"Message":"unknown entry"}}`})
	conn := dialTagged(t, base)
	m := NewMachine(conn, Options{Logger: logging.Discard()})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := Run(ctx, conn, m)
	if !errors.Is(err, ErrHandshakeRejected) || !strings.Contains(err.Error(), "unknown entry") {
		t.Fatalf("err = %v", err)
	}
	if err := conn.Send(protocol.MovesMessage(nil)); !errors.Is(err, channel.ErrClosed) {
		t.Fatalf("connection should be closed after rejection, Send = %v", err)
	}
}

func TestRunServerDrop(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		_, _, _ = ws.ReadMessage()
		_ = ws.WriteMessage(websocket.TextMessage, []byte(`{"HandshakeResult":{"IsOk":true}}`))
		ws.Close()
	}))
	defer srv.Close()
	conn := dialTagged(t, "ws"+strings.TrimPrefix(srv.URL, "http"))
	defer conn.Close("test done")
	m := NewMachine(conn, Options{Logger: logging.Discard()})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := Run(ctx, conn, m); !errors.Is(err, ErrChannelClosed) {
		t.Fatalf("err = %v, want ErrChannelClosed", err)
	}
}

func TestRunCancelled(t *testing.T) {
	base, _ := scriptServer(t, []string{`{"HandshakeResult":{"IsOk":true}}`})
	conn := dialTagged(t, base)
	m := NewMachine(conn, Options{Logger: logging.Discard()})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()
	err := Run(ctx, conn, m)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if m.Phase() != PhaseTerminated {
		t.Fatalf("phase = %s", m.Phase())
	}
}
