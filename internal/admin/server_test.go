package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"droneops-scheduler/internal/logging"
	"droneops-scheduler/internal/record"
	"droneops-scheduler/internal/session"
)

type staticStatus session.Status

func (s staticStatus) Status() session.Status { return session.Status(s) }

type fakeRuns struct {
	rows  []record.RunRow
	err   error
	limit int
}

func (f *fakeRuns) Runs(_ context.Context, limit int) ([]record.RunRow, error) {
	f.limit = limit
	return f.rows, f.err
}

func testStatus() staticStatus {
	return staticStatus{RunID: "run-1", EntryName: "team", Phase: "Running", Ticks: 7, Launches: 3}
}

func TestHandleStatus(t *testing.T) {
	server := NewServer(testStatus(), nil, nil, logging.Discard())

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	w := httptest.NewRecorder()
	server.handleStatus(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status OK, got %v", resp.StatusCode)
	}
	var st session.Status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if st.RunID != "run-1" || st.Ticks != 7 || st.Phase != "Running" {
		t.Errorf("unexpected status: %+v", st)
	}
}

func TestHandleIndex(t *testing.T) {
	runs := &fakeRuns{rows: []record.RunRow{{RunID: "old-run", Outcome: record.OutcomeRejected, Error: "handshake rejected", StartedAt: time.Unix(0, 0)}}}
	server := NewServer(testStatus(), http.NotFoundHandler(), runs, logging.Discard())

	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected status OK, got %v", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{"run-1", "Running", "old-run", "rejected", `href="/metrics"`} {
		if !strings.Contains(body, want) {
			t.Errorf("index missing %q", want)
		}
	}

	w = httptest.NewRecorder()
	server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown path should 404, got %v", w.Code)
	}
}

func TestHandleIndexHistoryError(t *testing.T) {
	buf := &bytes.Buffer{}
	log := slog.New(slog.NewTextHandler(buf, nil))
	runs := &fakeRuns{err: errors.New("db locked")}
	server := NewServer(testStatus(), nil, runs, log)

	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("index should still render, got %v", w.Code)
	}
	if !strings.Contains(w.Body.String(), "history unavailable: db locked") {
		t.Errorf("history error not shown:\n%s", w.Body.String())
	}
	if !strings.Contains(buf.String(), "list runs failed") || !strings.Contains(buf.String(), "db locked") {
		t.Errorf("history error not logged: %s", buf.String())
	}
}

func TestHandleRuns(t *testing.T) {
	runs := &fakeRuns{}
	server := NewServer(testStatus(), nil, runs, logging.Discard())

	w := httptest.NewRecorder()
	server.handleRuns(w, httptest.NewRequest(http.MethodGet, "/runs?limit=3", nil))
	if w.Code != http.StatusOK || runs.limit != 3 {
		t.Fatalf("code = %v limit = %d", w.Code, runs.limit)
	}
	if strings.TrimSpace(w.Body.String()) != "[]" {
		t.Errorf("empty history should encode as [], got %s", w.Body.String())
	}

	runs.err = errors.New("db locked")
	w = httptest.NewRecorder()
	server.handleRuns(w, httptest.NewRequest(http.MethodGet, "/runs", nil))
	if w.Code != http.StatusInternalServerError || runs.limit != 20 {
		t.Errorf("code = %v limit = %d", w.Code, runs.limit)
	}

	noHistory := NewServer(testStatus(), nil, nil, logging.Discard())
	w = httptest.NewRecorder()
	noHistory.handleRuns(w, httptest.NewRequest(http.MethodGet, "/runs", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("runs without history should 404, got %v", w.Code)
	}
}

func TestMetricsAndHealthRoutes(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("scheduler_ticks_total 7\n"))
	})
	server := NewServer(testStatus(), metrics, nil, logging.Discard())

	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(w.Body.String(), "scheduler_ticks_total") {
		t.Errorf("metrics not served: %s", w.Body.String())
	}

	w = httptest.NewRecorder()
	server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK || w.Body.String() != "ok\n" {
		t.Errorf("healthz = %v %q", w.Code, w.Body.String())
	}
}

func TestStartStopsOnCancel(t *testing.T) {
	server := NewServer(testStatus(), nil, nil, logging.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- server.Start(ctx, "127.0.0.1:0") }()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			t.Fatalf("Start returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("server did not stop")
	}
}
