package livesync

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"scribedesk/internal/platform/logging"
)

type hintRecorder struct {
	mu         sync.Mutex
	sessions   int
	settings   int
	units      []string
	revisions  []string
	connection []bool
}

func (r *hintRecorder) handlers() Handlers {
	return Handlers{
		SessionsChanged: func() { r.mu.Lock(); r.sessions++; r.mu.Unlock() },
		SettingsChanged: func() { r.mu.Lock(); r.settings++; r.mu.Unlock() },
		UnitsChanged: func(id string) {
			r.mu.Lock()
			r.units = append(r.units, id)
			r.mu.Unlock()
		},
		RevisionsChanged: func(id string) {
			r.mu.Lock()
			r.revisions = append(r.revisions, id)
			r.mu.Unlock()
		},
		ConnectionChanged: func(live bool) {
			r.mu.Lock()
			r.connection = append(r.connection, live)
			r.mu.Unlock()
		},
	}
}

func (r *hintRecorder) unitCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.units)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestDispatchRoutesEnvelopes(t *testing.T) {
	t.Parallel()

	rec := &hintRecorder{}
	h := rec.handlers()
	messages := []string{
		`{"type":"session_created","payload":{}}`,
		`{"type":"session_deleted","payload":{"session_id":"s1"}}`,
		`{"type":"block_created","payload":{"session_id":"s1","block_id":"b1"}}`,
		`{"type":"block_updated","payload":{"block_id":"b2"}}`,
		`{"type":"block_deleted","payload":{"session_id":"s2"}}`,
		`{"type":"revision_created","payload":{"session_id":"s1"}}`,
		`{"type":"settings_updated","payload":{}}`,
		`{"type":"something_new","payload":{"session_id":"s1"}}`,
	}
	for _, m := range messages {
		if err := Dispatch([]byte(m), h); err != nil {
			t.Fatalf("unexpected error for %s: %v", m, err)
		}
	}

	if rec.sessions != 2 {
		t.Fatalf("expected 2 session hints, got %d", rec.sessions)
	}
	if rec.settings != 1 {
		t.Fatalf("expected 1 settings hint, got %d", rec.settings)
	}
	if strings.Join(rec.units, ",") != "s1,s2" {
		t.Fatalf("unexpected unit hints: %v", rec.units)
	}
	if strings.Join(rec.revisions, ",") != "s1" {
		t.Fatalf("unexpected revision hints: %v", rec.revisions)
	}
}

func TestDispatchRejectsMalformedPayload(t *testing.T) {
	t.Parallel()

	if err := Dispatch([]byte("not json"), Handlers{}); err == nil {
		t.Fatalf("expected malformed envelope error")
	}
}

func TestDeriveURL(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"":                          "ws://localhost:8000/ws",
		"http://localhost:8000/":    "ws://localhost:8000/ws",
		"https://api.example.com":   "wss://api.example.com/ws",
		"https://api.example.com/x": "wss://api.example.com/x/ws",
	}
	for in, want := range cases {
		got, err := DeriveURL(in)
		if err != nil {
			t.Fatalf("DeriveURL(%q) error: %v", in, err)
		}
		if got != want {
			t.Fatalf("DeriveURL(%q) = %q, want %q", in, got, want)
		}
	}

	if _, err := DeriveURL("ftp://example.com"); err == nil {
		t.Fatalf("expected unsupported scheme error")
	}
}

func TestTransportDispatchesAndReconnects(t *testing.T) {
	t.Parallel()

	upgrader := websocket.Upgrader{}
	var connections atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		n := connections.Add(1)
		_ = conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"type":"block_updated","payload":{"session_id":"s1"}}`))
		if n == 1 {
			// Drop the first connection abruptly to force a reconnect.
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	rec := &hintRecorder{}
	transport := NewTransport(Config{
		URL:            "ws" + strings.TrimPrefix(srv.URL, "http"),
		ReconnectDelay: 20 * time.Millisecond,
	}, rec.handlers(), logging.Nop())

	transport.Start(context.Background())
	waitFor(t, "second connection", func() bool { return connections.Load() >= 2 && rec.unitCount() >= 2 })
	waitFor(t, "live state", transport.Live)

	if err := transport.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if transport.Live() {
		t.Fatalf("expected transport to be offline after close")
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.connection) < 3 || !rec.connection[0] || rec.connection[1] {
		t.Fatalf("unexpected connection transitions: %v", rec.connection)
	}
	if rec.connection[len(rec.connection)-1] {
		t.Fatalf("expected final transition to offline: %v", rec.connection)
	}
}

func TestTransportRetriesUnreachableServer(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	transport := NewTransport(Config{
		URL:            "ws" + strings.TrimPrefix(srv.URL, "http"),
		ReconnectDelay: 10 * time.Millisecond,
	}, Handlers{}, logging.Nop())

	transport.Start(context.Background())
	waitFor(t, "repeated attempts", func() bool { return attempts.Load() >= 3 })
	_ = transport.Close()

	if transport.LastError() == nil {
		t.Fatalf("expected last error to be recorded")
	}
	if transport.Live() {
		t.Fatalf("transport should never have been live")
	}
}

func TestNewTransportDefaults(t *testing.T) {
	t.Parallel()

	transport := NewTransport(Config{URL: "ws://localhost/ws"}, Handlers{}, nil)
	if transport.cfg.ReconnectDelay != DefaultReconnectDelay {
		t.Fatalf("unexpected reconnect delay: %s", transport.cfg.ReconnectDelay)
	}
	if err := transport.Close(); err != nil {
		t.Fatalf("close of idle transport: %v", err)
	}
}
