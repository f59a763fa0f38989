// Package testhelpers provides common utilities and helper functions for
// testing the FleetLink server.
//
// This package contains reusable test utilities that are shared across unit
// and integration tests: spinning up test servers, dialing WebSocket
// connections, sending event envelopes, and waiting for specific events in
// the outbound stream.
package testhelpers

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fleetlink/fleetlink/internal/server"
)

// CreateTestServer creates a test HTTP server with the given handler.
// It returns a running httptest.Server that should be closed after use.
func CreateTestServer(handler http.Handler) *httptest.Server {
	return httptest.NewServer(handler)
}

// NewTestHub prepares a hub with a quiet logger and permissive origins for
// test servers, starts its run loop, and registers cleanup.
func NewTestHub(t *testing.T) *server.Hub {
	t.Helper()

	server.SetConfig(&server.Config{AllowedOrigins: []string{"*"}})
	t.Cleanup(func() { server.SetConfig(nil) })

	hub := server.NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
	go hub.Run()
	t.Cleanup(func() {
		if err := hub.Shutdown(2 * time.Second); err != nil {
			t.Logf("hub shutdown: %v", err)
		}
	})
	return hub
}

// DialWebSocket connects a websocket client to the test server's /ws
// endpoint, sending the server's own URL as the Origin header.
func DialWebSocket(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	header := http.Header{"Origin": {ts.URL}}

	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("dialing %s: %v", url, err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// SendEvent marshals and writes an event envelope on the connection.
func SendEvent(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()

	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshaling %s data: %v", event, err)
	}
	frame, err := json.Marshal(server.Envelope{Event: event, Data: raw})
	if err != nil {
		t.Fatalf("marshaling %s envelope: %v", event, err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		t.Fatalf("writing %s: %v", event, err)
	}
}

// WaitForEvent reads the outbound stream until an envelope with the given
// event name arrives or the timeout expires. Coalesced newline-separated
// frames are split before matching; unrelated events are skipped.
func WaitForEvent(t *testing.T, conn *websocket.Conn, event string, timeout time.Duration) server.Envelope {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for {
		if err := conn.SetReadDeadline(deadline); err != nil {
			t.Fatalf("setting read deadline: %v", err)
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for %q: %v", event, err)
		}

		for _, frame := range bytes.Split(msg, []byte{'\n'}) {
			if len(frame) == 0 {
				continue
			}
			var env server.Envelope
			if err := json.Unmarshal(frame, &env); err != nil {
				t.Fatalf("unmarshaling frame %q: %v", frame, err)
			}
			if env.Event == event {
				return env
			}
		}
	}
}

// AssertNoEvent reads the outbound stream for the given duration and fails if
// an envelope with the event name arrives. Unrelated events are ignored.
func AssertNoEvent(t *testing.T, conn *websocket.Conn, event string, window time.Duration) {
	t.Helper()

	deadline := time.Now().Add(window)
	for {
		if err := conn.SetReadDeadline(deadline); err != nil {
			t.Fatalf("setting read deadline: %v", err)
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			// Timing out means the event never showed up.
			return
		}

		for _, frame := range bytes.Split(msg, []byte{'\n'}) {
			if len(frame) == 0 {
				continue
			}
			var env server.Envelope
			if err := json.Unmarshal(frame, &env); err != nil {
				continue
			}
			if env.Event == event {
				t.Fatalf("received unexpected %q event: %s", event, env.Data)
			}
		}
	}
}

// WaitFor polls the condition until it holds or the timeout expires.
func WaitFor(t *testing.T, timeout time.Duration, condition func() bool, message string) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(message)
}

// AssertStatusCode checks if the HTTP response has the expected status code.
func AssertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("Expected status code %d, got %d", expected, resp.StatusCode)
	}
}

// PostJSON sends a JSON POST request to the test server and returns the
// response. The response body is closed via test cleanup.
func PostJSON(t *testing.T, ts *httptest.Server, path string, body any) *http.Response {
	t.Helper()

	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshaling request body: %v", err)
	}

	resp, err := ts.Client().Post(ts.URL+path, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}
