package unit

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fleetlink/fleetlink/internal/server"
)

// TestHealthHandler verifies the health endpoint responds with plain text.
func TestHealthHandler(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()

	server.HealthHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/plain" {
		t.Errorf("Content-Type = %q, want text/plain", ct)
	}
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "running") {
		t.Errorf("unexpected body: %s", body)
	}
}

// TestDispatchHandlerBadRequest verifies malformed and incomplete dispatch
// requests are rejected with 400.
func TestDispatchHandlerBadRequest(t *testing.T) {
	hub := newQuietHub()
	go hub.Run()
	defer func() { _ = hub.Shutdown(time.Second) }()
	handler := server.NewDispatchHandler(hub)

	bodies := []string{
		`{not json`,
		`{}`,
		`{"location":{}}`,
		`{"location":{"lat":1}}`,
	}
	for _, body := range bodies {
		req := httptest.NewRequest(http.MethodPost, "/dispatch", strings.NewReader(body))
		rec := httptest.NewRecorder()
		handler(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want %d", body, rec.Code, http.StatusBadRequest)
		}
	}
}

// TestDispatchHandlerNoAgents verifies dispatch against an empty hub returns
// 404 rather than an error.
func TestDispatchHandlerNoAgents(t *testing.T) {
	hub := newQuietHub()
	go hub.Run()
	defer func() { _ = hub.Shutdown(time.Second) }()
	handler := server.NewDispatchHandler(hub)

	req := httptest.NewRequest(http.MethodPost, "/dispatch", strings.NewReader(`{"location":{"lat":1,"long":1}}`))
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

// TestCreateRoomHandlerValidation verifies the room name is required.
func TestCreateRoomHandlerValidation(t *testing.T) {
	hub := newQuietHub()
	go hub.Run()
	defer func() { _ = hub.Shutdown(time.Second) }()
	handler := server.NewCreateRoomHandler(hub, nil)

	for _, body := range []string{`{}`, `{"room":""}`, `broken`} {
		req := httptest.NewRequest(http.MethodPost, "/rooms", strings.NewReader(body))
		rec := httptest.NewRecorder()
		handler(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want %d", body, rec.Code, http.StatusBadRequest)
		}
	}

	req := httptest.NewRequest(http.MethodPost, "/rooms", strings.NewReader(`{"room":"depot"}`))
	rec := httptest.NewRecorder()
	handler(rec, req)
	if rec.Code != http.StatusCreated {
		t.Errorf("valid room: status = %d, want %d", rec.Code, http.StatusCreated)
	}
}

// fakeRiderStore is an in-memory RiderStore for exercising the rider CRUD
// handlers without a real store.
type fakeRiderStore struct {
	riders map[string]map[string]string
}

func newFakeRiderStore() *fakeRiderStore {
	return &fakeRiderStore{riders: make(map[string]map[string]string)}
}

func (f *fakeRiderStore) Save(_ context.Context, riderID string, fields map[string]string) error {
	merged := f.riders[riderID]
	if merged == nil {
		merged = make(map[string]string)
	}
	for k, v := range fields {
		merged[k] = v
	}
	f.riders[riderID] = merged
	return nil
}

func (f *fakeRiderStore) Get(_ context.Context, riderID string) (map[string]string, bool, error) {
	fields, ok := f.riders[riderID]
	return fields, ok, nil
}

func (f *fakeRiderStore) Delete(_ context.Context, riderID string) (bool, error) {
	if _, ok := f.riders[riderID]; !ok {
		return false, nil
	}
	delete(f.riders, riderID)
	return true, nil
}

func (f *fakeRiderStore) All(_ context.Context) (map[string]map[string]string, error) {
	return f.riders, nil
}

// TestRiderHandlers walks the rider CRUD surface against an in-memory store.
func TestRiderHandlers(t *testing.T) {
	store := newFakeRiderStore()
	collection := server.NewRiderCollectionHandler(store, nil)
	item := server.NewRiderHandler(store, nil)

	// Create.
	req := httptest.NewRequest(http.MethodPost, "/riders",
		strings.NewReader(`{"id":"r1","fields":{"lat":"10","long":"20","address":"Main St"}}`))
	rec := httptest.NewRecorder()
	collection(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status = %d, want %d", rec.Code, http.StatusCreated)
	}

	// Fetch.
	req = httptest.NewRequest(http.MethodGet, "/riders/r1", nil)
	rec = httptest.NewRecorder()
	item(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("get: status = %d, want %d", rec.Code, http.StatusOK)
	}
	var fields map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&fields); err != nil {
		t.Fatalf("decoding rider: %v", err)
	}
	if fields["address"] != "Main St" {
		t.Errorf("address = %q, want Main St", fields["address"])
	}

	// List.
	req = httptest.NewRequest(http.MethodGet, "/riders", nil)
	rec = httptest.NewRecorder()
	collection(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: status = %d, want %d", rec.Code, http.StatusOK)
	}

	// Delete, then verify absence.
	req = httptest.NewRequest(http.MethodDelete, "/riders/r1", nil)
	rec = httptest.NewRecorder()
	item(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete: status = %d, want %d", rec.Code, http.StatusNoContent)
	}

	req = httptest.NewRequest(http.MethodGet, "/riders/r1", nil)
	rec = httptest.NewRecorder()
	item(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete: status = %d, want %d", rec.Code, http.StatusNotFound)
	}

	req = httptest.NewRequest(http.MethodDelete, "/riders/r1", nil)
	rec = httptest.NewRecorder()
	item(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("delete after delete: status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}
