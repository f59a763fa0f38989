// Package server exposes HTTP handlers: the WebSocket upgrade, health check,
// room creation, and nearest-agent dispatch.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/fleetlink/fleetlink/internal/geo"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     checkOrigin,
}

// RoomStore is the durable room repository the room-creation handler writes
// through. The hub itself never touches it.
type RoomStore interface {
	Add(ctx context.Context, roomID string, fields map[string]string) (bool, error)
}

// RiderStore is the durable rider repository backing the rider CRUD surface.
type RiderStore interface {
	Save(ctx context.Context, riderID string, fields map[string]string) error
	Get(ctx context.Context, riderID string) (map[string]string, bool, error)
	Delete(ctx context.Context, riderID string) (bool, error)
	All(ctx context.Context) (map[string]map[string]string, error)
}

// NewWebSocketHandler returns the handler for WebSocket upgrade requests. It
// validates the method, upgrades the connection, assigns the opaque
// connection id, and registers the client; the hub launches the pumps.
func NewWebSocketHandler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			hub.log.Warn("websocket upgrade failed", "addr", r.RemoteAddr, "error", err)
			return
		}

		client := NewClient(uuid.NewString(), conn, hub, r.RemoteAddr)
		hub.register <- client
	}
}

// HealthHandler provides a simple health check endpoint that returns server status.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte("FleetLink server is running!"))
}

// dispatchRequest is the body of POST /dispatch.
type dispatchRequest struct {
	Location *LocationPayload `json:"location"`
	Event    string           `json:"event,omitempty"`
	Data     json.RawMessage  `json:"data,omitempty"`
}

// NewDispatchHandler returns the handler for POST /dispatch, which unicasts a
// payload to the agent nearest the requested location.
func NewDispatchHandler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req dispatchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if req.Location == nil || req.Location.Lat == nil || req.Location.Long == nil {
			http.Error(w, "location with lat and long is required", http.StatusBadRequest)
			return
		}

		target := geo.Point{Lat: *req.Location.Lat, Long: *req.Location.Long}
		connectionID, ok := hub.DispatchToNearest(target, req.Event, req.Data)
		if !ok {
			http.Error(w, "no located agent available", http.StatusNotFound)
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{"connectionId": connectionID})
	}
}

// NewCreateRoomHandler returns the handler for POST /rooms. The room is
// announced globally via room_created and, when a store is configured,
// persisted best-effort: a store failure is logged, never surfaced, so the
// hub's event processing stays unaffected.
func NewCreateRoomHandler(hub *Hub, store RoomStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Room string `json:"room"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Room == "" {
			http.Error(w, "room is required", http.StatusBadRequest)
			return
		}

		hub.CreateRoom(req.Room)

		if store != nil {
			if _, err := store.Add(r.Context(), req.Room, map[string]string{"id": req.Room}); err != nil {
				hub.log.Warn("persisting room failed", "room", req.Room, "error", err)
			}
		}

		writeJSON(w, http.StatusCreated, map[string]string{"room": req.Room})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Warn("error writing JSON response", "error", err)
	}
}
