// Package server defines the wire envelope and per-event payload types
// exchanged with clients, plus shared helpers reused across client and hub
// logic.
package server

import (
	"encoding/json"
	"strings"

	"github.com/fleetlink/fleetlink/internal/geo"
)

// Inbound event names accepted from the transport layer.
const (
	EventAgentAnnounce   = "agent_announce"
	EventLocationUpdate  = "location_update"
	EventJoinRoom        = "join_room"
	EventLeaveRoom       = "leave_room"
	EventBroadcastToRoom = "broadcast_to_room"
	EventGlobalMessage   = "global_message"
)

// Outbound event names emitted by the hub.
const (
	EventRoomCreated = "room_created"
	EventRoomMessage = "room_message"

	// DefaultDispatchEvent is used when dispatching a payload to the nearest
	// agent and the caller did not name an event.
	DefaultDispatchEvent = "new_shipment"
)

// Envelope is the JSON frame every message travels in, inbound and outbound.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// AnnouncePayload is the data of an agent_announce event. AgentID is
// required; Name and Location are optional.
type AnnouncePayload struct {
	AgentID  string     `json:"agentId"`
	Name     string     `json:"name,omitempty"`
	Location *geo.Point `json:"location,omitempty"`
}

// LocationPayload is the data of a location_update event. Both coordinates
// are required; pointers distinguish an absent field from a legitimate zero.
type LocationPayload struct {
	Lat  *float64 `json:"lat"`
	Long *float64 `json:"long"`
}

// RoomBroadcastPayload is the data of a broadcast_to_room event.
type RoomBroadcastPayload struct {
	Room  string          `json:"room"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// encodeEnvelope marshals an outbound frame.
func encodeEnvelope(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
