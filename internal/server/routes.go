// Package server wires HTTP handlers into a ServeMux for the FleetLink
// application via routing helpers.
package server

import "net/http"

// SetupRoutes configures and returns an HTTP ServeMux with all application
// routes: health check, WebSocket endpoint, room creation, nearest-agent
// dispatch, and (when a rider store is configured) the rider CRUD surface.
// Both store arguments may be nil.
func SetupRoutes(hub *Hub, riders RiderStore, roomStore RoomStore) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", HealthHandler)
	mux.HandleFunc("/ws", NewWebSocketHandler(hub))
	mux.HandleFunc("POST /rooms", NewCreateRoomHandler(hub, roomStore))
	mux.HandleFunc("POST /dispatch", NewDispatchHandler(hub))
	if riders != nil {
		mux.HandleFunc("/riders", NewRiderCollectionHandler(riders, hub.log))
		mux.HandleFunc("/riders/", NewRiderHandler(riders, hub.log))
	}
	return mux
}
