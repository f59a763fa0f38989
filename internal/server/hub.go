// Package server coordinates connection registration, room membership, agent
// tracking, and message fan-out for the FleetLink WebSocket system via the
// Hub type.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fleetlink/fleetlink/internal/geo"
	"github.com/fleetlink/fleetlink/internal/registry"
	"github.com/fleetlink/fleetlink/internal/rooms"
)

// Hub manages all WebSocket connections, the agent registry, and room
// membership. Clients are keyed by their transport-assigned connection id.
// Thread safety for the client map comes from a mutex; the registry and the
// membership relation carry their own locks.
type Hub struct {
	clients    map[string]*Client
	registry   *registry.Registry
	rooms      *rooms.Memberships
	register   chan *Client
	unregister chan *Client
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
	log        *slog.Logger
}

// NewHub creates and initializes a new Hub instance. A nil logger falls back
// to slog.Default(). The returned Hub is ready to manage connections once Run
// is started.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:    make(map[string]*Client),
		registry:   registry.New(),
		rooms:      rooms.New(),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		log:        logger,
	}
}

// GetRegisterChan returns the channel used for registering new clients to the hub.
// This channel is write-only from the caller's perspective.
func (h *Hub) GetRegisterChan() chan<- *Client {
	return h.register
}

// GetUnregisterChan returns the channel used for unregistering clients from the hub.
// This channel is write-only from the caller's perspective.
func (h *Hub) GetUnregisterChan() chan<- *Client {
	return h.unregister
}

// Run starts the hub's main event loop, handling client registration and
// unregistration. This method should be called in a separate goroutine as it
// runs until Shutdown.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				h.log.Warn("received nil client registration; skipping")
				continue
			}

			h.mutex.Lock()
			client.closed = false
			h.clients[client.id] = client
			clientCount := len(h.clients)
			h.mutex.Unlock()
			h.log.Info("connection opened", "conn_id", client.id, "addr", client.addr, "total", clientCount)

			h.wg.Add(2)
			go func() {
				defer h.wg.Done()
				client.writePump()
			}()
			go func() {
				defer h.wg.Done()
				client.readPump()
			}()

		case client := <-h.unregister:
			h.dropClient(client)
		}
	}
}

// dropClient removes a connection and everything attached to it: the client
// map entry, its agent record, and every room membership it held. Removal is
// unconditional; a closed connection never receives further events.
func (h *Hub) dropClient(client *Client) {
	h.mutex.Lock()
	if _, ok := h.clients[client.id]; !ok {
		h.mutex.Unlock()
		return
	}
	delete(h.clients, client.id)
	client.closed = true
	clientCount := len(h.clients)
	h.mutex.Unlock()
	// Close the channel after releasing the lock.
	close(client.send)

	if record, ok := h.registry.Remove(client.id); ok {
		h.log.Info("agent removed", "conn_id", client.id, "agent_id", record.AgentID)
	}
	if left := h.rooms.RemoveConnection(client.id); len(left) > 0 {
		h.log.Info("memberships cleared", "conn_id", client.id, "rooms", left)
	}
	h.log.Info("connection closed", "conn_id", client.id, "total", clientCount)
}

// handleEvent validates and dispatches a single inbound frame. Malformed
// payloads are logged and dropped; one bad event must never affect other
// connections.
func (h *Hub) handleEvent(c *Client, raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		h.log.Warn("malformed frame dropped", "conn_id", c.id, "error", err)
		return
	}

	switch env.Event {
	case EventAgentAnnounce:
		h.handleAnnounce(c, env.Data)
	case EventLocationUpdate:
		h.handleLocationUpdate(c, env.Data)
	case EventJoinRoom:
		if room, ok := h.decodeRoomName(c, env.Event, env.Data); ok {
			h.JoinRoom(c.id, room)
		}
	case EventLeaveRoom:
		if room, ok := h.decodeRoomName(c, env.Event, env.Data); ok {
			h.LeaveRoom(c.id, room)
		}
	case EventBroadcastToRoom:
		h.handleRoomBroadcast(c, env.Data)
	case EventGlobalMessage:
		h.BroadcastGlobal(EventGlobalMessage, env.Data)
	default:
		h.log.Warn("unknown event dropped", "conn_id", c.id, "event", env.Event)
	}
}

func (h *Hub) handleAnnounce(c *Client, data json.RawMessage) {
	var payload AnnouncePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		h.log.Warn("malformed announce dropped", "conn_id", c.id, "error", err)
		return
	}
	if payload.AgentID == "" {
		h.log.Warn("announce without agentId dropped", "conn_id", c.id)
		return
	}

	h.registry.Upsert(c.id, payload.AgentID, payload.Name, payload.Location)
	h.log.Info("agent announced", "conn_id", c.id, "agent_id", payload.AgentID, "located", payload.Location != nil)
}

func (h *Hub) handleLocationUpdate(c *Client, data json.RawMessage) {
	var payload LocationPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		h.log.Warn("malformed location update dropped", "conn_id", c.id, "error", err)
		return
	}
	if payload.Lat == nil || payload.Long == nil {
		h.log.Warn("location update missing coordinates dropped", "conn_id", c.id)
		return
	}

	h.registry.UpdateLocation(c.id, geo.Point{Lat: *payload.Lat, Long: *payload.Long})
}

func (h *Hub) handleRoomBroadcast(c *Client, data json.RawMessage) {
	var payload RoomBroadcastPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		h.log.Warn("malformed room broadcast dropped", "conn_id", c.id, "error", err)
		return
	}
	if payload.Room == "" || payload.Event == "" {
		h.log.Warn("room broadcast missing room or event dropped", "conn_id", c.id)
		return
	}

	h.BroadcastToRoom(payload.Room, payload.Event, payload.Data)
}

func (h *Hub) decodeRoomName(c *Client, event string, data json.RawMessage) (string, bool) {
	var room string
	if err := json.Unmarshal(data, &room); err != nil || room == "" {
		h.log.Warn("room event without a room name dropped", "conn_id", c.id, "event", event)
		return "", false
	}
	return room, true
}

// JoinRoom adds a connection to a room and notifies every current member,
// the joiner included. Joining an already-joined room is a no-op.
func (h *Hub) JoinRoom(connectionID, room string) {
	if !h.rooms.Join(connectionID, room) {
		return
	}
	h.log.Info("joined room", "conn_id", connectionID, "room", room)
	h.notifyRoom(room, fmt.Sprintf("%s joined room: %s", connectionID, room))
}

// LeaveRoom removes a connection from a room and notifies the remaining
// members. Leaving a room never joined is a no-op.
func (h *Hub) LeaveRoom(connectionID, room string) {
	if !h.rooms.Leave(connectionID, room) {
		return
	}
	h.log.Info("left room", "conn_id", connectionID, "room", room)
	h.notifyRoom(room, fmt.Sprintf("%s left room: %s", connectionID, room))
}

func (h *Hub) notifyRoom(room, message string) {
	payload, err := encodeEnvelope(EventRoomMessage, message)
	if err != nil {
		h.log.Error("encoding room notification failed", "room", room, "error", err)
		return
	}
	h.deliverToRoom(room, payload)
}

// CreateRoom announces a room to every connection via a global room_created
// event. Rooms exist only through membership, so this is a notification, not
// bookkeeping.
func (h *Hub) CreateRoom(room string) {
	raw, err := json.Marshal(map[string]string{"room": room})
	if err != nil {
		h.log.Error("encoding room_created failed", "room", room, "error", err)
		return
	}
	h.BroadcastGlobal(EventRoomCreated, raw)
	h.log.Info("room created", "room", room)
}

// BroadcastToRoom delivers data under the given event name to every current
// member of the room. A room with no members is a no-op, not an error.
func (h *Hub) BroadcastToRoom(room, event string, data json.RawMessage) {
	payload, err := json.Marshal(Envelope{Event: event, Data: data})
	if err != nil {
		h.log.Error("encoding room broadcast failed", "room", room, "event", event, "error", err)
		return
	}
	h.deliverToRoom(room, payload)
}

func (h *Hub) deliverToRoom(room string, payload []byte) {
	members := h.rooms.Members(room)
	if len(members) == 0 {
		return
	}

	var failed []*Client
	for _, id := range members {
		client := h.lookup(id)
		if client == nil {
			continue
		}
		if !h.safeSend(client, payload) {
			failed = append(failed, client)
		}
	}
	h.removeFailedClients(failed)
}

// BroadcastGlobal delivers data under the given event name to every open
// connection, room membership notwithstanding.
func (h *Hub) BroadcastGlobal(event string, data json.RawMessage) {
	payload, err := json.Marshal(Envelope{Event: event, Data: data})
	if err != nil {
		h.log.Error("encoding global broadcast failed", "event", event, "error", err)
		return
	}

	clients := h.clientSnapshot()
	h.log.Debug("broadcasting", "event", event, "targets", len(clients))

	var failed []*Client
	for _, client := range clients {
		if !h.safeSend(client, payload) {
			failed = append(failed, client)
		}
	}
	h.removeFailedClients(failed)
}

// Unicast delivers data under the given event name to a single connection.
// Delivery to a connection that has since closed is silently dropped; the
// return value reports whether the frame was queued.
func (h *Hub) Unicast(connectionID, event string, data json.RawMessage) bool {
	payload, err := json.Marshal(Envelope{Event: event, Data: data})
	if err != nil {
		h.log.Error("encoding unicast failed", "conn_id", connectionID, "event", event, "error", err)
		return false
	}

	client := h.lookup(connectionID)
	if client == nil {
		return false
	}
	return h.safeSend(client, payload)
}

// NearestAgent returns the connection id of the located agent closest to
// target, or false when no agent qualifies.
func (h *Hub) NearestAgent(target geo.Point) (string, bool) {
	return h.registry.Nearest(target)
}

// DispatchToNearest unicasts data to the agent nearest to target. An empty
// event name falls back to DefaultDispatchEvent. The nearest connection id is
// returned even when the frame is dropped; delivery is best-effort.
func (h *Hub) DispatchToNearest(target geo.Point, event string, data json.RawMessage) (string, bool) {
	if event == "" {
		event = DefaultDispatchEvent
	}

	connectionID, ok := h.NearestAgent(target)
	if !ok {
		return "", false
	}

	delivered := h.Unicast(connectionID, event, data)
	h.log.Info("dispatched to nearest agent", "conn_id", connectionID, "event", event, "delivered", delivered)
	return connectionID, true
}

// AgentCount reports the number of announced agents currently tracked.
func (h *Hub) AgentCount() int {
	return h.registry.Len()
}

func (h *Hub) lookup(connectionID string) *Client {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.clients[connectionID]
}

func (h *Hub) clientSnapshot() []*Client {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	return clients
}

func (h *Hub) safeSend(client *Client, payload []byte) bool {
	defer func() {
		if r := recover(); r != nil {
			h.log.Warn("recovered from panic in safeSend", "conn_id", client.id, "panic", r)
		}
	}()

	// Hold the lock during the entire send operation to prevent race conditions.
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	_, exists := h.clients[client.id]
	if !exists || client.closed {
		return false
	}

	// The channel might be closed concurrently, hence the recover above.
	select {
	case client.send <- payload:
		return true
	default:
		return false
	}
}

// removeFailedClients removes clients whose send buffers were full or closed
// and cleans up their registry and room state.
func (h *Hub) removeFailedClients(failed []*Client) {
	for _, client := range failed {
		h.log.Warn("dropping client with full send buffer", "conn_id", client.id)
		h.dropClient(client)
	}
}

// shutdownClients gracefully closes all active client connections. Dropping
// each client first closes its send channel so the write pump exits promptly
// instead of waiting out its ping ticker.
func (h *Hub) shutdownClients() {
	h.log.Info("shutting down all client connections")

	clients := h.clientSnapshot()
	for _, client := range clients {
		h.dropClient(client)
		if client.conn != nil {
			if err := client.conn.Close(); err != nil {
				if !isExpectedCloseError(err) {
					h.log.Warn("error closing client connection", "conn_id", client.id, "error", err)
				}
			}
		}
	}

	h.log.Info("closed client connections", "count", len(clients))
}

// Shutdown initiates graceful shutdown of the hub and waits for all goroutines
// to complete. It returns after all client connections are closed and
// goroutines have finished, or when the timeout is reached.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.log.Info("initiating hub shutdown")

	h.cancel()

	// Wait for Run() to complete.
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.log.Info("hub shutdown completed")
		return nil
	case <-time.After(timeout):
		h.log.Warn("hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
