// Package rooms tracks which connections belong to which named rooms. The
// relation is stored in both directions so that a disconnect can remove every
// membership a connection held without scanning all rooms.
package rooms

import "sync"

// Memberships is a thread-safe many-to-many relation between connection ids
// and room names. Rooms exist only through their members: the first join
// creates a room implicitly and the last leave makes it vanish as a target.
type Memberships struct {
	mu     sync.RWMutex
	byRoom map[string]map[string]struct{}
	byConn map[string]map[string]struct{}
}

// New creates an empty membership relation.
func New() *Memberships {
	return &Memberships{
		byRoom: make(map[string]map[string]struct{}),
		byConn: make(map[string]map[string]struct{}),
	}
}

// Join adds a connection to a room and reports whether membership changed.
// Joining a room already joined is a no-op.
func (m *Memberships) Join(connectionID, room string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	members, ok := m.byRoom[room]
	if !ok {
		members = make(map[string]struct{})
		m.byRoom[room] = members
	}
	if _, joined := members[connectionID]; joined {
		return false
	}
	members[connectionID] = struct{}{}

	joinedRooms, ok := m.byConn[connectionID]
	if !ok {
		joinedRooms = make(map[string]struct{})
		m.byConn[connectionID] = joinedRooms
	}
	joinedRooms[room] = struct{}{}
	return true
}

// Leave removes a connection from a room and reports whether membership
// changed. Leaving a room never joined is a no-op.
func (m *Memberships) Leave(connectionID, room string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.leaveLocked(connectionID, room)
}

func (m *Memberships) leaveLocked(connectionID, room string) bool {
	members, ok := m.byRoom[room]
	if !ok {
		return false
	}
	if _, joined := members[connectionID]; !joined {
		return false
	}
	delete(members, connectionID)
	if len(members) == 0 {
		delete(m.byRoom, room)
	}

	if joinedRooms, ok := m.byConn[connectionID]; ok {
		delete(joinedRooms, room)
		if len(joinedRooms) == 0 {
			delete(m.byConn, connectionID)
		}
	}
	return true
}

// Members returns a snapshot of the connection ids currently in a room. An
// unknown room yields an empty slice.
func (m *Memberships) Members(room string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	members := m.byRoom[room]
	ids := make([]string, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	return ids
}

// Rooms returns a snapshot of the rooms a connection currently belongs to.
func (m *Memberships) Rooms(connectionID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	joined := m.byConn[connectionID]
	names := make([]string, 0, len(joined))
	for room := range joined {
		names = append(names, room)
	}
	return names
}

// RemoveConnection drops every membership the connection holds and returns
// the rooms it left. Called on disconnect so no room retains a dead member.
func (m *Memberships) RemoveConnection(connectionID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	joined := m.byConn[connectionID]
	left := make([]string, 0, len(joined))
	for room := range joined {
		left = append(left, room)
	}
	for _, room := range left {
		m.leaveLocked(connectionID, room)
	}
	return left
}
