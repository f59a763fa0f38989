// Package registry maintains the in-memory mapping from connection ids to
// tracked agents and answers nearest-agent queries over it.
package registry

import (
	"sync"

	"github.com/fleetlink/fleetlink/internal/geo"
)

// AgentRecord describes a tracked moving agent bound to a single connection.
// Location is nil until the agent's first location report arrives; records
// without a location are excluded from nearest-agent queries.
type AgentRecord struct {
	AgentID  string
	Name     string
	Location *geo.Point
}

// Entry pairs a connection id with its agent record in a snapshot.
type Entry struct {
	ConnectionID string
	Record       AgentRecord
}

// Registry is the hub-owned agent store. All mutations and snapshot reads are
// serialized by a single mutex; callers never observe the live map directly,
// only point-in-time copies via Snapshot. Snapshots preserve insertion order
// so that Nearest tie-breaking is deterministic.
type Registry struct {
	mu      sync.Mutex
	records map[string]AgentRecord
	order   []string
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		records: make(map[string]AgentRecord),
	}
}

// Upsert creates or wholesale-replaces the record for a connection. A nil
// location keeps the previously reported location if the connection already
// had a record; on a first announce with no location the record simply has
// none. Overwriting is never an error.
func (r *Registry) Upsert(connectionID, agentID, name string, location *geo.Point) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, exists := r.records[connectionID]
	record := AgentRecord{AgentID: agentID, Name: name}
	if location != nil {
		loc := *location
		record.Location = &loc
	} else if exists {
		record.Location = prev.Location
	}

	if !exists {
		r.order = append(r.order, connectionID)
	}
	r.records[connectionID] = record
}

// UpdateLocation replaces the reported location for a connection. An update
// for a connection that never announced is silently ignored; telemetry for
// unknown senders must not create phantom records.
func (r *Registry) UpdateLocation(connectionID string, location geo.Point) {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[connectionID]
	if !ok {
		return
	}
	loc := location
	record.Location = &loc
	r.records[connectionID] = record
}

// Remove deletes the record for a connection and returns it along with
// whether one existed.
func (r *Registry) Remove(connectionID string) (AgentRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[connectionID]
	if !ok {
		return AgentRecord{}, false
	}
	delete(r.records, connectionID)
	for i, id := range r.order {
		if id == connectionID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return record, true
}

// Snapshot returns a point-in-time copy of the registry in insertion order.
// The copy is detached from the live map, so callers may iterate it while
// concurrent mutations proceed.
func (r *Registry) Snapshot() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := make([]Entry, 0, len(r.order))
	for _, id := range r.order {
		record := r.records[id]
		if record.Location != nil {
			loc := *record.Location
			record.Location = &loc
		}
		entries = append(entries, Entry{ConnectionID: id, Record: record})
	}
	return entries
}

// Len reports the number of tracked connections.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}
