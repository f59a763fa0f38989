package registry

import "github.com/fleetlink/fleetlink/internal/geo"

// Nearest returns the connection id of the agent closest to target, or false
// when the registry is empty or no agent has reported a location yet.
//
// The scan runs over a snapshot, so a slow query never blocks incoming
// location updates. Comparison is strict less-than over insertion order, so
// the earliest-announced agent wins exact distance ties; callers must not
// assume any geometric tie-breaking.
func (r *Registry) Nearest(target geo.Point) (string, bool) {
	nearest := ""
	found := false
	minDistance := 0.0

	for _, entry := range r.Snapshot() {
		if entry.Record.Location == nil {
			continue
		}
		distance := geo.DistanceKm(target, *entry.Record.Location)
		if !found || distance < minDistance {
			nearest = entry.ConnectionID
			minDistance = distance
			found = true
		}
	}

	return nearest, found
}
