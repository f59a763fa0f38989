package registry

import (
	"fmt"
	"sync"
	"testing"

	"github.com/fleetlink/fleetlink/internal/geo"
)

// TestUpsertCreatesRecord verifies that announcing an agent creates a record
// retrievable via Snapshot.
func TestUpsertCreatesRecord(t *testing.T) {
	r := New()
	r.Upsert("c1", "bus1", "Bus One", &geo.Point{Lat: 10, Long: 10})

	entries := r.Snapshot()
	if len(entries) != 1 {
		t.Fatalf("Snapshot() returned %d entries, want 1", len(entries))
	}
	entry := entries[0]
	if entry.ConnectionID != "c1" || entry.Record.AgentID != "bus1" || entry.Record.Name != "Bus One" {
		t.Errorf("unexpected entry: %+v", entry)
	}
	if entry.Record.Location == nil || entry.Record.Location.Lat != 10 {
		t.Errorf("unexpected location: %+v", entry.Record.Location)
	}
}

// TestUpsertWithoutLocationKeepsPrevious verifies that a re-announce with no
// location preserves the previously reported location, while a first announce
// with no location yields a record without one.
func TestUpsertWithoutLocationKeepsPrevious(t *testing.T) {
	r := New()

	r.Upsert("c1", "bus1", "Bus One", nil)
	if loc := r.Snapshot()[0].Record.Location; loc != nil {
		t.Fatalf("first announce without location produced location %+v", loc)
	}

	r.Upsert("c1", "bus1", "Bus One", &geo.Point{Lat: 1, Long: 2})
	r.Upsert("c1", "bus1-renamed", "Bus One R", nil)

	entry := r.Snapshot()[0]
	if entry.Record.AgentID != "bus1-renamed" {
		t.Errorf("AgentID = %q, want wholesale replacement", entry.Record.AgentID)
	}
	if entry.Record.Location == nil || entry.Record.Location.Lat != 1 || entry.Record.Location.Long != 2 {
		t.Errorf("re-announce without location lost previous location: %+v", entry.Record.Location)
	}
}

// TestUpdateLocationUnknownConnection verifies the permissive no-op: a
// location update for a connection that never announced must not create a
// record.
func TestUpdateLocationUnknownConnection(t *testing.T) {
	r := New()
	r.UpdateLocation("ghost", geo.Point{Lat: 5, Long: 5})

	if n := r.Len(); n != 0 {
		t.Errorf("Len() = %d after update for unknown connection, want 0", n)
	}
}

// TestUpdateLocationReplaces verifies that a location update replaces rather
// than merges the previous coordinates.
func TestUpdateLocationReplaces(t *testing.T) {
	r := New()
	r.Upsert("c1", "bus1", "", &geo.Point{Lat: 1, Long: 1})
	r.UpdateLocation("c1", geo.Point{Lat: 9, Long: 9})

	loc := r.Snapshot()[0].Record.Location
	if loc == nil || loc.Lat != 9 || loc.Long != 9 {
		t.Errorf("location after update = %+v, want {9 9}", loc)
	}
}

// TestRemove verifies removal returns the prior record and that removing an
// unknown connection reports absence.
func TestRemove(t *testing.T) {
	r := New()
	r.Upsert("c1", "bus1", "Bus One", &geo.Point{Lat: 10, Long: 10})

	record, ok := r.Remove("c1")
	if !ok || record.AgentID != "bus1" {
		t.Fatalf("Remove(c1) = %+v, %v; want bus1 record", record, ok)
	}
	if _, ok := r.Remove("c1"); ok {
		t.Error("second Remove(c1) reported a record")
	}
	if n := r.Len(); n != 0 {
		t.Errorf("Len() = %d after remove, want 0", n)
	}
}

// TestNearestEmptyRegistry verifies that an empty registry, including one
// emptied by a remove, yields no nearest agent.
func TestNearestEmptyRegistry(t *testing.T) {
	r := New()
	if _, ok := r.Nearest(geo.Point{Lat: 10, Long: 10}); ok {
		t.Error("Nearest over empty registry reported a result")
	}

	r.Upsert("c1", "bus1", "Bus One", &geo.Point{Lat: 10, Long: 10})
	r.Remove("c1")
	if id, ok := r.Nearest(geo.Point{Lat: 10, Long: 10}); ok {
		t.Errorf("Nearest after remove returned %q", id)
	}
}

// TestNearestSkipsLocationless verifies agents that never reported a location
// are excluded from the scan.
func TestNearestSkipsLocationless(t *testing.T) {
	r := New()
	r.Upsert("c1", "bus1", "", nil)
	if _, ok := r.Nearest(geo.Point{}); ok {
		t.Error("Nearest returned an agent with no location")
	}

	r.Upsert("c2", "bus2", "", &geo.Point{Lat: 3, Long: 3})
	id, ok := r.Nearest(geo.Point{})
	if !ok || id != "c2" {
		t.Errorf("Nearest = %q, %v; want c2", id, ok)
	}
}

// TestNearestPicksMinimum places three agents at increasing proximity and
// expects the closest one regardless of insertion order.
func TestNearestPicksMinimum(t *testing.T) {
	r := New()
	// Roughly 5, 2 and 1 km north of the query point.
	r.Upsert("far", "bus1", "", &geo.Point{Lat: 0.045, Long: 0})
	r.Upsert("mid", "bus2", "", &geo.Point{Lat: 0.018, Long: 0})
	r.Upsert("near", "bus3", "", &geo.Point{Lat: 0.009, Long: 0})

	id, ok := r.Nearest(geo.Point{Lat: 0, Long: 0})
	if !ok || id != "near" {
		t.Errorf("Nearest = %q, %v; want near", id, ok)
	}
}

// TestNearestTieBreaksByInsertionOrder verifies the deterministic tie-break:
// two agents at exactly equal distance resolve to the one announced first.
func TestNearestTieBreaksByInsertionOrder(t *testing.T) {
	r := New()
	r.Upsert("announced-first", "bus1", "", &geo.Point{Lat: 0, Long: 1})
	r.Upsert("announced-second", "bus2", "", &geo.Point{Lat: 0, Long: -1})

	id, ok := r.Nearest(geo.Point{Lat: 0, Long: 0})
	if !ok || id != "announced-first" {
		t.Errorf("Nearest tie = %q, %v; want the first-inserted agent", id, ok)
	}
}

// TestSnapshotDetached verifies the snapshot is isolated from later mutation.
func TestSnapshotDetached(t *testing.T) {
	r := New()
	r.Upsert("c1", "bus1", "", &geo.Point{Lat: 1, Long: 1})

	snap := r.Snapshot()
	r.UpdateLocation("c1", geo.Point{Lat: 50, Long: 50})
	r.Remove("c1")

	if len(snap) != 1 {
		t.Fatalf("snapshot length changed to %d", len(snap))
	}
	if snap[0].Record.Location.Lat != 1 {
		t.Errorf("snapshot location mutated: %+v", snap[0].Record.Location)
	}
}

// TestConcurrentAccess hammers the registry from concurrent writers and
// snapshot readers to surface data races under the race detector.
func TestConcurrentAccess(t *testing.T) {
	r := New()
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := fmt.Sprintf("c%d", n)
			for j := 0; j < 100; j++ {
				r.Upsert(id, "bus", "", &geo.Point{Lat: float64(j), Long: float64(n)})
				r.UpdateLocation(id, geo.Point{Lat: float64(n), Long: float64(j)})
				r.Nearest(geo.Point{})
				if j%10 == 0 {
					r.Remove(id)
				}
			}
		}(i)
	}

	wg.Wait()
}
