package integration

import (
	"encoding/json"
	"testing"

	"github.com/fleetlink/fleetlink/internal/geo"
	"github.com/fleetlink/fleetlink/internal/server"
	"github.com/fleetlink/fleetlink/test/testhelpers"
)

func geoPoint(lat, long float64) geo.Point {
	return geo.Point{Lat: lat, Long: long}
}

// TestNearestAgentFailover runs the two-agent scenario: agent A announces at
// (1,1), agent B at (2,2); a query near (1.1,1.1) selects A; after A
// disconnects the same query selects B and can never again return A.
func TestNearestAgentFailover(t *testing.T) {
	hub := testhelpers.NewTestHub(t)
	ts := testhelpers.CreateTestServer(server.SetupRoutes(hub, nil, nil))
	defer ts.Close()

	connA := testhelpers.DialWebSocket(t, ts)
	testhelpers.SendEvent(t, connA, server.EventAgentAnnounce, map[string]any{
		"agentId":  "bus-a",
		"location": map[string]float64{"lat": 1, "long": 1},
	})
	testhelpers.WaitFor(t, eventTimeout, func() bool { return hub.AgentCount() == 1 },
		"agent A was never registered")

	connB := testhelpers.DialWebSocket(t, ts)
	testhelpers.SendEvent(t, connB, server.EventAgentAnnounce, map[string]any{
		"agentId":  "bus-b",
		"location": map[string]float64{"lat": 2, "long": 2},
	})
	testhelpers.WaitFor(t, eventTimeout, func() bool { return hub.AgentCount() == 2 },
		"agent B was never registered")

	target := geoPoint(1.1, 1.1)
	first, ok := hub.NearestAgent(target)
	if !ok {
		t.Fatal("no nearest agent with two located agents")
	}

	// The nearest id belongs to A: dispatch and confirm A receives it.
	resp := testhelpers.PostJSON(t, ts, "/dispatch", map[string]any{
		"location": map[string]float64{"lat": 1.1, "long": 1.1},
		"event":    "ping_nearest",
	})
	testhelpers.AssertStatusCode(t, resp, 200)
	testhelpers.WaitForEvent(t, connA, "ping_nearest", eventTimeout)

	// A disconnects; its record must be removed before the next query.
	_ = connA.Close()
	testhelpers.WaitFor(t, eventTimeout, func() bool { return hub.AgentCount() == 1 },
		"agent A was never removed after disconnect")

	second, ok := hub.NearestAgent(target)
	if !ok {
		t.Fatal("no nearest agent after A disconnected")
	}
	if second == first {
		t.Fatalf("nearest agent is still %s after its disconnect", first)
	}

	testhelpers.PostJSON(t, ts, "/dispatch", map[string]any{
		"location": map[string]float64{"lat": 1.1, "long": 1.1},
		"event":    "ping_nearest",
	})
	testhelpers.WaitForEvent(t, connB, "ping_nearest", eventTimeout)
}

// TestDispatchReportsNearestConnection verifies the dispatch response carries
// the selected connection id.
func TestDispatchReportsNearestConnection(t *testing.T) {
	hub := testhelpers.NewTestHub(t)
	ts := testhelpers.CreateTestServer(server.SetupRoutes(hub, nil, nil))
	defer ts.Close()

	conn := testhelpers.DialWebSocket(t, ts)
	testhelpers.SendEvent(t, conn, server.EventAgentAnnounce, map[string]any{
		"agentId":  "bus-1",
		"location": map[string]float64{"lat": 3, "long": 3},
	})
	testhelpers.WaitFor(t, eventTimeout, func() bool { return hub.AgentCount() == 1 },
		"agent was never registered")

	resp := testhelpers.PostJSON(t, ts, "/dispatch", map[string]any{
		"location": map[string]float64{"lat": 3, "long": 3},
	})
	testhelpers.AssertStatusCode(t, resp, 200)

	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decoding dispatch response: %v", err)
	}
	want, _ := hub.NearestAgent(geoPoint(3, 3))
	if body["connectionId"] != want {
		t.Errorf("connectionId = %q, want %q", body["connectionId"], want)
	}
}
