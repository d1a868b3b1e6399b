package graph

import (
	"fmt"
	"reflect"
	"testing"
)

func mustAddNode(t *testing.T, e *Engine, id string, typ NodeType, anomaly float64) {
	t.Helper()
	if err := e.AddNode(id, typ, &NodeAttrs{AnomalyScore: &anomaly}); err != nil {
		t.Fatalf("AddNode(%s): %v", id, err)
	}
}

func mustAddEdge(t *testing.T, e *Engine, source, target string, typ EdgeType) {
	t.Helper()
	if err := e.AddEdge(source, target, typ); err != nil {
		t.Fatalf("AddEdge(%s, %s): %v", source, target, err)
	}
}

func TestFindHighestRiskPathDirect(t *testing.T) {
	e := NewEngine()
	mustAddNode(t, e, "attacker", NodeRemoteServer, 0.8)
	mustAddNode(t, e, "victim", NodeMachine, 0.9)
	mustAddEdge(t, e, "attacker", "victim", EdgeNetworkConnection)

	e.PropagateRisk(0.7)

	got := e.FindHighestRiskPath()
	if !reflect.DeepEqual(got, []string{"attacker", "victim"}) {
		t.Fatalf("unexpected path %v", got)
	}
}

func TestFindHighestRiskPathPrefersHigherTotal(t *testing.T) {
	e := NewEngine()
	mustAddNode(t, e, "entry", NodeExternalIP, 0.6)
	mustAddNode(t, e, "hop", NodeProcess, 0.8)
	mustAddNode(t, e, "victim", NodeMachine, 0.9)
	mustAddEdge(t, e, "entry", "victim", EdgeNetworkConnection)
	mustAddEdge(t, e, "entry", "hop", EdgeNetworkConnection)
	mustAddEdge(t, e, "hop", "victim", EdgeProcessSpawn)

	e.PropagateRisk(0.7)

	// The detour through the hop accumulates more total risk than the
	// direct edge, so the longer path wins.
	got := e.FindHighestRiskPath()
	if !reflect.DeepEqual(got, []string{"entry", "hop", "victim"}) {
		t.Fatalf("unexpected path %v", got)
	}
}

func TestFindHighestRiskPathTieTakesShorter(t *testing.T) {
	e := NewEngine()
	mustAddNode(t, e, "entry", NodeRemoteServer, 0.8)
	mustAddNode(t, e, "relay", NodeProcess, 0)
	mustAddNode(t, e, "victim", NodeMachine, 0.9)
	mustAddEdge(t, e, "entry", "victim", EdgeNetworkConnection)
	mustAddEdge(t, e, "entry", "relay", EdgeNetworkConnection)
	mustAddEdge(t, e, "relay", "victim", EdgeNetworkConnection)

	e.PropagateRisk(0.7)

	// Zero the relay so both routes carry the same total risk.
	relay, _ := e.Lookup("relay")
	if relay.RiskScore == 0 {
		t.Fatalf("expected propagated relay risk for setup")
	}
	e.mu.Lock()
	e.nodes["relay"].RiskScore = 0
	e.mu.Unlock()

	got := e.FindHighestRiskPath()
	if !reflect.DeepEqual(got, []string{"entry", "victim"}) {
		t.Fatalf("expected the two-node path on a tie, got %v", got)
	}
}

func TestFindHighestRiskPathFallbackCandidates(t *testing.T) {
	e := NewEngine()
	// No remote_server or external_ip nodes and no hot machine: both
	// candidate sets come from the anomaly fallbacks.
	mustAddNode(t, e, "p1", NodeProcess, 0.6)
	mustAddNode(t, e, "svc", NodeService, 0.2)
	mustAddEdge(t, e, "p1", "svc", EdgeServiceAccess)

	e.PropagateRisk(0.7)

	got := e.FindHighestRiskPath()
	if !reflect.DeepEqual(got, []string{"p1", "svc"}) {
		t.Fatalf("unexpected fallback path %v", got)
	}
}

func TestFindHighestRiskPathNoRoute(t *testing.T) {
	e := NewEngine()
	mustAddNode(t, e, "entry", NodeRemoteServer, 0.8)
	mustAddNode(t, e, "victim", NodeMachine, 0.9)
	// Edge points away from the target.
	mustAddEdge(t, e, "victim", "entry", EdgeNetworkConnection)

	e.PropagateRisk(0.7)

	got := e.FindHighestRiskPath()
	if len(got) != 0 {
		t.Fatalf("expected empty path, got %v", got)
	}
}

func TestFindHighestRiskPathRespectsEdgeLimit(t *testing.T) {
	e := NewEngine()
	mustAddNode(t, e, "entry", NodeRemoteServer, 0.8)
	mustAddNode(t, e, "victim", NodeMachine, 0.9)

	// A chain of 12 edges between entry and victim is beyond the cutoff.
	prev := "entry"
	for i := 0; i < 11; i++ {
		hop := fmt.Sprintf("hop-%02d", i)
		mustAddNode(t, e, hop, NodeProcess, 0)
		mustAddEdge(t, e, prev, hop, EdgeNetworkConnection)
		prev = hop
	}
	mustAddEdge(t, e, prev, "victim", EdgeNetworkConnection)

	e.PropagateRisk(0.7)

	if got := e.FindHighestRiskPath(); len(got) != 0 {
		t.Fatalf("expected no path within the edge limit, got %v", got)
	}
}

func TestFindHighestRiskPathExactEdgeLimit(t *testing.T) {
	e := NewEngine()
	mustAddNode(t, e, "entry", NodeRemoteServer, 0.8)
	mustAddNode(t, e, "victim", NodeMachine, 0.9)

	// Exactly 10 edges is still allowed.
	prev := "entry"
	for i := 0; i < 9; i++ {
		hop := fmt.Sprintf("hop-%02d", i)
		mustAddNode(t, e, hop, NodeProcess, 0)
		mustAddEdge(t, e, prev, hop, EdgeNetworkConnection)
		prev = hop
	}
	mustAddEdge(t, e, prev, "victim", EdgeNetworkConnection)

	e.PropagateRisk(0.7)

	got := e.FindHighestRiskPath()
	if len(got) != 11 || got[0] != "entry" || got[len(got)-1] != "victim" {
		t.Fatalf("expected the full 10-edge path, got %v", got)
	}
}
