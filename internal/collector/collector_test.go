package collector

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"hostwatch/internal/alerts"
	"hostwatch/internal/errpolicy"
	"hostwatch/internal/graph"
	"hostwatch/internal/transform/rawmetrics"
	"hostwatch/pkg/models"
)

type stubRunner struct {
	outputs map[string]string
}

func (r *stubRunner) Execute(ctx context.Context, command string) models.ExecutionResult {
	out, ok := r.outputs[command]
	if !ok {
		return models.ExecutionResult{Success: false, ReturnCode: -1, ErrorMessage: "probe failed"}
	}
	return models.ExecutionResult{Success: true, Stdout: out}
}

type stubScorer struct {
	score float64
	err   error
}

func (s *stubScorer) Predict(snap *models.MetricsSnapshot) (models.Prediction, error) {
	if s.err != nil {
		return models.Prediction{}, s.err
	}
	label := models.LabelNormal
	if s.score >= 0.5 {
		label = models.LabelAnomaly
	}
	return models.Prediction{AnomalyScore: s.score, Label: label}, nil
}

type stubStore struct {
	mu    sync.Mutex
	snaps []*models.MetricsSnapshot
	warns []*models.Alert
	fail  bool
}

func (s *stubStore) SaveLog(snap *models.MetricsSnapshot) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return false
	}
	s.snaps = append(s.snaps, snap)
	return true
}

func (s *stubStore) SaveAlert(alert *models.Alert) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return false
	}
	s.warns = append(s.warns, alert)
	return true
}

func (s *stubStore) counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.snaps), len(s.warns)
}

type stubRemote struct {
	snaps []*models.MetricsSnapshot
}

func (r *stubRemote) CollectFromAll(ctx context.Context) []*models.MetricsSnapshot {
	return r.snaps
}

type stubPublisher struct {
	mu        sync.Mutex
	published []*models.Alert
	err       error
}

func (p *stubPublisher) Publish(ctx context.Context, alert *models.Alert) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, alert)
	return nil
}

func linuxOutputs() map[string]string {
	commands := osCommands[rawmetrics.OSLinux]
	out := make(map[string]string)
	out[commands[rawmetrics.KeyCPU]] = "%Cpu(s): 12.5 us,  3.2 sy,  0.0 ni, 84.3 id"
	out[commands[rawmetrics.KeyMemory]] = "Mem:           16000        8000        4000"
	out[commands[rawmetrics.KeyProcesses]] = "USER PID\nroot 1\nroot 2\n"
	out[commands[rawmetrics.KeyNetwork]] = "tcp 0 0 192.168.1.100:22 203.0.113.7:40112 ESTABLISHED"
	out[commands[rawmetrics.KeyFailedLogins]] = "Mar  1 10:00:01 host sshd[1]: Failed password for root from 203.0.113.7 port 40112 ssh2"
	return out
}

func newTestDeps(t *testing.T, scorer Scorer) (Deps, *stubStore) {
	t.Helper()
	parser, err := rawmetrics.NewParser(rawmetrics.OSLinux)
	if err != nil {
		t.Fatalf("NewParser: %v", err)
	}
	engine, err := alerts.NewEngine(0.7)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	store := &stubStore{}
	return Deps{
		Runner: &stubRunner{outputs: linuxOutputs()},
		Parser: parser,
		Scorer: scorer,
		Alerts: engine,
		Graph:  graph.NewEngine(),
		Store:  store,
	}, store
}

func newTestCollector(t *testing.T, deps Deps) *Collector {
	t.Helper()
	c, err := New(rawmetrics.OSLinux, 20*time.Millisecond, 0.7, deps)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestNewValidation(t *testing.T) {
	deps, _ := newTestDeps(t, &stubScorer{score: 0.1})
	if _, err := New("freebsd", time.Second, 0.7, deps); !errors.Is(err, errpolicy.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for unknown OS, got %v", err)
	}

	deps.Scorer = nil
	if _, err := New(rawmetrics.OSLinux, time.Second, 0.7, deps); !errors.Is(err, errpolicy.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for missing collaborator, got %v", err)
	}
}

func TestCollectOnceQuietHost(t *testing.T) {
	deps, store := newTestDeps(t, &stubScorer{score: 0.2})
	c := newTestCollector(t, deps)

	snap := c.CollectOnce(context.Background())
	if snap == nil {
		t.Fatalf("expected a local snapshot")
	}
	if snap.NodeID != models.DefaultNodeID {
		t.Fatalf("unexpected node id %q", snap.NodeID)
	}
	if snap.FailedLogins != 1 {
		t.Fatalf("failed logins = %d", snap.FailedLogins)
	}

	snaps, alertsSaved := store.counts()
	if snaps != 1 || alertsSaved != 0 {
		t.Fatalf("expected 1 snapshot and no alerts persisted, got %d/%d", snaps, alertsSaved)
	}

	node, ok := deps.Graph.Lookup(models.DefaultNodeID)
	if !ok || node.Type != graph.NodeMachine {
		t.Fatalf("expected machine node in graph, got %+v ok=%v", node, ok)
	}
	if node.AnomalyScore != 0.2 {
		t.Fatalf("anomaly score not applied: %v", node.AnomalyScore)
	}
}

func TestCollectOnceRaisesAndPublishesAlert(t *testing.T) {
	deps, store := newTestDeps(t, &stubScorer{score: 0.95})
	pub := &stubPublisher{}
	deps.Publisher = pub
	c := newTestCollector(t, deps)

	if snap := c.CollectOnce(context.Background()); snap == nil {
		t.Fatalf("expected a local snapshot")
	}

	snaps, alertsSaved := store.counts()
	if snaps != 1 || alertsSaved != 1 {
		t.Fatalf("expected snapshot and alert persisted, got %d/%d", snaps, alertsSaved)
	}
	if len(pub.published) != 1 {
		t.Fatalf("expected 1 published alert, got %d", len(pub.published))
	}
	if pub.published[0].Severity != models.SeverityCritical {
		t.Fatalf("unexpected severity %q", pub.published[0].Severity)
	}
}

func TestCollectOnceScorerFailureSkipsAlerting(t *testing.T) {
	deps, store := newTestDeps(t, &stubScorer{err: errors.New("model exploded")})
	c := newTestCollector(t, deps)

	snap := c.CollectOnce(context.Background())
	if snap == nil {
		t.Fatalf("scoring failure must not drop the snapshot")
	}

	snaps, alertsSaved := store.counts()
	if snaps != 1 || alertsSaved != 0 {
		t.Fatalf("expected snapshot persisted without alert, got %d/%d", snaps, alertsSaved)
	}

	// The graph node exists but keeps its default anomaly score.
	node, ok := deps.Graph.Lookup(models.DefaultNodeID)
	if !ok || node.AnomalyScore != 0 {
		t.Fatalf("unexpected graph node %+v ok=%v", node, ok)
	}
}

func TestCollectOncePublisherFailureDegrades(t *testing.T) {
	deps, store := newTestDeps(t, &stubScorer{score: 0.95})
	deps.Publisher = &stubPublisher{err: errors.New("redis down")}
	c := newTestCollector(t, deps)

	if snap := c.CollectOnce(context.Background()); snap == nil {
		t.Fatalf("publish failure must not drop the snapshot")
	}
	if _, alertsSaved := store.counts(); alertsSaved != 1 {
		t.Fatalf("alert must still be persisted when publishing fails")
	}
}

func TestCollectOnceProcessesRemoteSnapshots(t *testing.T) {
	deps, store := newTestDeps(t, &stubScorer{score: 0.95})
	deps.Remote = &stubRemote{snaps: []*models.MetricsSnapshot{
		{
			CPUUsage:     90,
			MemoryUsage:  70,
			FailedLogins: 15,
			Timestamp:    "2026-03-01T10:00:00Z",
			NodeID:       "edge-1",
		},
	}}
	c := newTestCollector(t, deps)

	if snap := c.CollectOnce(context.Background()); snap == nil {
		t.Fatalf("expected a local snapshot")
	}

	snaps, alertsSaved := store.counts()
	if snaps != 2 {
		t.Fatalf("expected local and remote snapshots persisted, got %d", snaps)
	}
	if alertsSaved != 2 {
		t.Fatalf("expected alerts for both nodes, got %d", alertsSaved)
	}

	node, ok := deps.Graph.Lookup("edge-1")
	if !ok || node.Type != graph.NodeRemoteServer {
		t.Fatalf("expected remote_server node, got %+v ok=%v", node, ok)
	}
}

func TestCollectOnceProbeFailureDegrades(t *testing.T) {
	deps, store := newTestDeps(t, &stubScorer{score: 0.2})
	deps.Runner = &stubRunner{outputs: map[string]string{}}
	c := newTestCollector(t, deps)

	snap := c.CollectOnce(context.Background())
	if snap == nil {
		t.Fatalf("all-zero metrics still validate; expected a snapshot")
	}
	if snap.CPUUsage != 0 || snap.ProcessCount != 0 {
		t.Fatalf("expected zeroed metrics, got %+v", snap)
	}
	if snaps, _ := store.counts(); snaps != 1 {
		t.Fatalf("expected degraded snapshot persisted, got %d", snaps)
	}
}

type invalidParser struct{}

func (invalidParser) Parse(raw map[string]string, nodeID string) *models.MetricsSnapshot {
	return &models.MetricsSnapshot{NodeID: nodeID}
}

func (invalidParser) Validate(snap *models.MetricsSnapshot) bool { return false }

func TestCollectOnceValidationFailureStillProcessesRemote(t *testing.T) {
	deps, store := newTestDeps(t, &stubScorer{score: 0.2})
	deps.Parser = invalidParser{}
	deps.Remote = &stubRemote{snaps: []*models.MetricsSnapshot{
		{CPUUsage: 10, MemoryUsage: 10, Timestamp: "2026-03-01T10:00:00Z", NodeID: "edge-1"},
	}}
	c := newTestCollector(t, deps)

	if snap := c.CollectOnce(context.Background()); snap != nil {
		t.Fatalf("expected nil local snapshot, got %+v", snap)
	}

	snaps, _ := store.counts()
	if snaps != 1 {
		t.Fatalf("remote snapshot must survive local validation failure, got %d persisted", snaps)
	}
	if store.snaps[0].NodeID != "edge-1" {
		t.Fatalf("unexpected persisted snapshot %+v", store.snaps[0])
	}
}

func TestStartStopLifecycle(t *testing.T) {
	deps, store := newTestDeps(t, &stubScorer{score: 0.2})
	c := newTestCollector(t, deps)

	// Stopping before starting is a no-op.
	c.Stop()

	c.Start()
	// Starting twice is a no-op.
	c.Start()

	deadline := time.Now().Add(2 * time.Second)
	for {
		if snaps, _ := store.counts(); snaps >= 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("scheduling loop never completed two cycles")
		}
		time.Sleep(5 * time.Millisecond)
	}

	c.Stop()
	settled, _ := store.counts()

	// No more cycles after stop.
	time.Sleep(60 * time.Millisecond)
	after, _ := store.counts()
	if after != settled {
		t.Fatalf("cycles continued after stop: %d -> %d", settled, after)
	}
}

func TestExportAttackGraph(t *testing.T) {
	deps, _ := newTestDeps(t, &stubScorer{score: 0.95})
	c := newTestCollector(t, deps)
	c.CollectOnce(context.Background())

	path := filepath.Join(t.TempDir(), "graph.json")
	if !c.ExportAttackGraph(path) {
		t.Fatalf("ExportAttackGraph failed")
	}
}

func TestHighestRiskPathAfterCycle(t *testing.T) {
	deps, _ := newTestDeps(t, &stubScorer{score: 0.95})
	c := newTestCollector(t, deps)
	c.CollectOnce(context.Background())

	// Local ingestion only records outbound machine-to-ip edges, so give the
	// graph one inbound connection from the suspicious IP.
	if err := deps.Graph.AddEdge("203.0.113.7", models.DefaultNodeID, graph.EdgeNetworkConnection); err != nil {
		t.Fatalf("AddEdge: %v", err)
	}

	path := c.HighestRiskPath()
	if len(path) != 2 {
		t.Fatalf("expected a two-node risk path, got %v", path)
	}
	if path[0] != "203.0.113.7" || path[1] != models.DefaultNodeID {
		t.Fatalf("unexpected path %v", path)
	}
}

func TestDetectOS(t *testing.T) {
	osType, err := DetectOS()
	if err != nil {
		t.Skipf("unsupported platform for this test: %v", err)
	}
	if osType != rawmetrics.OSLinux && osType != rawmetrics.OSWindows {
		t.Fatalf("unexpected OS type %q", osType)
	}
}
