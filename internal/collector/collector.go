// Package collector orchestrates the collection pipeline: probe the host,
// score the snapshot, raise alerts, update the attack graph, and persist.
package collector

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"hostwatch/internal/alerts"
	"hostwatch/internal/errpolicy"
	"hostwatch/internal/graph"
	"hostwatch/internal/logger"
	"hostwatch/internal/metrics"
	"hostwatch/internal/output/graphjson"
	"hostwatch/internal/transform/rawmetrics"
	"hostwatch/pkg/models"
)

// stopTimeout bounds how long Stop waits for the scheduling loop to exit.
const stopTimeout = 5 * time.Second

// DefaultInterval is the collection interval when none is configured.
const DefaultInterval = 10 * time.Second

// osCommands maps each supported OS to its probe commands, keyed by the raw
// metric names the parser understands.
var osCommands = map[string]map[string]string{
	rawmetrics.OSWindows: {
		rawmetrics.KeyCPU:          "wmic cpu get loadpercentage",
		rawmetrics.KeyMemory:       "wmic OS get FreePhysicalMemory,TotalVisibleMemorySize",
		rawmetrics.KeyProcesses:    "tasklist",
		rawmetrics.KeyNetwork:      "netstat -an",
		rawmetrics.KeyFailedLogins: `wevtutil qe Security /q:"*[System[(EventID=4625)]]" /c:100 /rd:true /f:text`,
	},
	rawmetrics.OSLinux: {
		rawmetrics.KeyCPU:          `top -bn1 | grep "Cpu(s)"`,
		rawmetrics.KeyMemory:       "free -m",
		rawmetrics.KeyProcesses:    "ps aux",
		rawmetrics.KeyNetwork:      "netstat -an",
		rawmetrics.KeyFailedLogins: `journalctl _SYSTEMD_UNIT=sshd.service | grep "Failed password" | tail -100`,
	},
}

// Runner executes one probe command.
type Runner interface {
	Execute(ctx context.Context, command string) models.ExecutionResult
}

// SnapshotParser turns raw probe output into a validated snapshot.
type SnapshotParser interface {
	Parse(raw map[string]string, nodeID string) *models.MetricsSnapshot
	Validate(snap *models.MetricsSnapshot) bool
}

// Scorer assigns an anomaly score to a snapshot.
type Scorer interface {
	Predict(snap *models.MetricsSnapshot) (models.Prediction, error)
}

// RemoteSource supplies snapshots collected from other nodes.
type RemoteSource interface {
	CollectFromAll(ctx context.Context) []*models.MetricsSnapshot
}

// Store persists snapshots and alerts.
type Store interface {
	SaveLog(snap *models.MetricsSnapshot) bool
	SaveAlert(alert *models.Alert) bool
}

// AlertPublisher forwards raised alerts to an external sink.
type AlertPublisher interface {
	Publish(ctx context.Context, alert *models.Alert) error
}

// Deps carries the orchestrator's collaborators. Runner, Parser, Scorer,
// Alerts, Graph, and Store are required; Remote and Publisher are optional.
type Deps struct {
	Runner    Runner
	Parser    SnapshotParser
	Scorer    Scorer
	Alerts    *alerts.Engine
	Graph     *graph.Engine
	Store     Store
	Remote    RemoteSource
	Publisher AlertPublisher
}

// Collector runs collection cycles, either continuously from its scheduling
// loop or one-shot via CollectOnce.
type Collector struct {
	osType      string
	commands    map[string]string
	interval    time.Duration
	decayFactor float64
	deps        Deps

	// cycleMu serializes full cycles so a one-shot CollectOnce never races
	// the scheduling loop over the graph or the storage files.
	cycleMu sync.Mutex

	stateMu sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// DetectOS maps the runtime platform to a supported OS type.
func DetectOS() (string, error) {
	switch runtime.GOOS {
	case "linux":
		return rawmetrics.OSLinux, nil
	case "windows":
		return rawmetrics.OSWindows, nil
	default:
		return "", fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
	}
}

// New builds a collector for the given OS type.
func New(osType string, interval time.Duration, decayFactor float64, deps Deps) (*Collector, error) {
	commands, ok := osCommands[osType]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported OS type %q", errpolicy.ErrInvalidArgument, osType)
	}
	if deps.Runner == nil || deps.Parser == nil || deps.Scorer == nil ||
		deps.Alerts == nil || deps.Graph == nil || deps.Store == nil {
		return nil, fmt.Errorf("%w: missing required collaborator", errpolicy.ErrInvalidArgument)
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	if decayFactor <= 0 {
		decayFactor = graph.DefaultDecayFactor
	}
	logger.Infof("Collector initialized for OS %s, interval %v", osType, interval)
	return &Collector{
		osType:      osType,
		commands:    commands,
		interval:    interval,
		decayFactor: decayFactor,
		deps:        deps,
	}, nil
}

// Start launches the background scheduling loop. Starting a running
// collector is a warning no-op.
func (c *Collector) Start() {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()

	if c.running {
		errpolicy.Warn("collector", "already running, ignoring start", nil)
		return
	}
	c.running = true
	c.stopCh = make(chan struct{})
	c.doneCh = make(chan struct{})
	go c.loop(c.stopCh, c.doneCh)
	logger.Infof("Collector started")
}

// Stop signals the scheduling loop and waits up to five seconds for it to
// finish. Stopping a stopped collector is a warning no-op.
func (c *Collector) Stop() {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()

	if !c.running {
		errpolicy.Warn("collector", "not running, ignoring stop", nil)
		return
	}
	close(c.stopCh)

	select {
	case <-c.doneCh:
		logger.Infof("Collector stopped")
	case <-time.After(stopTimeout):
		errpolicy.Warn("collector", "scheduling loop did not stop within timeout", nil)
	}
	c.running = false
}

func (c *Collector) loop(stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	logger.Infof("Scheduled collection started, interval %v", c.interval)
	for {
		c.CollectOnce(context.Background())

		select {
		case <-stopCh:
			logger.Infof("Scheduled collection stopped")
			return
		case <-time.After(c.interval):
		}
	}
}

// CollectOnce runs one full collection cycle and returns the local snapshot,
// or nil if local collection or validation failed. Remote snapshots are
// processed for their side effects only. Every stage degrades on failure
// instead of aborting the cycle.
func (c *Collector) CollectOnce(ctx context.Context) *models.MetricsSnapshot {
	c.cycleMu.Lock()
	defer c.cycleMu.Unlock()

	metrics.CyclesTotal.Inc()

	raw := c.collectRaw(ctx)

	var remoteSnaps []*models.MetricsSnapshot
	if c.deps.Remote != nil {
		remoteSnaps = c.deps.Remote.CollectFromAll(ctx)
	}

	snap := c.deps.Parser.Parse(raw, models.DefaultNodeID)
	if !c.deps.Parser.Validate(snap) {
		errpolicy.Recoverable("collector", "local snapshot failed validation, dropping it", nil)
		metrics.CycleFailuresTotal.Inc()
		snap = nil
	}

	if snap != nil {
		c.processSnapshot(ctx, snap, graph.NodeMachine)
	}
	for _, rs := range remoteSnaps {
		c.processSnapshot(ctx, rs, graph.NodeRemoteServer)
	}

	return snap
}

// collectRaw runs every probe command for the detected OS. A failing probe
// degrades to empty output so the rest of the cycle still runs.
func (c *Collector) collectRaw(ctx context.Context) map[string]string {
	names := make([]string, 0, len(c.commands))
	for name := range c.commands {
		names = append(names, name)
	}
	sort.Strings(names)

	raw := make(map[string]string, len(c.commands))
	for _, name := range names {
		result := c.deps.Runner.Execute(ctx, c.commands[name])
		if !result.Success {
			errpolicy.Recoverable("collector",
				fmt.Sprintf("failed to collect %s: %s", name, result.ErrorMessage), nil)
			raw[name] = ""
			continue
		}
		raw[name] = result.Stdout
	}
	return raw
}

// processSnapshot runs the score, alert, graph, and persist stages for one
// snapshot. originType distinguishes local machines from remote servers in
// the graph.
func (c *Collector) processSnapshot(ctx context.Context, snap *models.MetricsSnapshot, originType graph.NodeType) {
	pred, err := c.deps.Scorer.Predict(snap)
	scored := err == nil
	if err != nil {
		errpolicy.Recoverable("collector",
			fmt.Sprintf("scoring failed for %s, skipping alerting", snap.NodeID), err)
	}

	var alert *models.Alert
	if scored {
		alert = c.deps.Alerts.Evaluate(snap.NodeID, pred, snap)
		if alert != nil {
			metrics.AlertsTotal.WithLabelValues(alert.Severity).Inc()
			if c.deps.Publisher != nil {
				if err := c.deps.Publisher.Publish(ctx, alert); err != nil {
					errpolicy.Recoverable("collector",
						fmt.Sprintf("failed to publish alert %s", alert.AlertID), err)
				}
			}
		}
	}

	c.updateGraph(snap, pred, scored, originType)

	if c.deps.Store.SaveLog(snap) {
		metrics.RecordsSavedTotal.WithLabelValues("snapshot").Inc()
	}
	if alert != nil && c.deps.Store.SaveAlert(alert) {
		metrics.RecordsSavedTotal.WithLabelValues("alert").Inc()
	}
}

// updateGraph applies one snapshot to the attack graph and propagates risk.
// Graph failures degrade; the snapshot still gets persisted afterwards.
func (c *Collector) updateGraph(snap *models.MetricsSnapshot, pred models.Prediction, scored bool, originType graph.NodeType) {
	g := c.deps.Graph

	attrs := &graph.NodeAttrs{Timestamp: snap.Timestamp}
	if err := g.AddNode(snap.NodeID, originType, attrs); err != nil {
		errpolicy.Recoverable("collector",
			fmt.Sprintf("failed to add graph node for %s", snap.NodeID), err)
		return
	}
	if scored {
		if err := g.SetAnomalyScore(snap.NodeID, pred.AnomalyScore); err != nil {
			errpolicy.Recoverable("collector",
				fmt.Sprintf("failed to set anomaly score for %s", snap.NodeID), err)
		}
	}
	if err := g.IngestSnapshot(snap, originType); err != nil {
		errpolicy.Recoverable("collector",
			fmt.Sprintf("failed to ingest snapshot for %s", snap.NodeID), err)
	}
	g.PropagateRisk(c.decayFactor)
}

// ExportAttackGraph writes the current graph to path. Returns false on
// failure instead of erroring, matching the other degraded cycle stages.
func (c *Collector) ExportAttackGraph(path string) bool {
	c.cycleMu.Lock()
	defer c.cycleMu.Unlock()

	if err := graphjson.Write(path, c.deps.Graph.ExportSnapshot()); err != nil {
		errpolicy.Recoverable("collector", "failed to export attack graph", err)
		return false
	}
	return true
}

// HighestRiskPath returns the current highest-risk attack path.
func (c *Collector) HighestRiskPath() []string {
	c.cycleMu.Lock()
	defer c.cycleMu.Unlock()
	return c.deps.Graph.FindHighestRiskPath()
}
