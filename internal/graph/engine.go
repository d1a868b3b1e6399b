// Package graph maintains the in-memory attack graph: typed nodes and
// directed edges keyed by string ids, with anomaly scores assigned by the
// pipeline, risk propagated outward along edges, and a search for the
// highest-risk entry-to-target path.
package graph

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"hostwatch/internal/errpolicy"
	"hostwatch/internal/logger"
	"hostwatch/pkg/models"
)

// IP behavior thresholds for the anomaly contribution of an external address.
const (
	ipConnectionThreshold = 50
	ipFailedThreshold     = 5
)

// DefaultDecayFactor is the per-hop risk decay used by risk propagation.
const DefaultDecayFactor = 0.7

// Engine owns the attack graph. All operations are safe for concurrent use;
// a single coarse mutex guards the whole structure.
type Engine struct {
	mu    sync.Mutex
	nodes map[string]*Node
	// adj maps source id -> target id -> edge type. Re-adding an edge
	// overwrites its type (last write wins).
	adj map[string]map[string]EdgeType
}

// NewEngine creates an empty attack graph.
func NewEngine() *Engine {
	logger.Infof("Attack graph engine initialized with empty graph")
	return &Engine{
		nodes: make(map[string]*Node),
		adj:   make(map[string]map[string]EdgeType),
	}
}

// AddNode inserts a node with default scores, overlaying attrs. Re-adding an
// existing id merges attributes without resetting unspecified fields.
func (e *Engine) AddNode(id string, typ NodeType, attrs *NodeAttrs) error {
	if !typ.Valid() {
		return fmt.Errorf("invalid node type %q: %w", typ, errpolicy.ErrInvalidArgument)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.upsertNode(id, typ, attrs)
	logger.Debugf("Added node %s with type %s", id, typ)
	return nil
}

func (e *Engine) upsertNode(id string, typ NodeType, attrs *NodeAttrs) *Node {
	node, ok := e.nodes[id]
	if !ok {
		node = &Node{
			ID:       id,
			Type:     typ,
			Metadata: map[string]interface{}{},
		}
		e.nodes[id] = node
	} else {
		node.Type = typ
	}

	if attrs != nil {
		if attrs.AnomalyScore != nil {
			node.AnomalyScore = *attrs.AnomalyScore
		}
		if attrs.RiskScore != nil {
			node.RiskScore = *attrs.RiskScore
		}
		if attrs.Timestamp != "" {
			node.Timestamp = attrs.Timestamp
		}
		if attrs.Metadata != nil {
			node.Metadata = attrs.Metadata
		}
	}
	return node
}

// AddEdge inserts a directed edge, creating bare untyped placeholder nodes
// for missing endpoints. An existing edge's type is overwritten.
func (e *Engine) AddEdge(source, target string, typ EdgeType) error {
	if !typ.Valid() {
		return fmt.Errorf("invalid edge type %q: %w", typ, errpolicy.ErrInvalidArgument)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.insertEdge(source, target, typ, true)
	logger.Debugf("Added edge %s -> %s with type %s", source, target, typ)
	return nil
}

func (e *Engine) insertEdge(source, target string, typ EdgeType, overwrite bool) {
	// Placeholder nodes keep an empty type until something adds them
	// explicitly; they are never path-search candidates.
	if _, ok := e.nodes[source]; !ok {
		e.upsertNode(source, "", nil)
	}
	if _, ok := e.nodes[target]; !ok {
		e.upsertNode(target, "", nil)
	}
	targets, ok := e.adj[source]
	if !ok {
		targets = make(map[string]EdgeType)
		e.adj[source] = targets
	}
	if _, exists := targets[target]; exists && !overwrite {
		return
	}
	targets[target] = typ
}

// SetAnomalyScore updates a node's anomaly score.
func (e *Engine) SetAnomalyScore(id string, score float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	node, ok := e.nodes[id]
	if !ok {
		return fmt.Errorf("node %s: %w", id, errpolicy.ErrNotFound)
	}
	node.AnomalyScore = score
	logger.Debugf("Updated anomaly score for %s: %v", id, score)
	return nil
}

// NodeCount returns the number of nodes in the graph.
func (e *Engine) NodeCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.nodes)
}

// Lookup returns a copy of the node with the given id.
func (e *Engine) Lookup(id string) (Node, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	node, ok := e.nodes[id]
	if !ok {
		return Node{}, false
	}
	return *node, true
}

// IngestSnapshot feeds one metrics snapshot into the graph: it ensures a node
// of originType exists for the snapshot's node id, creates external_ip nodes
// for every observed address with an anomaly score derived from connection
// and failed-login counts, and links the origin to each destination address.
// A malformed address never aborts processing of the remaining ones.
func (e *Engine) IngestSnapshot(snap *models.MetricsSnapshot, originType NodeType) error {
	if snap == nil {
		return fmt.Errorf("nil snapshot: %w", errpolicy.ErrInvalidArgument)
	}
	if !originType.Valid() {
		return fmt.Errorf("invalid node type %q: %w", originType, errpolicy.ErrInvalidArgument)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.upsertNode(snap.NodeID, originType, &NodeAttrs{Timestamp: snap.Timestamp})

	for _, ip := range uniqueIPs(snap.SourceIPs, snap.DestinationIPs) {
		if ip == "" {
			errpolicy.Warn("GraphEngine", "skipping empty IP in snapshot", nil)
			continue
		}
		conns := snap.ConnectionCountPerIP[ip]
		failed := snap.FailedAttemptsPerIP[ip]

		node, ok := e.nodes[ip]
		if !ok {
			node = e.upsertNode(ip, NodeExternalIP, &NodeAttrs{Timestamp: snap.Timestamp})
			logger.Debugf("Created external_ip node for %s", ip)
		}

		contribution := ipAnomaly(conns, failed)
		node.AnomalyScore = math.Max(node.AnomalyScore, contribution)
		node.Metadata = map[string]interface{}{
			"connection_count": conns,
			"failed_attempts":  failed,
		}
	}

	for _, dest := range snap.DestinationIPs {
		if dest == "" || dest == snap.NodeID {
			continue
		}
		e.insertEdge(snap.NodeID, dest, EdgeIPConnection, false)
	}

	return nil
}

// ipAnomaly scores an external address from its behavior: high connection
// counts and failed login attempts each contribute up to 0.5.
func ipAnomaly(connectionCount, failedAttempts int) float64 {
	anomaly := 0.0
	if connectionCount > ipConnectionThreshold {
		anomaly += math.Min(0.5, float64(connectionCount)/200.0)
	}
	if failedAttempts > ipFailedThreshold {
		anomaly += math.Min(0.5, float64(failedAttempts)/20.0)
	}
	return math.Min(1.0, anomaly)
}

// PropagateRisk runs one BFS pass from every node with a positive anomaly
// score, decaying the propagated risk by decayFactor per hop and keeping the
// maximum risk seen at each node. Passing decayFactor <= 0 uses the default.
func (e *Engine) PropagateRisk(decayFactor float64) {
	if decayFactor <= 0 {
		decayFactor = DefaultDecayFactor
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var sources []string
	for id, node := range e.nodes {
		if node.AnomalyScore > 0 {
			sources = append(sources, id)
		}
	}
	logger.Debugf("Propagating risk from %d high-anomaly nodes", len(sources))

	for _, source := range sources {
		e.propagateFrom(source, decayFactor)
	}
	logger.Infof("Risk propagation completed")
}

type bfsItem struct {
	id    string
	depth int
}

func (e *Engine) propagateFrom(source string, decayFactor float64) {
	risk := e.nodes[source].AnomalyScore
	visited := map[string]struct{}{source: {}}
	queue := []bfsItem{{id: source, depth: 0}}

	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]

		node := e.nodes[item.id]
		propagated := risk * math.Pow(decayFactor, float64(item.depth))
		node.RiskScore = math.Max(node.RiskScore, propagated)

		for target := range e.adj[item.id] {
			if _, seen := visited[target]; seen {
				continue
			}
			visited[target] = struct{}{}
			queue = append(queue, bfsItem{id: target, depth: item.depth + 1})
		}
	}
}

// uniqueIPs merges the source and destination lists, dropping duplicates and
// keeping first-seen order.
func uniqueIPs(sources, destinations []string) []string {
	seen := make(map[string]struct{}, len(sources)+len(destinations))
	var out []string
	for _, ip := range append(append([]string{}, sources...), destinations...) {
		if _, ok := seen[ip]; ok {
			continue
		}
		seen[ip] = struct{}{}
		out = append(out, ip)
	}
	return out
}

// sortedNodeIDs returns all node ids in lexical order. Callers hold the lock.
func (e *Engine) sortedNodeIDs() []string {
	ids := make([]string, 0, len(e.nodes))
	for id := range e.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
