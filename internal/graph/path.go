package graph

import "hostwatch/internal/logger"

// maxPathEdges bounds the simple-path enumeration. Enumerating every simple
// path is combinatorially expensive on dense graphs; the cutoff keeps the
// search bounded but the cost still grows quickly with connectivity.
const maxPathEdges = 10

// Entry/target selection thresholds for the path search fallbacks.
const (
	entryFallbackAnomaly = 0.5
	targetAnomalyFloor   = 0.7
)

// FindHighestRiskPath returns the node sequence with the greatest cumulative
// risk score from an entry candidate (remote_server or external_ip node) to a
// target candidate (machine node with anomaly score above 0.7). When no nodes
// match, entries fall back to any node with anomaly above 0.5 and targets to
// any node with positive anomaly. Ties in total risk prefer the shorter path.
// Returns an empty slice when no entry reaches any target.
func (e *Engine) FindHighestRiskPath() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	entries := e.selectCandidates(func(n *Node) bool {
		return n.Type == NodeRemoteServer || n.Type == NodeExternalIP
	})
	if len(entries) == 0 {
		entries = e.selectCandidates(func(n *Node) bool {
			return n.AnomalyScore > entryFallbackAnomaly
		})
	}

	targets := e.selectCandidates(func(n *Node) bool {
		return n.Type == NodeMachine && n.AnomalyScore > targetAnomalyFloor
	})
	if len(targets) == 0 {
		targets = e.selectCandidates(func(n *Node) bool {
			return n.AnomalyScore > 0
		})
	}

	var bestPath []string
	bestScore := 0.0

	for _, entry := range entries {
		for _, target := range targets {
			if entry == target {
				continue
			}
			e.walkSimplePaths(entry, target, func(path []string) {
				score := 0.0
				for _, id := range path {
					score += e.nodes[id].RiskScore
				}
				if score > bestScore || (score == bestScore && len(bestPath) > 0 && len(path) < len(bestPath)) {
					bestScore = score
					bestPath = append([]string(nil), path...)
				}
			})
		}
	}

	logger.Infof("Found highest risk path with score %v: %v", bestScore, bestPath)
	if bestPath == nil {
		return []string{}
	}
	return bestPath
}

// selectCandidates returns matching node ids in lexical order so the search
// is deterministic. Callers hold the lock.
func (e *Engine) selectCandidates(match func(*Node) bool) []string {
	var out []string
	for _, id := range e.sortedNodeIDs() {
		if match(e.nodes[id]) {
			out = append(out, id)
		}
	}
	return out
}

// walkSimplePaths runs a depth-first enumeration of all cycle-free paths of
// at most maxPathEdges edges from source to target, invoking visit for each.
// Callers hold the lock.
func (e *Engine) walkSimplePaths(source, target string, visit func([]string)) {
	onPath := map[string]struct{}{source: {}}
	path := []string{source}

	var dfs func(current string)
	dfs = func(current string) {
		if current == target {
			visit(path)
			return
		}
		if len(path) > maxPathEdges {
			return
		}
		for next := range e.adj[current] {
			if _, seen := onPath[next]; seen {
				continue
			}
			onPath[next] = struct{}{}
			path = append(path, next)
			dfs(next)
			path = path[:len(path)-1]
			delete(onPath, next)
		}
	}
	dfs(source)
}
