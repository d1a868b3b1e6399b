package graph

import (
	"sort"
	"time"
)

// ExportNode is the serialized form of one graph node.
type ExportNode struct {
	ID           string                 `json:"id"`
	Type         string                 `json:"type"`
	AnomalyScore float64                `json:"anomaly_score"`
	RiskScore    float64                `json:"risk_score"`
	Timestamp    string                 `json:"timestamp"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// ExportEdge is the serialized form of one directed edge.
type ExportEdge struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Type   string `json:"type"`
}

// ExportMetadata summarizes an exported graph.
type ExportMetadata struct {
	GeneratedAt string `json:"generated_at"`
	NodeCount   int    `json:"node_count"`
	EdgeCount   int    `json:"edge_count"`
}

// Export is the full serializable graph snapshot.
type Export struct {
	Nodes    []ExportNode   `json:"nodes"`
	Edges    []ExportEdge   `json:"edges"`
	Metadata ExportMetadata `json:"metadata"`
}

// ExportSnapshot produces a serializable copy of the graph. Nodes and edges
// are ordered lexically so repeated exports of an unchanged graph differ only
// in the generation timestamp.
func (e *Engine) ExportSnapshot() *Export {
	e.mu.Lock()
	defer e.mu.Unlock()

	nodes := make([]ExportNode, 0, len(e.nodes))
	for _, id := range e.sortedNodeIDs() {
		node := e.nodes[id]
		typ := string(node.Type)
		if typ == "" {
			typ = "unknown"
		}
		out := ExportNode{
			ID:           node.ID,
			Type:         typ,
			AnomalyScore: node.AnomalyScore,
			RiskScore:    node.RiskScore,
			Timestamp:    node.Timestamp,
		}
		if len(node.Metadata) > 0 {
			out.Metadata = node.Metadata
		}
		nodes = append(nodes, out)
	}

	var edges []ExportEdge
	for source, targets := range e.adj {
		for target, typ := range targets {
			edges = append(edges, ExportEdge{Source: source, Target: target, Type: string(typ)})
		}
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Source != edges[j].Source {
			return edges[i].Source < edges[j].Source
		}
		return edges[i].Target < edges[j].Target
	})
	if edges == nil {
		edges = []ExportEdge{}
	}

	return &Export{
		Nodes: nodes,
		Edges: edges,
		Metadata: ExportMetadata{
			GeneratedAt: time.Now().UTC().Format(time.RFC3339),
			NodeCount:   len(nodes),
			EdgeCount:   len(edges),
		},
	}
}
