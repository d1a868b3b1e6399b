package graph

import (
	"fmt"

	"hostwatch/internal/errpolicy"
)

// NodeType classifies a graph node. Unknown values are rejected when nodes
// are added.
type NodeType string

// Supported node types.
const (
	NodeMachine      NodeType = "machine"
	NodeProcess      NodeType = "process"
	NodeService      NodeType = "service"
	NodeRemoteServer NodeType = "remote_server"
	NodeExternalIP   NodeType = "external_ip"
)

// Valid reports whether the node type is one of the supported values.
func (t NodeType) Valid() bool {
	switch t {
	case NodeMachine, NodeProcess, NodeService, NodeRemoteServer, NodeExternalIP:
		return true
	}
	return false
}

// ParseNodeType converts a string into a NodeType, rejecting unknown values.
func ParseNodeType(s string) (NodeType, error) {
	t := NodeType(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown node type %q: %w", s, errpolicy.ErrInvalidArgument)
	}
	return t, nil
}

// EdgeType classifies a directed edge.
type EdgeType string

// Supported edge types.
const (
	EdgeNetworkConnection EdgeType = "network_connection"
	EdgeProcessSpawn      EdgeType = "process_spawn"
	EdgeServiceAccess     EdgeType = "service_access"
	EdgeIPConnection      EdgeType = "ip_connection"
)

// Valid reports whether the edge type is one of the supported values.
func (t EdgeType) Valid() bool {
	switch t {
	case EdgeNetworkConnection, EdgeProcessSpawn, EdgeServiceAccess, EdgeIPConnection:
		return true
	}
	return false
}

// ParseEdgeType converts a string into an EdgeType, rejecting unknown values.
func ParseEdgeType(s string) (EdgeType, error) {
	t := EdgeType(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown edge type %q: %w", s, errpolicy.ErrInvalidArgument)
	}
	return t, nil
}

// Node is one vertex of the attack graph.
type Node struct {
	ID           string
	Type         NodeType
	AnomalyScore float64
	RiskScore    float64
	Timestamp    string
	Metadata     map[string]interface{}
}

// NodeAttrs overlays optional attributes onto a node. Nil pointers leave the
// existing values untouched.
type NodeAttrs struct {
	AnomalyScore *float64
	RiskScore    *float64
	Timestamp    string
	Metadata     map[string]interface{}
}
