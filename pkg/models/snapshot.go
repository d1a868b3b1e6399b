package models

// DefaultNodeID identifies snapshots collected on the local machine.
const DefaultNodeID = "local"

// MetricsSnapshot is a point-in-time measurement of one node's system metrics.
type MetricsSnapshot struct {
	CPUUsage             float64        `json:"cpu_usage"`
	MemoryUsage          float64        `json:"memory_usage"`
	ProcessCount         int            `json:"process_count"`
	NetworkConnections   int            `json:"network_connections"`
	FailedLogins         int            `json:"failed_logins"`
	Timestamp            string         `json:"timestamp"`
	NodeID               string         `json:"node_id"`
	UniqueIPCount        int            `json:"unique_ip_count"`
	FailedAttemptsPerIP  map[string]int `json:"failed_attempts_per_ip"`
	ConnectionCountPerIP map[string]int `json:"connection_count_per_ip"`
	SourceIPs            []string       `json:"source_ips"`
	DestinationIPs       []string       `json:"destination_ips"`
}

// ModelInput returns the metric values in the order the scoring model was
// trained on: failed logins, process count, CPU usage, network connections.
func (s *MetricsSnapshot) ModelInput() []float64 {
	return []float64{
		float64(s.FailedLogins),
		float64(s.ProcessCount),
		s.CPUUsage,
		float64(s.NetworkConnections),
	}
}

// Prediction labels.
const (
	LabelNormal  = "normal"
	LabelAnomaly = "anomaly"
)

// Prediction is the scorer output for one snapshot.
type Prediction struct {
	AnomalyScore float64 `json:"anomaly_score"`
	Label        string  `json:"label"`
	Confidence   float64 `json:"confidence"`
}
