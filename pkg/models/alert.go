package models

// Alert severities, ordered.
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// Alert is a persisted security alert produced when an anomaly score exceeds
// the configured threshold. The triggering snapshot is embedded so an alert
// is self-contained on disk.
type Alert struct {
	AlertID         string          `json:"alert_id"`
	NodeID          string          `json:"node_id"`
	Timestamp       string          `json:"timestamp"`
	AnomalyScore    float64         `json:"anomaly_score"`
	SuspectedReason string          `json:"suspected_reason"`
	Severity        string          `json:"severity"`
	SuspiciousIPs   []string        `json:"suspicious_ips"`
	Snapshot        MetricsSnapshot `json:"snapshot"`
}
