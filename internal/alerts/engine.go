package alerts

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"hostwatch/internal/errpolicy"
	"hostwatch/internal/logger"
	"hostwatch/pkg/models"
)

// Metric thresholds used to derive a human-readable alert reason.
const (
	cpuReasonThreshold         = 80
	memoryReasonThreshold      = 85
	failedLoginReasonThreshold = 10
	connectionReasonThreshold  = 100
	processReasonThreshold     = 200
	uniqueIPReasonThreshold    = 50
)

// Per-IP thresholds for marking an address suspicious.
const (
	suspiciousFailedAttempts = 5
	suspiciousConnections    = 50
)

// fallbackReason is used when no individual metric crosses its threshold, or
// when reason derivation fails.
const fallbackReason = "anomalous pattern detected"

// Engine converts predictions into alerts once the anomaly score exceeds the
// configured threshold.
type Engine struct {
	threshold float64
	now       func() time.Time
}

// NewEngine creates an alert engine. The threshold must be within [0, 1].
func NewEngine(threshold float64) (*Engine, error) {
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("threshold must be between 0 and 1, got %v: %w", threshold, errpolicy.ErrInvalidArgument)
	}
	return &Engine{threshold: threshold, now: time.Now}, nil
}

// Evaluate returns an alert when the prediction's anomaly score strictly
// exceeds the threshold, nil otherwise. Each derived field falls back to a
// safe default on failure; once the threshold is exceeded an alert is always
// produced.
func (e *Engine) Evaluate(nodeID string, pred models.Prediction, snap *models.MetricsSnapshot) *models.Alert {
	if pred.AnomalyScore <= e.threshold {
		logger.Debugf("Anomaly score %.3f below threshold %.2f, no alert", pred.AnomalyScore, e.threshold)
		return nil
	}

	alert := &models.Alert{
		AlertID:         uuid.NewString(),
		NodeID:          nodeID,
		Timestamp:       e.now().UTC().Format(time.RFC3339),
		AnomalyScore:    pred.AnomalyScore,
		SuspectedReason: fallbackReason,
		Severity:        models.SeverityMedium,
		SuspiciousIPs:   []string{},
	}

	if snap != nil {
		alert.Snapshot = *snap
		alert.SuspectedReason = DeriveReason(snap)
		alert.SuspiciousIPs = FindSuspiciousIPs(snap)
	} else {
		errpolicy.Warn("AlertEngine", "evaluating without a snapshot, derived fields use fallbacks", nil)
	}
	alert.Severity = ClassifySeverity(pred.AnomalyScore)

	logger.Warnf("Alert generated: %s for node %s (score=%.3f, severity=%s)",
		alert.AlertID, nodeID, pred.AnomalyScore, alert.Severity)
	return alert
}

// DeriveReason checks each metric against its fixed threshold and joins the
// matching descriptions in a fixed order.
func DeriveReason(snap *models.MetricsSnapshot) string {
	var reasons []string

	if snap.CPUUsage > cpuReasonThreshold {
		reasons = append(reasons, "high CPU usage")
	}
	if snap.MemoryUsage > memoryReasonThreshold {
		reasons = append(reasons, "high memory usage")
	}
	if snap.FailedLogins > failedLoginReasonThreshold {
		reasons = append(reasons, "multiple failed logins")
	}
	if snap.NetworkConnections > connectionReasonThreshold {
		reasons = append(reasons, "excessive network connections")
	}
	if snap.ProcessCount > processReasonThreshold {
		reasons = append(reasons, "high process count")
	}
	if snap.UniqueIPCount > uniqueIPReasonThreshold {
		reasons = append(reasons, "connections to many unique IPs")
	}

	if len(reasons) == 0 {
		return fallbackReason
	}
	return strings.Join(reasons, ", ")
}

// ClassifySeverity maps an anomaly score to a severity level. Boundaries are
// closed lower bounds at 0.7, 0.8 and 0.9.
func ClassifySeverity(score float64) string {
	switch {
	case score >= 0.9:
		return models.SeverityCritical
	case score >= 0.8:
		return models.SeverityHigh
	case score >= 0.7:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

// FindSuspiciousIPs returns addresses with more than suspiciousFailedAttempts
// failed logins or more than suspiciousConnections connections. Each address
// appears at most once, in first-seen order; the failed-attempt map is
// scanned before the connection-count map.
func FindSuspiciousIPs(snap *models.MetricsSnapshot) []string {
	suspicious := []string{}
	seen := make(map[string]struct{})

	for _, ip := range sortedKeys(snap.FailedAttemptsPerIP) {
		if snap.FailedAttemptsPerIP[ip] > suspiciousFailedAttempts {
			if _, ok := seen[ip]; !ok {
				seen[ip] = struct{}{}
				suspicious = append(suspicious, ip)
				logger.Debugf("IP %s marked suspicious: %d failed attempts", ip, snap.FailedAttemptsPerIP[ip])
			}
		}
	}

	for _, ip := range sortedKeys(snap.ConnectionCountPerIP) {
		if snap.ConnectionCountPerIP[ip] > suspiciousConnections {
			if _, ok := seen[ip]; !ok {
				seen[ip] = struct{}{}
				suspicious = append(suspicious, ip)
				logger.Debugf("IP %s marked suspicious: %d connections", ip, snap.ConnectionCountPerIP[ip])
			}
		}
	}

	return suspicious
}

// sortedKeys gives map scans a stable order so repeated evaluations of the
// same snapshot produce identical alerts.
func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
