package alerts

import (
	"testing"
	"time"

	"hostwatch/pkg/models"
)

func testSnapshot() *models.MetricsSnapshot {
	return &models.MetricsSnapshot{
		CPUUsage:           45.2,
		MemoryUsage:        62.8,
		ProcessCount:       156,
		NetworkConnections: 42,
		FailedLogins:       0,
		Timestamp:          "2026-03-01T10:00:00Z",
		NodeID:             "local",
	}
}

func TestNewEngineRejectsOutOfRangeThreshold(t *testing.T) {
	for _, threshold := range []float64{-0.1, 1.1, 2} {
		if _, err := NewEngine(threshold); err == nil {
			t.Fatalf("expected error for threshold %v", threshold)
		}
	}
	if _, err := NewEngine(0.7); err != nil {
		t.Fatalf("unexpected error for valid threshold: %v", err)
	}
}

func TestEvaluateProducesAlertOnlyAboveThreshold(t *testing.T) {
	engine, err := NewEngine(0.7)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	cases := []struct {
		score float64
		want  bool
	}{
		{0.0, false},
		{0.5, false},
		{0.7, false}, // strict inequality at the threshold
		{0.71, true},
		{1.0, true},
	}
	for _, tc := range cases {
		alert := engine.Evaluate("local", models.Prediction{AnomalyScore: tc.score}, testSnapshot())
		if got := alert != nil; got != tc.want {
			t.Fatalf("score %v: alert=%v, want %v", tc.score, got, tc.want)
		}
	}
}

func TestEvaluatePopulatesAlertFields(t *testing.T) {
	engine, err := NewEngine(0.7)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	fixed := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	engine.now = func() time.Time { return fixed }

	snap := testSnapshot()
	snap.CPUUsage = 95

	alert := engine.Evaluate("node-7", models.Prediction{AnomalyScore: 0.85}, snap)
	if alert == nil {
		t.Fatalf("expected alert")
	}
	if alert.AlertID == "" {
		t.Fatalf("expected non-empty alert id")
	}
	if alert.NodeID != "node-7" {
		t.Fatalf("unexpected node id %q", alert.NodeID)
	}
	if alert.Timestamp != "2026-03-01T10:00:00Z" {
		t.Fatalf("unexpected timestamp %q", alert.Timestamp)
	}
	if alert.AnomalyScore != 0.85 {
		t.Fatalf("unexpected score %v", alert.AnomalyScore)
	}
	if alert.Severity != models.SeverityHigh {
		t.Fatalf("unexpected severity %q", alert.Severity)
	}
	if alert.SuspectedReason != "high CPU usage" {
		t.Fatalf("unexpected reason %q", alert.SuspectedReason)
	}
	if alert.Snapshot.CPUUsage != 95 {
		t.Fatalf("expected embedded snapshot")
	}
}

func TestEvaluateUniqueAlertIDs(t *testing.T) {
	engine, _ := NewEngine(0.7)
	a := engine.Evaluate("local", models.Prediction{AnomalyScore: 0.9}, testSnapshot())
	b := engine.Evaluate("local", models.Prediction{AnomalyScore: 0.9}, testSnapshot())
	if a.AlertID == b.AlertID {
		t.Fatalf("expected distinct alert ids, both %q", a.AlertID)
	}
}

func TestDeriveReasonFixedOrder(t *testing.T) {
	snap := testSnapshot()
	snap.CPUUsage = 90
	snap.MemoryUsage = 95
	snap.FailedLogins = 20
	snap.NetworkConnections = 150
	snap.ProcessCount = 300
	snap.UniqueIPCount = 60

	want := "high CPU usage, high memory usage, multiple failed logins, " +
		"excessive network connections, high process count, connections to many unique IPs"
	if got := DeriveReason(snap); got != want {
		t.Fatalf("unexpected reason:\n got %q\nwant %q", got, want)
	}
}

func TestDeriveReasonBoundariesAreExclusive(t *testing.T) {
	snap := testSnapshot()
	snap.CPUUsage = 80
	snap.MemoryUsage = 85
	snap.FailedLogins = 10
	snap.NetworkConnections = 100
	snap.ProcessCount = 200
	snap.UniqueIPCount = 50

	if got := DeriveReason(snap); got != "anomalous pattern detected" {
		t.Fatalf("expected fallback reason at boundary values, got %q", got)
	}
}

func TestClassifySeverityStepFunction(t *testing.T) {
	cases := []struct {
		score float64
		want  string
	}{
		{0.0, models.SeverityLow},
		{0.69, models.SeverityLow},
		{0.7, models.SeverityMedium},
		{0.79, models.SeverityMedium},
		{0.8, models.SeverityHigh},
		{0.89, models.SeverityHigh},
		{0.9, models.SeverityCritical},
		{1.0, models.SeverityCritical},
	}
	for _, tc := range cases {
		if got := ClassifySeverity(tc.score); got != tc.want {
			t.Fatalf("score %v: got %q, want %q", tc.score, got, tc.want)
		}
	}
}

func TestFindSuspiciousIPsDedupes(t *testing.T) {
	snap := testSnapshot()
	snap.FailedAttemptsPerIP = map[string]int{
		"10.0.0.1": 6, // suspicious by failed attempts
		"10.0.0.2": 5, // at boundary, not suspicious
	}
	snap.ConnectionCountPerIP = map[string]int{
		"10.0.0.1": 80, // already suspicious, must not repeat
		"10.0.0.3": 51, // suspicious by connections
		"10.0.0.4": 50, // at boundary, not suspicious
	}

	got := FindSuspiciousIPs(snap)
	if len(got) != 2 {
		t.Fatalf("expected 2 suspicious IPs, got %v", got)
	}
	if got[0] != "10.0.0.1" || got[1] != "10.0.0.3" {
		t.Fatalf("unexpected suspicious IPs: %v", got)
	}

	counts := make(map[string]int)
	for _, ip := range got {
		counts[ip]++
	}
	for ip, n := range counts {
		if n != 1 {
			t.Fatalf("IP %s appears %d times", ip, n)
		}
	}
}

func TestFindSuspiciousIPsEmptyWhenNoneQualify(t *testing.T) {
	got := FindSuspiciousIPs(testSnapshot())
	if len(got) != 0 {
		t.Fatalf("expected no suspicious IPs, got %v", got)
	}
}
