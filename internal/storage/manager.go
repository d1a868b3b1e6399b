// Package storage persists collected snapshots and alerts as JSON array files.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/avast/retry-go/v5"

	"hostwatch/internal/errpolicy"
	"hostwatch/internal/logger"
	"hostwatch/pkg/models"
)

const (
	defaultMaxRetries  = 3
	defaultBackoffBase = 100 * time.Millisecond
)

// Manager appends snapshots and alerts to two independent JSON array files.
// Writes are retried with exponential backoff and verified by re-reading the
// file; a record that cannot be persisted is reported, not fatal.
type Manager struct {
	historyPath string
	alertsPath  string

	maxRetries  uint
	backoffBase time.Duration

	mu sync.Mutex

	// writeFile is swapped in tests to simulate write failures.
	writeFile func(path string, data []byte) error
}

// NewManager creates the storage directory and returns a manager for the two
// collection files inside it. A directory creation failure degrades the
// manager instead of failing construction; subsequent saves will retry and
// report their own errors.
func NewManager(dir, historyFile, alertsFile string) *Manager {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		errpolicy.Recoverable("storage", fmt.Sprintf("failed to create storage directory %s", dir), err)
	}
	return &Manager{
		historyPath: filepath.Join(dir, historyFile),
		alertsPath:  filepath.Join(dir, alertsFile),
		maxRetries:  defaultMaxRetries,
		backoffBase: defaultBackoffBase,
		writeFile: func(path string, data []byte) error {
			return os.WriteFile(path, data, 0o644)
		},
	}
}

// SaveLog appends a snapshot to the log history file. Returns false after
// all retries are exhausted.
func (m *Manager) SaveLog(snap *models.MetricsSnapshot) bool {
	if snap == nil {
		errpolicy.Warn("storage", "asked to save a nil snapshot", nil)
		return false
	}
	return m.appendRecord(m.historyPath, snap)
}

// SaveAlert appends an alert to the alerts file. Returns false after all
// retries are exhausted.
func (m *Manager) SaveAlert(alert *models.Alert) bool {
	if alert == nil {
		errpolicy.Warn("storage", "asked to save a nil alert", nil)
		return false
	}
	return m.appendRecord(m.alertsPath, alert)
}

func (m *Manager) appendRecord(path string, record interface{}) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	r := retry.New(
		retry.Attempts(m.maxRetries),
		retry.DelayType(func(n uint, err error, config retry.DelayContext) time.Duration {
			return m.backoffBase * (1 << n)
		}),
	)
	err := r.Do(func() error {
		return m.appendOnce(path, record)
	})
	if err != nil {
		errpolicy.Recoverable("storage", fmt.Sprintf("giving up on %s after %d attempts", path, m.maxRetries), err)
		return false
	}
	return true
}

// appendOnce performs one read-append-write-verify round.
func (m *Manager) appendOnce(path string, record interface{}) error {
	records := readArray(path)

	encoded, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	records = append(records, encoded)

	payload, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode array: %w", err)
	}
	if err := m.writeFile(path, payload); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	// Re-read to confirm the file landed as valid JSON.
	written, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to verify %s: %w", path, err)
	}
	var check []json.RawMessage
	if err := json.Unmarshal(written, &check); err != nil {
		return fmt.Errorf("verification of %s failed: %w", path, err)
	}
	return nil
}

// readArray loads an existing JSON array file. Missing or corrupt content is
// treated as an empty history rather than an error.
func readArray(path string) []json.RawMessage {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warnf("storage: unreadable file %s, starting fresh: %v", path, err)
		}
		return nil
	}
	var records []json.RawMessage
	if err := json.Unmarshal(data, &records); err != nil {
		logger.Warnf("storage: corrupt JSON in %s, starting fresh: %v", path, err)
		return nil
	}
	return records
}

// LogHistory returns every stored snapshot, oldest first. A missing or
// unparsable file yields an empty slice.
func (m *Manager) LogHistory() []models.MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.MetricsSnapshot, 0)
	for _, raw := range readArray(m.historyPath) {
		var snap models.MetricsSnapshot
		if err := json.Unmarshal(raw, &snap); err != nil {
			logger.Warnf("storage: skipping malformed history record: %v", err)
			continue
		}
		out = append(out, snap)
	}
	return out
}

// Alerts returns every stored alert, oldest first.
func (m *Manager) Alerts() []models.Alert {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.Alert, 0)
	for _, raw := range readArray(m.alertsPath) {
		var alert models.Alert
		if err := json.Unmarshal(raw, &alert); err != nil {
			logger.Warnf("storage: skipping malformed alert record: %v", err)
			continue
		}
		out = append(out, alert)
	}
	return out
}
