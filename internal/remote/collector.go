// Package remote fetches metrics snapshots from other monitored nodes over
// authenticated HTTP.
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/avast/retry-go/v5"

	"hostwatch/internal/errpolicy"
	"hostwatch/internal/logger"
	"hostwatch/internal/metrics"
	"hostwatch/pkg/models"
)

const (
	defaultAttempts    = 3
	defaultBackoffBase = time.Second
	defaultTimeout     = 10 * time.Second
)

// requiredFields must all be present in a remote payload.
var requiredFields = []string{
	"cpu_usage",
	"memory_usage",
	"process_count",
	"network_connections",
	"failed_logins",
	"timestamp",
}

// Collector polls a fixed set of remote endpoints for snapshots.
type Collector struct {
	endpoints []models.RemoteEndpoint
	client    *http.Client

	attempts    uint
	backoffBase time.Duration
}

// NewCollector returns a collector over the given endpoints.
func NewCollector(endpoints []models.RemoteEndpoint) *Collector {
	return &Collector{
		endpoints:   endpoints,
		client:      &http.Client{},
		attempts:    defaultAttempts,
		backoffBase: defaultBackoffBase,
	}
}

// CollectFromAll visits every endpoint and returns the snapshots that could
// be fetched. A failing endpoint is logged and skipped; it never aborts the
// rest of the batch.
func (c *Collector) CollectFromAll(ctx context.Context) []*models.MetricsSnapshot {
	var out []*models.MetricsSnapshot
	for _, ep := range c.endpoints {
		snap, err := c.CollectFromEndpoint(ctx, ep)
		if err != nil {
			errpolicy.Recoverable("remote", fmt.Sprintf("endpoint %s yielded no snapshot", ep.NodeID), err)
			metrics.RemoteFetchFailuresTotal.Inc()
			continue
		}
		out = append(out, snap)
	}
	return out
}

// CollectFromEndpoint fetches one snapshot, retrying transient failures with
// exponential backoff. Schema violations are discarded without retrying since
// a malformed payload is not a transient fault. The returned snapshot carries
// the endpoint's node id.
func (c *Collector) CollectFromEndpoint(ctx context.Context, ep models.RemoteEndpoint) (*models.MetricsSnapshot, error) {
	var snap *models.MetricsSnapshot

	r := retry.New(
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.DelayType(func(n uint, err error, config retry.DelayContext) time.Duration {
			return c.backoffBase * (1 << n)
		}),
	)
	err := r.Do(func() error {
		fetched, err := c.fetchOnce(ctx, ep)
		if err != nil {
			return err
		}
		snap = fetched
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

func (c *Collector) fetchOnce(ctx context.Context, ep models.RemoteEndpoint) (*models.MetricsSnapshot, error) {
	timeout := ep.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, ep.URL, nil)
	if err != nil {
		return nil, retry.Unrecoverable(fmt.Errorf("invalid request for %s: %w", ep.NodeID, err))
	}
	applyAuth(req, ep)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", ep.NodeID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("endpoint %s returned status %d", ep.NodeID, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response from %s: %w", ep.NodeID, err)
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("invalid JSON from %s: %w", ep.NodeID, err)
	}
	if err := validateSchema(raw); err != nil {
		logger.Warnf("remote: discarding payload from %s: %v", ep.NodeID, err)
		return nil, retry.Unrecoverable(fmt.Errorf("schema validation for %s failed: %w", ep.NodeID, err))
	}

	var snap models.MetricsSnapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return nil, retry.Unrecoverable(fmt.Errorf("failed to decode payload from %s: %w", ep.NodeID, err))
	}
	snap.NodeID = ep.NodeID
	return &snap, nil
}

// applyAuth sets the authentication header for the endpoint. Unknown auth
// types proceed unauthenticated with a warning.
func applyAuth(req *http.Request, ep models.RemoteEndpoint) {
	switch ep.AuthType {
	case models.AuthAPIKey:
		req.Header.Set("X-API-Key", ep.AuthToken)
	case models.AuthBearer:
		req.Header.Set("Authorization", "Bearer "+ep.AuthToken)
	default:
		errpolicy.Warn("remote", fmt.Sprintf("unknown auth type %q for %s, proceeding unauthenticated", ep.AuthType, ep.NodeID), nil)
	}
}

// validateSchema checks a decoded payload against the snapshot contract:
// all required fields present, percentages in range, counts non-negative.
func validateSchema(raw map[string]interface{}) error {
	for _, field := range requiredFields {
		if _, ok := raw[field]; !ok {
			return fmt.Errorf("missing required field %q", field)
		}
	}

	for _, field := range []string{"cpu_usage", "memory_usage"} {
		v, ok := raw[field].(float64)
		if !ok {
			return fmt.Errorf("field %q is not a number", field)
		}
		if v < 0 || v > 100 {
			return fmt.Errorf("field %q out of range: %v", field, v)
		}
	}

	for _, field := range []string{"process_count", "network_connections", "failed_logins"} {
		v, ok := raw[field].(float64)
		if !ok || v != math.Trunc(v) {
			return fmt.Errorf("field %q is not an integer", field)
		}
		if v < 0 {
			return fmt.Errorf("field %q is negative: %v", field, v)
		}
	}

	if _, ok := raw["timestamp"].(string); !ok {
		return fmt.Errorf("field \"timestamp\" is not a string")
	}
	return nil
}
