// Package metrics exposes pipeline counters over a Prometheus endpoint.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"hostwatch/internal/logger"
)

var (
	// CyclesTotal counts completed collection cycles.
	CyclesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "hostwatch",
		Subsystem: "pipeline",
		Name:      "cycles_total",
		Help:      "Total collection cycles run",
	})

	// CycleFailuresTotal counts cycles where the local snapshot was lost.
	CycleFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "hostwatch",
		Subsystem: "pipeline",
		Name:      "cycle_failures_total",
		Help:      "Total cycles that produced no local snapshot",
	})

	// AlertsTotal counts raised alerts by severity.
	AlertsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hostwatch",
		Subsystem: "pipeline",
		Name:      "alerts_total",
		Help:      "Total alerts raised by severity",
	}, []string{"severity"})

	// RecordsSavedTotal counts persisted records by kind (snapshot, alert).
	RecordsSavedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hostwatch",
		Subsystem: "storage",
		Name:      "records_saved_total",
		Help:      "Total records persisted by kind",
	}, []string{"kind"})

	// RemoteFetchFailuresTotal counts endpoints that yielded no snapshot.
	RemoteFetchFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "hostwatch",
		Subsystem: "remote",
		Name:      "fetch_failures_total",
		Help:      "Total remote endpoints that yielded no snapshot",
	})
)

// Serve exposes /metrics on addr in a background goroutine. Serving failures
// are logged, not fatal; losing observability should never take the agent
// down.
func Serve(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		logger.Infof("Metrics endpoint listening on %s", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Errorf("Metrics endpoint failed: %v", err)
		}
	}()
}
