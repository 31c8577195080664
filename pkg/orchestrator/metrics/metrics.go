// Package metrics exposes the orchestrator's optional Prometheus
// metrics (jobs in flight, open sessions, batch duration), following
// cuemby-warren's pkg/metrics package shape: package-level collector
// vars, a Register() that MustRegisters them all, and a Handler() for
// an external caller to mount. Scraping HTTP is out of this module's
// scope (spec.md §1's HTTP/WS exclusion) — Handler just hands back the
// promhttp.Handler for whoever owns the listener.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	JobsInFlight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ospf_orchestrator_jobs_in_flight",
			Help: "Number of jobs currently in a non-terminal state, by status",
		},
		[]string{"status"},
	)

	JobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ospf_orchestrator_jobs_total",
			Help: "Total number of jobs that reached a terminal state, by outcome",
		},
		[]string{"outcome"},
	)

	SessionsOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ospf_orchestrator_sessions_open",
			Help: "Number of live device sessions held by the Connection Manager",
		},
	)

	BatchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ospf_orchestrator_batch_duration_seconds",
			Help:    "Wall-clock time to run one batch's connect/execute/disconnect phases",
			Buckets: prometheus.DefBuckets,
		},
	)

	CommandDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ospf_orchestrator_command_duration_seconds",
			Help:    "Command execution time by outcome",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"status"},
	)

	DeviceConnectFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ospf_orchestrator_device_connect_failures_total",
			Help: "Total number of device connect attempts that failed",
		},
	)
)

// Register adds every collector to the default Prometheus registry.
// Safe to call once at process start; calling it twice panics, the same
// contract prometheus.MustRegister always has.
func Register() {
	prometheus.MustRegister(
		JobsInFlight,
		JobsTotal,
		SessionsOpen,
		BatchDuration,
		CommandDuration,
		DeviceConnectFailuresTotal,
	)
}

// Handler returns the promhttp handler for an external HTTP server to
// mount at whatever path it chooses.
func Handler() http.Handler {
	return promhttp.Handler()
}
