package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus instrumentation for the core event loop, registry, and
// IPC bootstrap. These gauges/counters are observational only: they do
// not participate in any loop decision, matching the design note that
// metrics must never change the state machine's behavior.

var (
	// LoopIterationDuration tracks how long one select()-poll-timer cycle takes.
	LoopIterationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kismet_loop_iteration_duration_seconds",
			Help:    "Duration of one event loop iteration (select + poll + timers)",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		},
	)

	// LoopState reports the current event loop state as a label gauge.
	LoopState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kismet_loop_state",
			Help: "Current event loop state (1 for the active state, 0 otherwise)",
		},
		[]string{"state"},
	)

	// PollableCount tracks how many pollables are registered each iteration.
	PollableCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "kismet_pollable_count",
			Help: "Current number of registered pollables",
		},
	)

	// SelectTimeouts counts select() calls that returned with no ready fds.
	SelectTimeouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kismet_select_timeouts_total",
			Help: "Total number of select() calls that timed out with no ready descriptors",
		},
	)

	// SelectErrors counts select() calls that failed with something other
	// than EINTR/EAGAIN.
	SelectErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kismet_select_errors_total",
			Help: "Total number of fatal select() errors",
		},
		[]string{"errno"},
	)

	// RegistryFatalQueueDepth tracks the current fatal-message queue size.
	RegistryFatalQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "kismet_registry_fatal_queue_depth",
			Help: "Current number of entries retained in the fatal message queue",
		},
	)

	// SigchildReaped counts child-process exits observed through PushSigchild.
	SigchildReaped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kismet_sigchild_reaped_total",
			Help: "Total number of child process exits observed",
		},
	)

	// IPCHelperRestarts is labelled for capture-helper process restarts.
	// Nothing increments it: internal/ipc does not restart a helper that
	// exits.
	IPCHelperRestarts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kismet_ipc_helper_restarts_total",
			Help: "Total number of capture helper restarts",
		},
		[]string{"helper"},
	)

	// IPCBootstrapDuration tracks how long the STARTUP handshake took.
	IPCBootstrapDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kismet_ipc_bootstrap_duration_seconds",
			Help:    "Duration of the capture helper STARTUP handshake",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"helper", "outcome"},
	)

	// HTTPRequestsTotal counts requests served by the core's own
	// /status and /metrics endpoints.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kismet_http_requests_total",
			Help: "Total number of HTTP requests served by the core status server",
		},
		[]string{"method", "route", "status_code"},
	)

	// HTTPRequestDuration tracks request latency for the core status server.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kismet_http_request_duration_seconds",
			Help:    "Duration of HTTP requests served by the core status server",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// RecordLoopIteration records the duration and resulting state of one
// event loop pass.
func RecordLoopIteration(duration time.Duration, state string) {
	LoopIterationDuration.Observe(duration.Seconds())
	LoopState.Reset()
	LoopState.WithLabelValues(state).Set(1)
}

// RecordIPCBootstrap records the outcome of a capture helper handshake.
func RecordIPCBootstrap(helper string, duration time.Duration, ok bool) {
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	IPCBootstrapDuration.WithLabelValues(helper, outcome).Observe(duration.Seconds())
}
