// Package metrics declares the module's Prometheus instrumentation and the
// standalone server that exposes it.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Dispatcher (C8)

	DispatchDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "brain_scheduler",
		Name:      "dispatch_duration_seconds",
		Help:      "Time to process one timer callback end to end.",
		Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"schedule_type", "outcome"})

	DispatchTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "brain_scheduler",
		Name:      "dispatch_total",
		Help:      "Total callbacks dispatched, by outcome.",
	}, []string{"schedule_type", "outcome"})

	DuplicateCallbacksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "brain_scheduler",
		Name:      "duplicate_callbacks_total",
		Help:      "Callbacks short-circuited by the (schedule_id, trace_id) idempotency check.",
	})

	// Timer adapter (C6)

	AdapterCallDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "brain_scheduler",
		Name:      "adapter_call_duration_seconds",
		Help:      "Duration of outbound timer-adapter calls.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation", "outcome"})

	AdapterSyncFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "brain_scheduler",
		Name:      "adapter_sync_failures_total",
		Help:      "Post-commit timer-adapter sync failures, by event and adapter error code.",
	}, []string{"event", "code"})

	// Capability gate (C3)

	CapabilityDecisionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "brain_scheduler",
		Name:      "capability_decisions_total",
		Help:      "Capability gate denials, by capability id and deny reason code.",
	}, []string{"capability_id", "decision"})

	// Predicate evaluation (C7)

	PredicateEvaluationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "brain_scheduler",
		Name:      "predicate_evaluations_total",
		Help:      "Conditional-schedule predicate evaluations, by status.",
	}, []string{"status"})

	// HTTP

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "brain_scheduler",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "brain_scheduler",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests.",
	}, []string{"method", "path", "status"})
)

// Register registers every metric with the default Prometheus registerer.
func Register() {
	prometheus.MustRegister(
		DispatchDuration,
		DispatchTotal,
		DuplicateCallbacksTotal,
		AdapterCallDuration,
		AdapterSyncFailuresTotal,
		CapabilityDecisionsTotal,
		PredicateEvaluationsTotal,
		HTTPRequestDuration,
		HTTPRequestsTotal,
	)
}

// NewServer returns the standalone HTTP server exposing /metrics.
func NewServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &http.Server{Addr: addr, Handler: mux}
}
