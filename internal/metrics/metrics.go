// Package metrics holds the Prometheus collectors shared by the orchestrator.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Lifecycle metrics
var (
	// LifecycleTransitionsTotal counts completed lifecycle transitions by outcome
	LifecycleTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spaship_lifecycle_transitions_total",
			Help: "Completed lifecycle transitions by lifecycle, kind and outcome",
		},
		[]string{"lifecycle", "kind", "outcome"},
	)

	// LifecycleDuration tracks how long lifecycle callbacks take to settle
	LifecycleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "spaship_lifecycle_duration_seconds",
			Help:    "Lifecycle callback duration in seconds",
			Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"lifecycle"},
	)

	// TimeoutWarningsTotal counts warnings emitted for slow lifecycle callbacks
	TimeoutWarningsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spaship_lifecycle_timeout_warnings_total",
			Help: "Warnings emitted while a lifecycle callback was still pending",
		},
		[]string{"lifecycle"},
	)

	// TimeoutsTotal counts hard deadline expiries by whether they were fatal
	TimeoutsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spaship_lifecycle_timeouts_total",
			Help: "Lifecycle callbacks that passed their hard deadline",
		},
		[]string{"lifecycle", "fatal"},
	)
)

// Reroute metrics
var (
	// ReroutePassesTotal counts reroute passes by outcome (ok, error, canceled, preload)
	ReroutePassesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spaship_reroute_passes_total",
			Help: "Reroute passes by outcome",
		},
		[]string{"outcome"},
	)

	// RerouteDuration tracks reroute pass latency in seconds
	RerouteDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "spaship_reroute_duration_seconds",
			Help:    "Reroute pass duration in seconds",
			Buckets: []float64{.001, .005, .01, .05, .1, .25, .5, 1, 5},
		},
	)

	// RerouteWaiters tracks callers waiting for the next reroute pass
	RerouteWaiters = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "spaship_reroute_waiters",
			Help: "Reroute requests queued behind the pass in progress",
		},
	)

	// ApplicationsByStatus tracks registered applications per status after each pass
	ApplicationsByStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "spaship_applications",
			Help: "Registered applications by status",
		},
		[]string{"status"},
	)
)

// Outcome labels shared by the counters above.
const (
	OutcomeOK       = "ok"
	OutcomeError    = "error"
	OutcomeCanceled = "canceled"
	OutcomePreload  = "preload"
)
