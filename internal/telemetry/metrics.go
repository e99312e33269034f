package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// #region collectors
var (
	// routedRequests counts requests by the engine that served them.
	// Labels: role (active, candidate), outcome (ok, fallback, error)
	routedRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hotswap",
		Subsystem: "router",
		Name:      "requests_total",
		Help:      "Requests routed by serving role and outcome",
	}, []string{"role", "outcome"})

	// shadowSamples counts candidate invocations made purely for measurement.
	// Labels: outcome (success, failure)
	shadowSamples = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hotswap",
		Subsystem: "router",
		Name:      "shadow_samples_total",
		Help:      "Shadow invocations of the candidate engine by outcome",
	}, []string{"outcome"})

	transitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hotswap",
		Subsystem: "migration",
		Name:      "transitions_total",
		Help:      "Migration state transitions",
	}, []string{"from", "to"})

	rampPercentage = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "hotswap",
		Subsystem: "migration",
		Name:      "ramp_percentage",
		Help:      "Share of traffic currently served by the candidate",
	})

	migrationErrorRate = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "hotswap",
		Subsystem: "migration",
		Name:      "error_rate",
		Help:      "Candidate error rate over the gradual window at the last advance",
	})

	// validationDuration measures each validation check.
	// Labels: check, status (pass, fail)
	validationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "hotswap",
		Subsystem: "validation",
		Name:      "check_duration_seconds",
		Help:      "Validation check latency in seconds",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"check", "status"})
)

// #endregion collectors

// #region recorders

// RecordRouted records a request served by role ("active" or "candidate").
// outcome is "ok", "fallback" or "error".
func RecordRouted(role, outcome string) {
	routedRequests.WithLabelValues(role, outcome).Inc()
}

// RecordShadow records one shadow invocation of the candidate.
func RecordShadow(success bool) {
	shadowSamples.WithLabelValues(outcomeLabel(success)).Inc()
}

// RecordTransition records a state change and updates the ramp gauge.
func RecordTransition(from, to string, percentage float64) {
	transitions.WithLabelValues(from, to).Inc()
	rampPercentage.Set(percentage)
}

// RecordErrorRate publishes the migration error rate seen by an advance.
func RecordErrorRate(rate float64) {
	migrationErrorRate.Set(rate)
}

// RecordCheck records the duration and result of a validation check.
func RecordCheck(check string, pass bool, durationSec float64) {
	status := "pass"
	if !pass {
		status = "fail"
	}
	validationDuration.WithLabelValues(check, status).Observe(durationSec)
}

func outcomeLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// #endregion recorders
