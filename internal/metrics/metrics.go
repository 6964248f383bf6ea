package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the call-engine collectors. A nil *Metrics is valid and records nothing,
// so packages can take it as an optional dependency.
type Metrics struct {
	providerRequests *prometheus.CounterVec
	providerLatency  *prometheus.HistogramVec
	operations       *prometheus.CounterVec
	bestEffortFails  *prometheus.CounterVec
	providerEvents   *prometheus.CounterVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		providerRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dispo",
			Subsystem: "callcontrol",
			Name:      "requests_total",
			Help:      "Call-control provider requests by action and outcome.",
		}, []string{"action", "outcome"}),
		providerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dispo",
			Subsystem: "callcontrol",
			Name:      "request_duration_seconds",
			Help:      "Call-control provider request latency by action.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"action"}),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dispo",
			Subsystem: "calls",
			Name:      "operations_total",
			Help:      "Engine operations by name and result kind.",
		}, []string{"op", "result"}),
		bestEffortFails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dispo",
			Subsystem: "calls",
			Name:      "best_effort_failures_total",
			Help:      "Best-effort steps that failed and were skipped.",
		}, []string{"op", "step"}),
		providerEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dispo",
			Subsystem: "webhooks",
			Name:      "events_total",
			Help:      "Provider webhook events by type and handling outcome.",
		}, []string{"event_type", "outcome"}),
	}
	if reg != nil {
		reg.MustRegister(m.providerRequests, m.providerLatency, m.operations, m.bestEffortFails, m.providerEvents)
	}
	return m
}

// ObserveProviderRequest records one provider call.
func (m *Metrics) ObserveProviderRequest(action, outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.providerRequests.WithLabelValues(action, outcome).Inc()
	m.providerLatency.WithLabelValues(action).Observe(took.Seconds())
}

// ObserveOperation records the result of one engine operation ("ok" or an error kind).
func (m *Metrics) ObserveOperation(op, result string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(op, result).Inc()
}

// ObserveBestEffortFailure counts a skipped best-effort step.
func (m *Metrics) ObserveBestEffortFailure(op, step string) {
	if m == nil {
		return
	}
	m.bestEffortFails.WithLabelValues(op, step).Inc()
}

// ObserveProviderEvent counts an inbound provider webhook event.
func (m *Metrics) ObserveProviderEvent(eventType, outcome string) {
	if m == nil {
		return
	}
	m.providerEvents.WithLabelValues(eventType, outcome).Inc()
}
