// Package telemetry exposes the sync engine's prometheus metrics.
//
// All methods are nil-safe: components accept a *Metrics and may be handed
// nil in tests or when metrics are disabled.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the instrument set for the request executor, the offline
// queue, and the sync coordinator.
type Metrics struct {
	requestAttempts *prometheus.CounterVec
	requestOutcomes *prometheus.CounterVec
	queueDepth      prometheus.Gauge
	deadLetters     prometheus.Counter
	drains          *prometheus.CounterVec
}

// New registers the metric set on reg and returns it.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		requestAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "foyer",
			Subsystem: "request",
			Name:      "attempts_total",
			Help:      "Transport attempts, including retries, by method.",
		}, []string{"method"}),
		requestOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "foyer",
			Subsystem: "request",
			Name:      "outcomes_total",
			Help:      "Final request outcomes by classification (ok, NETWORK, SERVER, CLIENT).",
		}, []string{"classification"}),
		queueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "foyer",
			Subsystem: "queue",
			Name:      "pending_actions",
			Help:      "Actions currently waiting for replay.",
		}),
		deadLetters: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "foyer",
			Subsystem: "queue",
			Name:      "dead_letters_total",
			Help:      "Actions moved to the dead-letter set after exhausting attempts.",
		}),
		drains: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "foyer",
			Subsystem: "sync",
			Name:      "drains_total",
			Help:      "Queue drain cycles by result (drained, halted).",
		}, []string{"result"}),
	}
}

// RequestAttempt records one transport invocation.
func (m *Metrics) RequestAttempt(method string) {
	if m == nil {
		return
	}
	m.requestAttempts.WithLabelValues(method).Inc()
}

// RequestOutcome records the final classification of an Execute call.
func (m *Metrics) RequestOutcome(classification string) {
	if m == nil {
		return
	}
	m.requestOutcomes.WithLabelValues(classification).Inc()
}

// SetQueueDepth publishes the current pending-action count.
func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

// DeadLetter records an action moved to the dead-letter set.
func (m *Metrics) DeadLetter() {
	if m == nil {
		return
	}
	m.deadLetters.Inc()
}

// Drain records a completed drain cycle. result is "drained" when the
// queue emptied, "halted" when a retriable failure stopped the pass, and
// "cancelled" when the context ended it.
func (m *Metrics) Drain(result string) {
	if m == nil {
		return
	}
	m.drains.WithLabelValues(result).Inc()
}
