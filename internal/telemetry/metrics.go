// Package telemetry holds the bridge's Prometheus collectors and the
// OpenTelemetry tracer provider setup.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "reader_bridge"

// Outcome label values.
const (
	OutcomeResolved = "resolved"
	OutcomeRejected = "rejected"
)

// Drop reasons for notifications that settle nothing.
const (
	DropNoPendingCaller    = "no_pending_caller"
	DropUnknownRequestCode = "unknown_request_code"
)

// Metrics groups the bridge collectors. A nil *Metrics is valid and records
// nothing, so components can be built without telemetry in tests.
type Metrics struct {
	dispatched *prometheus.CounterVec
	settled    *prometheus.CounterVec
	pending    *prometheus.GaugeVec
	orphaned   *prometheus.CounterVec
	dropped    *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg. Passing a
// fresh prometheus.NewRegistry() keeps tests hermetic.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		dispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_dispatched_total",
			Help:      "Operations accepted by the dispatcher.",
		}, []string{"operation"}),
		settled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_settled_total",
			Help:      "Calls settled, by operation and outcome.",
		}, []string{"operation", "outcome"}),
		pending: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_operations",
			Help:      "Callers waiting in each slot for an activity result (0 or 1).",
		}, []string{"slot"}),
		orphaned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orphaned_callers_total",
			Help:      "Pending callers displaced by a newer registration on the same slot.",
		}, []string{"slot"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_notifications_total",
			Help:      "Activity results that settled no caller.",
		}, []string{"reason"}),
	}
	if reg != nil {
		reg.MustRegister(m.dispatched, m.settled, m.pending, m.orphaned, m.dropped)
	}
	return m
}

func (m *Metrics) Dispatched(operation string) {
	if m == nil {
		return
	}
	m.dispatched.WithLabelValues(operation).Inc()
}

func (m *Metrics) Settled(operation string, resolved bool) {
	if m == nil {
		return
	}
	outcome := OutcomeRejected
	if resolved {
		outcome = OutcomeResolved
	}
	m.settled.WithLabelValues(operation, outcome).Inc()
}

func (m *Metrics) SetPending(slot string, pending bool) {
	if m == nil {
		return
	}
	v := 0.0
	if pending {
		v = 1
	}
	m.pending.WithLabelValues(slot).Set(v)
}

func (m *Metrics) Orphaned(slot string) {
	if m == nil {
		return
	}
	m.orphaned.WithLabelValues(slot).Inc()
}

func (m *Metrics) Dropped(reason string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(reason).Inc()
}

// Collectors exposes the underlying collectors for tests.
func (m *Metrics) Collectors() (dispatched, settled *prometheus.CounterVec, pending *prometheus.GaugeVec, orphaned, dropped *prometheus.CounterVec) {
	return m.dispatched, m.settled, m.pending, m.orphaned, m.dropped
}
