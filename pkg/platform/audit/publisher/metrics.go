package publisher

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for audit delivery.
type Metrics struct {
	Persisted           prometheus.Counter
	Retries             prometheus.Counter
	Failures            prometheus.Counter
	BufferDropped       prometheus.Counter
	CircuitDropped      prometheus.Counter
	CircuitBreakerState prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Persisted: f.NewCounter(prometheus.CounterOpts{
			Name: "lineage_audit_persisted_total",
			Help: "Audit records written to the audit store",
		}),
		Retries: f.NewCounter(prometheus.CounterOpts{
			Name: "lineage_audit_retries_total",
			Help: "Audit store write attempts that were retried",
		}),
		Failures: f.NewCounter(prometheus.CounterOpts{
			Name: "lineage_audit_failures_total",
			Help: "Audit records abandoned after exhausting retries",
		}),
		BufferDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "lineage_audit_buffer_dropped_total",
			Help: "Audit records dropped because the buffer was full",
		}),
		CircuitDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "lineage_audit_circuit_dropped_total",
			Help: "Audit records dropped while the store circuit was open",
		}),
		CircuitBreakerState: f.NewGauge(prometheus.GaugeOpts{
			Name: "lineage_audit_circuit_breaker_state",
			Help: "Audit store circuit breaker state (0=closed, 1=open)",
		}),
	}
}

func (m *Metrics) incPersisted() {
	if m != nil {
		m.Persisted.Inc()
	}
}

func (m *Metrics) incRetries() {
	if m != nil {
		m.Retries.Inc()
	}
}

func (m *Metrics) incFailures() {
	if m != nil {
		m.Failures.Inc()
	}
}

func (m *Metrics) incBufferDropped() {
	if m != nil {
		m.BufferDropped.Inc()
	}
}

func (m *Metrics) incCircuitDropped() {
	if m != nil {
		m.CircuitDropped.Inc()
	}
}

func (m *Metrics) setCircuitOpen(open bool) {
	if m == nil {
		return
	}
	if open {
		m.CircuitBreakerState.Set(1)
		return
	}
	m.CircuitBreakerState.Set(0)
}
