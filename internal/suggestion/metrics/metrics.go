package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var durationBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1}

// Metrics tracks suggestion throughput and the latency of graph-mutating
// decisions.
type Metrics struct {
	Created          *prometheus.CounterVec
	Decisions        *prometheus.CounterVec
	DuplicateHits    prometheus.Counter
	ApproveDuration  prometheus.Histogram
	RollbackDuration prometheus.Histogram
}

// New registers the suggestion metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Created: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lineage_suggestions_created_total",
			Help: "Suggestions stored, by change type",
		}, []string{"type"}),
		Decisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lineage_suggestion_decisions_total",
			Help: "Status transitions, by resulting status",
		}, []string{"status"}),
		DuplicateHits: f.NewCounter(prometheus.CounterOpts{
			Name: "lineage_suggestion_duplicate_hits_total",
			Help: "Submissions answered with existing open suggestions instead of being stored",
		}),
		ApproveDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "lineage_suggestion_approve_duration_seconds",
			Help:    "Duration of approvals including the graph change",
			Buckets: durationBuckets,
		}),
		RollbackDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "lineage_suggestion_rollback_duration_seconds",
			Help:    "Duration of rollbacks including the graph revert",
			Buckets: durationBuckets,
		}),
	}
}

func (m *Metrics) IncrementCreated(kind string) {
	m.Created.WithLabelValues(kind).Inc()
}

// IncrementDecision records a transition into status.
func (m *Metrics) IncrementDecision(status string) {
	m.Decisions.WithLabelValues(status).Inc()
}

func (m *Metrics) IncrementDuplicateHit() {
	m.DuplicateHits.Inc()
}

// ObserveApprove records the duration of an approval.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveApprove(start time.Time) {
	m.ApproveDuration.Observe(time.Since(start).Seconds())
}

// ObserveRollback records the duration of a rollback.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveRollback(start time.Time) {
	m.RollbackDuration.Observe(time.Since(start).Seconds())
}
