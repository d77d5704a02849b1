package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Decisions   *prometheus.CounterVec
	StoreErrors prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Decisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lineage_ratelimit_decisions_total",
			Help: "Rate limit checks by class and outcome",
		}, []string{"class", "outcome"}),
		StoreErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "lineage_ratelimit_store_errors_total",
			Help: "Checks that failed open because the counter store errored",
		}),
	}
}

func (m *Metrics) ObserveDecision(class string, allowed bool) {
	outcome := "denied"
	if allowed {
		outcome = "allowed"
	}
	m.Decisions.WithLabelValues(class, outcome).Inc()
}
