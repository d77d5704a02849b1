package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks duplicate scans, resolutions and summary cache use.
type Metrics struct {
	ScanDuration    prometheus.Histogram
	PairsCompared   prometheus.Counter
	CandidatesFound *prometheus.CounterVec
	PartialScans    prometheus.Counter
	Resolutions     *prometheus.CounterVec
	SummaryCache    *prometheus.CounterVec
}

// New registers the duplicate metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ScanDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "lineage_duplicate_scan_duration_seconds",
			Help:    "Duration of duplicate scans",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}),
		PairsCompared: f.NewCounter(prometheus.CounterOpts{
			Name: "lineage_duplicate_pairs_compared_total",
			Help: "Person pairs scored by duplicate scans",
		}),
		CandidatesFound: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lineage_duplicate_candidates_found_total",
			Help: "Candidates at or above the requested confidence, by mode",
		}, []string{"mode"}),
		PartialScans: f.NewCounter(prometheus.CounterOpts{
			Name: "lineage_duplicate_partial_scans_total",
			Help: "Scans that stopped before comparing every pair",
		}),
		Resolutions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lineage_duplicate_resolutions_total",
			Help: "Resolved candidates, by action",
		}, []string{"action"}),
		SummaryCache: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lineage_duplicate_summary_cache_total",
			Help: "Summary cache lookups, by result",
		}, []string{"result"}),
	}
}

// ObserveScan records a finished scan. Call with time.Now() at its start.
func (m *Metrics) ObserveScan(start time.Time, compared int, partial bool) {
	m.ScanDuration.Observe(time.Since(start).Seconds())
	m.PairsCompared.Add(float64(compared))
	if partial {
		m.PartialScans.Inc()
	}
}

func (m *Metrics) AddCandidates(mode string, n int) {
	m.CandidatesFound.WithLabelValues(mode).Add(float64(n))
}

func (m *Metrics) IncrementResolution(action string) {
	m.Resolutions.WithLabelValues(action).Inc()
}

// IncrementCache counts a summary lookup as a hit or miss.
func (m *Metrics) IncrementCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.SummaryCache.WithLabelValues(result).Inc()
}
