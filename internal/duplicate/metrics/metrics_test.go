package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveScan(time.Now(), 45, true)
	m.ObserveScan(time.Now(), 5, false)
	m.AddCandidates("fuzzy", 3)
	m.IncrementResolution("merge")
	m.IncrementCache(true)
	m.IncrementCache(false)
	m.IncrementCache(false)

	assert.Equal(t, 50.0, testutil.ToFloat64(m.PairsCompared))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PartialScans))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.CandidatesFound.WithLabelValues("fuzzy")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Resolutions.WithLabelValues("merge")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SummaryCache.WithLabelValues("hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SummaryCache.WithLabelValues("miss")))
}
