package publisher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "lineage/pkg/domain"
	audit "lineage/pkg/platform/audit"
	"lineage/pkg/platform/audit/store/memory"
	"lineage/pkg/platform/circuit"
	"lineage/pkg/requestcontext"
)

// flakyStore fails the first failures appends, then delegates.
type flakyStore struct {
	mu       sync.Mutex
	failures int
	calls    int
	inner    *memory.InMemoryStore
}

func (s *flakyStore) Append(ctx context.Context, rec audit.Record) error {
	s.mu.Lock()
	s.calls++
	fail := s.calls <= s.failures
	s.mu.Unlock()
	if fail {
		return errors.New("outbox unavailable")
	}
	return s.inner.Append(ctx, rec)
}

func (s *flakyStore) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func noSleep(p *Publisher) { p.sleep = func(time.Duration) {} }

func TestRecordEnrichesFromContext(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)

	user := id.UserID(uuid.New())
	now := time.Date(2026, 5, 5, 8, 30, 0, 0, time.UTC)
	ctx := requestcontext.WithPrincipal(context.Background(), requestcontext.Principal{UserID: user})
	ctx = requestcontext.WithRequestID(ctx, "req-42")
	ctx = requestcontext.WithClientMetadata(ctx, "10.0.0.7", "curl/8")
	ctx = requestcontext.WithTime(ctx, now)

	pub.Record(ctx, audit.Record{Action: audit.ActionSuggestionApproved, EntityType: audit.EntitySuggestion, EntityID: "s-1"})

	recs, err := store.ListByEntity(context.Background(), audit.EntitySuggestion, "s-1")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	rec := recs[0]
	assert.NotEqual(t, uuid.Nil, rec.ID)
	assert.Equal(t, user.String(), rec.ActorID)
	assert.Equal(t, "req-42", rec.RequestID)
	assert.Equal(t, "10.0.0.7", rec.ClientIP)
	assert.Equal(t, now, rec.Timestamp)
}

func TestRecordRetriesThenSucceeds(t *testing.T) {
	store := &flakyStore{failures: 2, inner: memory.NewInMemoryStore()}
	m := NewMetrics(prometheus.NewRegistry())
	pub := NewPublisher(store, WithRetry(3, time.Millisecond), WithMetrics(m), noSleep)

	pub.Record(context.Background(), audit.Record{Action: audit.ActionCommentAdded, EntityType: audit.EntitySuggestion, EntityID: "s-2"})

	assert.Equal(t, 3, store.Calls())
	assert.Equal(t, 2.0, promtestutil.ToFloat64(m.Retries))
	assert.Equal(t, 1.0, promtestutil.ToFloat64(m.Persisted))
	assert.Equal(t, 0.0, promtestutil.ToFloat64(m.Failures))
}

func TestRecordNeverSurfacesFailures(t *testing.T) {
	store := &flakyStore{failures: 100, inner: memory.NewInMemoryStore()}
	m := NewMetrics(prometheus.NewRegistry())
	breaker := circuit.New("audit-test", circuit.WithFailureThreshold(2), circuit.WithCooldown(time.Hour))
	pub := NewPublisher(store, WithRetry(2, 0), WithMetrics(m), WithBreaker(breaker), noSleep)

	for range 3 {
		pub.Record(context.Background(), audit.Record{Action: audit.ActionDuplicateMerged, EntityType: audit.EntityCandidate, EntityID: "c-1"})
	}

	assert.Equal(t, 4, store.Calls(), "the third record is dropped by the open circuit")
	assert.Equal(t, 2.0, promtestutil.ToFloat64(m.Failures))
	assert.Equal(t, 1.0, promtestutil.ToFloat64(m.CircuitDropped))
	assert.Equal(t, 1.0, promtestutil.ToFloat64(m.CircuitBreakerState))
	assert.True(t, breaker.IsOpen())
}

func TestAsyncDeliveryDrainsOnClose(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(16))

	for i := range 10 {
		pub.Record(context.Background(), audit.Record{
			Action:     audit.ActionEvidenceAdded,
			EntityType: audit.EntitySuggestion,
			EntityID:   "s-" + string(rune('a'+i)),
		})
	}
	pub.Close()
	pub.Close()

	all, err := store.ListAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 10)
}

func TestRingBufferDropsOldest(t *testing.T) {
	b := NewRingBuffer(2)
	assert.False(t, b.Enqueue(audit.Record{EntityID: "1"}))
	assert.False(t, b.Enqueue(audit.Record{EntityID: "2"}))
	assert.True(t, b.Enqueue(audit.Record{EntityID: "3"}))

	batch := b.DequeueBatch(10)
	require.Len(t, batch, 2)
	assert.Equal(t, "2", batch[0].EntityID)
	assert.Equal(t, "3", batch[1].EntityID)
	assert.Equal(t, int64(1), b.Dropped())
	assert.Equal(t, 0, b.Len())
}
