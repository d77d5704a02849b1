package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"lineage/internal/ratelimit/models"
)

var testLimit = models.Limit{Requests: 3, Window: time.Minute}

type limiter interface {
	Allow(ctx context.Context, key string, limit models.Limit) (*models.Result, error)
}

// clock is a manually advanced time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type StoreSuite struct {
	suite.Suite
	newStore func(now func() time.Time) limiter
	clock    *clock
	store    limiter
	ctx      context.Context
}

func suiteWith(t *testing.T, newStore func(now func() time.Time) limiter) {
	suite.Run(t, &StoreSuite{newStore: newStore})
}

func TestInMemorySuite(t *testing.T) {
	suiteWith(t, func(now func() time.Time) limiter {
		return NewInMemory(WithClock(now))
	})
}

func TestRedisSuite(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	suiteWith(t, func(now func() time.Time) limiter {
		mr.FlushAll()
		return NewRedis(client, WithClock(now))
	})
}

func (s *StoreSuite) SetupTest() {
	s.clock = &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	s.store = s.newStore(s.clock.Now)
	s.ctx = context.Background()
}

func (s *StoreSuite) allow(key string) *models.Result {
	res, err := s.store.Allow(s.ctx, key, testLimit)
	s.Require().NoError(err)
	return res
}

func (s *StoreSuite) TestAllowCountsDown() {
	first := s.allow("rl:read:a")
	s.True(first.Allowed)
	s.Equal(3, first.Limit)
	s.Equal(2, first.Remaining)
	s.WithinDuration(s.clock.Now().Add(time.Minute), first.ResetAt, 0)

	s.allow("rl:read:a")
	last := s.allow("rl:read:a")
	s.True(last.Allowed)
	s.Equal(0, last.Remaining)
}

func (s *StoreSuite) TestDeniedOverLimit() {
	for range testLimit.Requests {
		s.Require().True(s.allow("rl:write:a").Allowed)
	}
	s.clock.Advance(20 * time.Second)

	res := s.allow("rl:write:a")
	s.False(res.Allowed)
	s.Equal(0, res.Remaining)
	s.Equal(40, res.RetryAfter)
	s.WithinDuration(s.clock.Now().Add(40*time.Second), res.ResetAt, 0)
}

func (s *StoreSuite) TestWindowSlides() {
	s.allow("rl:scan:a")
	s.clock.Advance(30 * time.Second)
	s.allow("rl:scan:a")
	s.allow("rl:scan:a")
	s.False(s.allow("rl:scan:a").Allowed)

	s.clock.Advance(30 * time.Second)
	res := s.allow("rl:scan:a")
	s.True(res.Allowed, "the first request left the window")
	s.Equal(0, res.Remaining)
	s.False(s.allow("rl:scan:a").Allowed)
}

func (s *StoreSuite) TestDeniedRequestsDoNotConsume() {
	for range testLimit.Requests + 5 {
		s.allow("rl:read:b")
	}
	s.clock.Advance(time.Minute + time.Second)
	res := s.allow("rl:read:b")
	s.True(res.Allowed)
	s.Equal(2, res.Remaining)
}

func (s *StoreSuite) TestKeysAreIndependent() {
	for range testLimit.Requests {
		s.allow("rl:read:c")
	}
	s.False(s.allow("rl:read:c").Allowed)
	s.True(s.allow("rl:read:d").Allowed)
}

func TestRedisKeyExpires(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	_, err := NewRedis(client).Allow(context.Background(), "rl:read:ttl", testLimit)
	require.NoError(t, err)
	require.Equal(t, time.Minute, mr.TTL("rl:read:ttl"))

	mr.FastForward(time.Minute)
	require.False(t, mr.Exists("rl:read:ttl"))
}

func TestRedisUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	_, err := NewRedis(client).Allow(context.Background(), "rl:read:down", testLimit)
	require.Error(t, err)
}
