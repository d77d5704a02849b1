// Package store keeps sliding-window request counters, in process or in
// Redis.
package store

import (
	"context"
	"math"
	"sync"
	"time"

	"lineage/internal/ratelimit/models"
)

// Option configures a store.
type Option func(*clocked)

type clocked struct {
	now func() time.Time
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *clocked) { c.now = now }
}

// InMemory is a process-local sliding window. It does not share counts
// between replicas.
type InMemory struct {
	clocked
	mu      sync.Mutex
	windows map[string][]time.Time
}

func NewInMemory(opts ...Option) *InMemory {
	s := &InMemory{clocked: clocked{now: time.Now}, windows: make(map[string][]time.Time)}
	for _, opt := range opts {
		opt(&s.clocked)
	}
	return s
}

// Allow records one request for key when the window has room.
func (s *InMemory) Allow(_ context.Context, key string, limit models.Limit) (*models.Result, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	stamps := prune(s.windows[key], now.Add(-limit.Window))
	if len(stamps) < limit.Requests {
		stamps = append(stamps, now)
		s.windows[key] = stamps
		return &models.Result{
			Allowed:   true,
			Limit:     limit.Requests,
			Remaining: limit.Requests - len(stamps),
			ResetAt:   stamps[0].Add(limit.Window),
		}, nil
	}
	s.windows[key] = stamps

	resetAt := now.Add(limit.Window)
	if len(stamps) > 0 {
		resetAt = stamps[0].Add(limit.Window)
	}
	return denied(limit, now, resetAt), nil
}

// prune drops timestamps at or before cutoff. Timestamps are appended in
// order so the live ones form a suffix.
func prune(stamps []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for ; i < len(stamps); i++ {
		if stamps[i].After(cutoff) {
			break
		}
	}
	return stamps[i:]
}

func denied(limit models.Limit, now, resetAt time.Time) *models.Result {
	retry := int(math.Ceil(resetAt.Sub(now).Seconds()))
	if retry < 1 {
		retry = 1
	}
	return &models.Result{
		Allowed:    false,
		Limit:      limit.Requests,
		Remaining:  0,
		ResetAt:    resetAt,
		RetryAfter: retry,
	}
}
