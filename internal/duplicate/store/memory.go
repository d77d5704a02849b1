// Package store persists duplicate candidates, one row per canonical pair.
package store

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"lineage/internal/duplicate/models"
	"lineage/pkg/platform/sentinel"
)

// InMemory keeps candidates in process. It implements tx.Checkpointer.
type InMemory struct {
	mu     sync.RWMutex
	byPair map[models.Pair]*models.Candidate
}

func NewInMemory() *InMemory {
	return &InMemory{byPair: make(map[models.Pair]*models.Candidate)}
}

func clone(c *models.Candidate) *models.Candidate {
	out := *c
	out.Reasons = slices.Clone(c.Reasons)
	return &out
}

func (s *InMemory) Checkpoint() func() {
	s.mu.RLock()
	saved := make(map[models.Pair]*models.Candidate, len(s.byPair))
	for k, v := range s.byPair {
		saved[k] = clone(v)
	}
	s.mu.RUnlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.byPair = saved
	}
}

// Upsert stores c, or refreshes the score of the pending row already held for
// its pair. A resolved row is returned unchanged.
func (s *InMemory) Upsert(_ context.Context, c *models.Candidate) (*models.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.byPair[c.Pair()]
	if !ok {
		s.byPair[c.Pair()] = clone(c)
		return clone(c), nil
	}
	existing.Refresh(c.Score, c.Mode, slices.Clone(c.Reasons), c.UpdatedAt)
	return clone(existing), nil
}

func (s *InMemory) FindByPair(_ context.Context, pair models.Pair) (*models.Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.byPair[pair]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(c), nil
}

// FindByPairForUpdate behaves like FindByPair. Callers serialize through the
// memory transaction runner.
func (s *InMemory) FindByPairForUpdate(ctx context.Context, pair models.Pair) (*models.Candidate, error) {
	return s.FindByPair(ctx, pair)
}

func (s *InMemory) Update(_ context.Context, c *models.Candidate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byPair[c.Pair()]; !ok {
		return sentinel.ErrNotFound
	}
	s.byPair[c.Pair()] = clone(c)
	return nil
}

// List returns candidates in scope with the given status, highest score
// first.
func (s *InMemory) List(_ context.Context, scope models.Scope, status *models.Status, limit, offset int) ([]*models.Candidate, error) {
	s.mu.RLock()
	out := make([]*models.Candidate, 0)
	for _, c := range s.byPair {
		if scope.Matches(c) && (status == nil || c.Status == *status) {
			out = append(out, clone(c))
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b *models.Candidate) int {
		if n := cmp.Compare(b.Score, a.Score); n != 0 {
			return n
		}
		return cmp.Compare(a.ID.String(), b.ID.String())
	})
	if offset >= len(out) {
		return []*models.Candidate{}, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemory) Summarize(_ context.Context, scope models.Scope) (*models.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sum := models.NewSummary()
	for _, c := range s.byPair {
		if scope.Matches(c) {
			sum.Add(models.BucketFor(c.Score), c.Status, 1)
		}
	}
	return sum, nil
}
