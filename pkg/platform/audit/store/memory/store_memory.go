package memory

import (
	"context"
	"sync"

	audit "lineage/pkg/platform/audit"
)

// InMemoryStore keeps audit records in process. Used when no database is
// configured and in tests.
type InMemoryStore struct {
	mu      sync.RWMutex
	records []audit.Record
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(_ context.Context, rec audit.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

// ListByEntity returns records for one entity in append order.
func (s *InMemoryStore) ListByEntity(_ context.Context, entityType, entityID string) ([]audit.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []audit.Record
	for _, rec := range s.records {
		if rec.EntityType == entityType && rec.EntityID == entityID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *InMemoryStore) ListAll(_ context.Context) ([]audit.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.Record{}, s.records...), nil
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = nil
}
