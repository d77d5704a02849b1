// Package store persists suggestions with their evidence and comments.
package store

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"lineage/internal/suggestion/models"
	id "lineage/pkg/domain"
	"lineage/pkg/platform/sentinel"
)

// InMemory keeps suggestions in process. It implements tx.Checkpointer.
type InMemory struct {
	mu          sync.RWMutex
	suggestions map[id.SuggestionID]*models.Suggestion
	evidence    map[id.SuggestionID][]*models.Evidence
	comments    map[id.SuggestionID][]*models.Comment
}

func NewInMemory() *InMemory {
	return &InMemory{
		suggestions: make(map[id.SuggestionID]*models.Suggestion),
		evidence:    make(map[id.SuggestionID][]*models.Evidence),
		comments:    make(map[id.SuggestionID][]*models.Comment),
	}
}

// Suggestions are copied shallowly: model methods replace nested records
// rather than mutating them, so sharing them between copies is safe.
func clone(s *models.Suggestion) *models.Suggestion {
	c := *s
	return &c
}

func (s *InMemory) Checkpoint() func() {
	s.mu.RLock()
	suggestions := make(map[id.SuggestionID]*models.Suggestion, len(s.suggestions))
	for k, v := range s.suggestions {
		suggestions[k] = clone(v)
	}
	evidence := make(map[id.SuggestionID][]*models.Evidence, len(s.evidence))
	for k, v := range s.evidence {
		evidence[k] = slices.Clone(v)
	}
	comments := make(map[id.SuggestionID][]*models.Comment, len(s.comments))
	for k, v := range s.comments {
		comments[k] = slices.Clone(v)
	}
	s.mu.RUnlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.suggestions, s.evidence, s.comments = suggestions, evidence, comments
	}
}

func (s *InMemory) Create(_ context.Context, sg *models.Suggestion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.suggestions[sg.ID]; ok {
		return sentinel.ErrConflict
	}
	s.suggestions[sg.ID] = clone(sg)
	return nil
}

func (s *InMemory) FindByID(_ context.Context, sid id.SuggestionID) (*models.Suggestion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sg, ok := s.suggestions[sid]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(sg), nil
}

// FindByIDForUpdate matches FindByID. The memory runner already serializes
// transactions.
func (s *InMemory) FindByIDForUpdate(ctx context.Context, sid id.SuggestionID) (*models.Suggestion, error) {
	return s.FindByID(ctx, sid)
}

func (s *InMemory) Update(_ context.Context, sg *models.Suggestion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.suggestions[sg.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.suggestions[sg.ID] = clone(sg)
	return nil
}

// Execute runs validate then mutate on the stored suggestion while holding
// the write lock.
func (s *InMemory) Execute(_ context.Context, sid id.SuggestionID, validate func(*models.Suggestion) error, mutate func(*models.Suggestion)) (*models.Suggestion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.suggestions[sid]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	working := clone(cur)
	if err := validate(working); err != nil {
		return nil, err
	}
	mutate(working)
	s.suggestions[sid] = working
	return clone(working), nil
}

func (s *InMemory) filter(keep func(*models.Suggestion) bool) []*models.Suggestion {
	var out []*models.Suggestion
	for _, sg := range s.suggestions {
		if keep(sg) {
			out = append(out, clone(sg))
		}
	}
	return out
}

func byCreated(a, b *models.Suggestion) int {
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return slices.Compare(a.ID[:], b.ID[:])
}

func page[T any](items []T, p models.Page) []T {
	p = p.Normalize()
	if p.Offset >= len(items) {
		return nil
	}
	end := min(p.Offset+p.Limit, len(items))
	return items[p.Offset:end]
}

func (s *InMemory) ListBySubmitter(_ context.Context, submitter id.UserID, f models.MineFilter) ([]*models.Suggestion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.filter(func(sg *models.Suggestion) bool {
		return sg.SubmitterID == submitter && (f.Status == nil || sg.Status == *f.Status)
	})
	slices.SortFunc(out, func(a, b *models.Suggestion) int { return byCreated(b, a) })
	return page(out, f.Page), nil
}

func (s *InMemory) ListQueue(_ context.Context, f models.QueueFilter) ([]*models.Suggestion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.filter(f.Matches)
	slices.SortFunc(out, byCreated)
	return page(out, f.Page), nil
}

func (s *InMemory) FindOpenByKey(_ context.Context, key models.DuplicateKey) ([]*models.Suggestion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.filter(func(sg *models.Suggestion) bool {
		return !sg.IsDeleted() && sg.Status.IsOpen() && key.Matches(sg)
	})
	slices.SortFunc(out, byCreated)
	return out, nil
}

func (s *InMemory) CountPendingByTown(_ context.Context, reach models.Reach) ([]models.TownCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := map[id.TownID]int{}
	for _, sg := range s.suggestions {
		if sg.IsDeleted() || sg.Status != models.StatusPending || !reach.Covers(sg.TownID, sg.TreeID) {
			continue
		}
		counts[sg.TownID]++
	}
	out := make([]models.TownCount, 0, len(counts))
	for town, n := range counts {
		out = append(out, models.TownCount{TownID: town, Pending: n})
	}
	slices.SortFunc(out, func(a, b models.TownCount) int {
		if c := cmp.Compare(b.Pending, a.Pending); c != 0 {
			return c
		}
		return slices.Compare(a.TownID[:], b.TownID[:])
	})
	return out, nil
}

func (s *InMemory) Statistics(_ context.Context, reach models.Reach, town *id.TownID) (*models.Statistics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := models.NewStatistics()
	for _, sg := range s.suggestions {
		if !reach.Covers(sg.TownID, sg.TreeID) || (town != nil && sg.TownID != *town) {
			continue
		}
		if sg.IsDeleted() {
			st.Deleted++
			continue
		}
		st.Total++
		st.ByStatus[sg.Status]++
		st.ByType[sg.Type]++
	}
	st.Finalize()
	return st, nil
}

func (s *InMemory) AddEvidence(_ context.Context, e *models.Evidence) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.suggestions[e.SuggestionID]; !ok {
		return sentinel.ErrNotFound
	}
	c := *e
	s.evidence[e.SuggestionID] = append(s.evidence[e.SuggestionID], &c)
	return nil
}

func (s *InMemory) ListEvidence(_ context.Context, sid id.SuggestionID) ([]*models.Evidence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Evidence, 0, len(s.evidence[sid]))
	for _, e := range s.evidence[sid] {
		c := *e
		out = append(out, &c)
	}
	return out, nil
}

func (s *InMemory) AddComment(_ context.Context, c *models.Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.suggestions[c.SuggestionID]; !ok {
		return sentinel.ErrNotFound
	}
	cp := *c
	s.comments[c.SuggestionID] = append(s.comments[c.SuggestionID], &cp)
	return nil
}

func (s *InMemory) ListComments(_ context.Context, sid id.SuggestionID) ([]*models.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Comment, 0, len(s.comments[sid]))
	for _, c := range s.comments[sid] {
		cp := *c
		out = append(out, &cp)
	}
	return out, nil
}
