package store

import (
	"bytes"
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"lineage/internal/graph"
	id "lineage/pkg/domain"
	"lineage/pkg/platform/sentinel"
)

// InMemory is a process-local graph. It implements tx.Checkpointer so a
// MemoryRunner can roll back a failed unit of work.
type InMemory struct {
	mu      sync.RWMutex
	persons map[id.PersonID]*graph.Person
	edges   map[id.ParentChildID]*graph.ParentChild
	unions  map[id.UnionID]*graph.Union
}

func NewInMemory() *InMemory {
	return &InMemory{
		persons: make(map[id.PersonID]*graph.Person),
		edges:   make(map[id.ParentChildID]*graph.ParentChild),
		unions:  make(map[id.UnionID]*graph.Union),
	}
}

func (s *InMemory) Checkpoint() func() {
	s.mu.RLock()
	persons := cloneMap(s.persons)
	edges := cloneMap(s.edges)
	unions := cloneMap(s.unions)
	s.mu.RUnlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.persons, s.edges, s.unions = persons, edges, unions
	}
}

func cloneMap[K comparable, V any](in map[K]*V) map[K]*V {
	out := make(map[K]*V, len(in))
	for k, v := range in {
		c := *v
		out[k] = &c
	}
	return out
}

func copyOf[V any](v *V) *V {
	c := *v
	return &c
}

// -----------------------------------------------------------------------------
// Persons
// -----------------------------------------------------------------------------

func (s *InMemory) CreatePerson(_ context.Context, p *graph.Person) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.persons[p.ID]; ok {
		return sentinel.ErrConflict
	}
	s.persons[p.ID] = copyOf(p)
	return nil
}

func (s *InMemory) FindPerson(_ context.Context, personID id.PersonID) (*graph.Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.persons[personID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return copyOf(p), nil
}

// LockPersons is a no-op: the memory runner already serializes transactions.
func (s *InMemory) LockPersons(context.Context, ...id.PersonID) error {
	return nil
}

func (s *InMemory) ListPeopleInTree(_ context.Context, treeID id.TreeID) ([]*graph.Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*graph.Person
	for _, p := range s.persons {
		if p.TreeID == treeID && p.Active() {
			out = append(out, copyOf(p))
		}
	}
	slices.SortFunc(out, func(a, b *graph.Person) int { return comparePersons(a.ID, b.ID) })
	return out, nil
}

func (s *InMemory) UpdatePersonField(_ context.Context, personID id.PersonID, field graph.PersonField, expected, value *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.persons[personID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if !graph.SameValue(p.Field(field), expected) {
		return sentinel.ErrConflict
	}
	p.SetField(field, value)
	return nil
}

func (s *InMemory) MarkPersonMerged(_ context.Context, absorbed, keep id.PersonID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.persons[absorbed]
	if !ok {
		return sentinel.ErrNotFound
	}
	if !p.Active() {
		return sentinel.ErrConflict
	}
	p.MergedInto = &keep
	p.DeletedAt = &at
	return nil
}

func (s *InMemory) RestorePerson(_ context.Context, personID id.PersonID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.persons[personID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if p.Active() {
		return sentinel.ErrConflict
	}
	p.MergedInto = nil
	p.DeletedAt = nil
	return nil
}

// -----------------------------------------------------------------------------
// Parent-child edges
// -----------------------------------------------------------------------------

func (s *InMemory) findEdgeLocked(parent, child id.PersonID) *graph.ParentChild {
	for _, e := range s.edges {
		if e.ParentID == parent && e.ChildID == child {
			return e
		}
	}
	return nil
}

func (s *InMemory) FindParentChild(_ context.Context, parent, child id.PersonID) (*graph.ParentChild, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e := s.findEdgeLocked(parent, child); e != nil {
		return copyOf(e), nil
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemory) FindParentChildByID(_ context.Context, edgeID id.ParentChildID) (*graph.ParentChild, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e, ok := s.edges[edgeID]; ok {
		return copyOf(e), nil
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemory) ListParentChildByPerson(_ context.Context, personID id.PersonID) ([]*graph.ParentChild, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filterEdgesLocked(func(e *graph.ParentChild) bool {
		return e.ParentID == personID || e.ChildID == personID
	}), nil
}

func (s *InMemory) ListParentChildByUnion(_ context.Context, unionID id.UnionID) ([]*graph.ParentChild, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filterEdgesLocked(func(e *graph.ParentChild) bool {
		return e.UnionID != nil && *e.UnionID == unionID
	}), nil
}

func (s *InMemory) ListParentChildForPersons(_ context.Context, personIDs []id.PersonID) ([]*graph.ParentChild, error) {
	set := make(map[id.PersonID]struct{}, len(personIDs))
	for _, p := range personIDs {
		set[p] = struct{}{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filterEdgesLocked(func(e *graph.ParentChild) bool {
		_, child := set[e.ChildID]
		_, parent := set[e.ParentID]
		return child || parent
	}), nil
}

func (s *InMemory) filterEdgesLocked(keep func(*graph.ParentChild) bool) []*graph.ParentChild {
	var out []*graph.ParentChild
	for _, e := range s.edges {
		if keep(e) {
			out = append(out, copyOf(e))
		}
	}
	slices.SortFunc(out, func(a, b *graph.ParentChild) int {
		return bytes.Compare(a.ID[:], b.ID[:])
	})
	return out
}

func (s *InMemory) InsertParentChild(_ context.Context, e *graph.ParentChild) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.edges[e.ID]; ok || s.findEdgeLocked(e.ParentID, e.ChildID) != nil {
		return sentinel.ErrConflict
	}
	s.edges[e.ID] = copyOf(e)
	return nil
}

// DeleteParentChild removes e only if the stored edge still matches it.
func (s *InMemory) DeleteParentChild(_ context.Context, e graph.ParentChild) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.edges[e.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if cur.ParentID != e.ParentID || cur.ChildID != e.ChildID ||
		cur.Relationship != e.Relationship || !graph.SameUnionID(cur.UnionID, e.UnionID) {
		return sentinel.ErrConflict
	}
	delete(s.edges, e.ID)
	return nil
}

func (s *InMemory) RepointParentChild(_ context.Context, edgeID id.ParentChildID, parent, child id.PersonID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.edges[edgeID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if other := s.findEdgeLocked(parent, child); other != nil && other.ID != edgeID {
		return sentinel.ErrConflict
	}
	cur.ParentID, cur.ChildID = parent, child
	return nil
}

func (s *InMemory) SetParentChildUnion(_ context.Context, edgeID id.ParentChildID, unionID *id.UnionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.edges[edgeID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if unionID == nil {
		cur.UnionID = nil
		return nil
	}
	u := *unionID
	cur.UnionID = &u
	return nil
}

// -----------------------------------------------------------------------------
// Unions
// -----------------------------------------------------------------------------

func (s *InMemory) findUnionLocked(a, b id.PersonID) *graph.Union {
	a, b = id.CanonicalPair(a, b)
	for _, u := range s.unions {
		if u.PartnerA == a && u.PartnerB == b {
			return u
		}
	}
	return nil
}

func (s *InMemory) FindUnion(_ context.Context, a, b id.PersonID) (*graph.Union, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if u := s.findUnionLocked(a, b); u != nil {
		return copyOf(u), nil
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemory) FindUnionByID(_ context.Context, unionID id.UnionID) (*graph.Union, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if u, ok := s.unions[unionID]; ok {
		return copyOf(u), nil
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemory) CountChildrenOfUnion(_ context.Context, unionID id.UnionID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, e := range s.edges {
		if e.UnionID != nil && *e.UnionID == unionID {
			n++
		}
	}
	return n, nil
}

func (s *InMemory) ListUnionsByPerson(_ context.Context, personID id.PersonID) ([]*graph.Union, error) {
	return s.ListUnionsForPersons(context.Background(), []id.PersonID{personID})
}

func (s *InMemory) ListUnionsForPersons(_ context.Context, personIDs []id.PersonID) ([]*graph.Union, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*graph.Union
	for _, u := range s.unions {
		if slices.ContainsFunc(personIDs, u.Involves) {
			out = append(out, copyOf(u))
		}
	}
	slices.SortFunc(out, func(a, b *graph.Union) int { return bytes.Compare(a.ID[:], b.ID[:]) })
	return out, nil
}

func (s *InMemory) InsertUnion(_ context.Context, u *graph.Union) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.unions[u.ID]; ok || s.findUnionLocked(u.PartnerA, u.PartnerB) != nil {
		return sentinel.ErrConflict
	}
	c := copyOf(u)
	c.PartnerA, c.PartnerB = id.CanonicalPair(u.PartnerA, u.PartnerB)
	s.unions[u.ID] = c
	return nil
}

// DeleteUnion removes u only if it still matches and no edge references it.
func (s *InMemory) DeleteUnion(_ context.Context, u graph.Union) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.unions[u.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if cur.PartnerA != u.PartnerA || cur.PartnerB != u.PartnerB || cur.Kind != u.Kind {
		return sentinel.ErrConflict
	}
	for _, e := range s.edges {
		if e.UnionID != nil && *e.UnionID == u.ID {
			return sentinel.ErrConflict
		}
	}
	delete(s.unions, u.ID)
	return nil
}

func (s *InMemory) RepointUnion(_ context.Context, unionID id.UnionID, a, b id.PersonID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.unions[unionID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if other := s.findUnionLocked(a, b); other != nil && other.ID != unionID {
		return sentinel.ErrConflict
	}
	cur.PartnerA, cur.PartnerB = id.CanonicalPair(a, b)
	return nil
}

// Persons returns every stored person, merged ones included. Used by tests
// and the seed command.
func (s *InMemory) Persons() []*graph.Person {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*graph.Person, 0, len(s.persons))
	for _, k := range slices.SortedFunc(maps.Keys(s.persons), comparePersons) {
		out = append(out, copyOf(s.persons[k]))
	}
	return out
}

func comparePersons(a, b id.PersonID) int {
	return bytes.Compare(a[:], b[:])
}
