package changes

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lineage/internal/graph"
	id "lineage/pkg/domain"
	dErrors "lineage/pkg/domain-errors"
	"lineage/pkg/platform/sentinel"
	"lineage/pkg/requestcontext"
)

//go:generate mockgen -source=applier.go -destination=mocks/mocks.go -package=mocks GraphStore

// GraphStore is the slice of the canonical graph the applier reads and
// mutates. Implementations join the transaction carried in ctx.
type GraphStore interface {
	FindPerson(ctx context.Context, personID id.PersonID) (*graph.Person, error)
	LockPersons(ctx context.Context, personIDs ...id.PersonID) error
	UpdatePersonField(ctx context.Context, personID id.PersonID, field graph.PersonField, expected, value *string) error
	MarkPersonMerged(ctx context.Context, absorbed, keep id.PersonID, at time.Time) error
	RestorePerson(ctx context.Context, personID id.PersonID) error

	FindParentChild(ctx context.Context, parent, child id.PersonID) (*graph.ParentChild, error)
	FindParentChildByID(ctx context.Context, edgeID id.ParentChildID) (*graph.ParentChild, error)
	ListParentChildByPerson(ctx context.Context, personID id.PersonID) ([]*graph.ParentChild, error)
	ListParentChildByUnion(ctx context.Context, unionID id.UnionID) ([]*graph.ParentChild, error)
	InsertParentChild(ctx context.Context, e *graph.ParentChild) error
	DeleteParentChild(ctx context.Context, e graph.ParentChild) error
	RepointParentChild(ctx context.Context, edgeID id.ParentChildID, parent, child id.PersonID) error
	SetParentChildUnion(ctx context.Context, edgeID id.ParentChildID, unionID *id.UnionID) error

	FindUnion(ctx context.Context, a, b id.PersonID) (*graph.Union, error)
	FindUnionByID(ctx context.Context, unionID id.UnionID) (*graph.Union, error)
	ListUnionsByPerson(ctx context.Context, personID id.PersonID) ([]*graph.Union, error)
	CountChildrenOfUnion(ctx context.Context, unionID id.UnionID) (int, error)
	InsertUnion(ctx context.Context, u *graph.Union) error
	DeleteUnion(ctx context.Context, u graph.Union) error
	RepointUnion(ctx context.Context, unionID id.UnionID, a, b id.PersonID) error
}

// Applier checks, applies and reverts changes against a GraphStore. It does
// not open transactions; callers run it inside theirs.
type Applier struct {
	graph GraphStore
}

func NewApplier(g GraphStore) *Applier {
	return &Applier{graph: g}
}

func conflict(format string, args ...any) error {
	return dErrors.New(dErrors.CodeConflict, fmt.Sprintf(format, args...))
}

func internal(err error, msg string) error {
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}

// storeErr translates a store error raised while applying. Errors that are
// already domain errors pass through.
func storeErr(err error, what string) error {
	var de *dErrors.Error
	switch {
	case errors.As(err, &de):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, what+" not found")
	case errors.Is(err, sentinel.ErrConflict):
		return conflict("%s conflicts with the current graph", what)
	}
	return internal(err, "failed to update "+what)
}

// revertErr translates a store error raised while reverting. Any missing or
// changed record means the graph diverged from the snapshot.
func revertErr(err error, what string) error {
	var de *dErrors.Error
	switch {
	case errors.As(err, &de):
		return err
	case errors.Is(err, sentinel.ErrNotFound), errors.Is(err, sentinel.ErrConflict):
		return conflict("cannot revert: %s changed since the change was applied", what)
	}
	return internal(err, "failed to revert "+what)
}

func (a *Applier) activePerson(ctx context.Context, personID id.PersonID) (*graph.Person, error) {
	p, err := a.graph.FindPerson(ctx, personID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "person not found: "+personID.String())
		}
		return nil, internal(err, "failed to load person")
	}
	if !p.Active() {
		return nil, conflict("person %s has been merged or deleted", personID)
	}
	return p, nil
}

func (a *Applier) activePersons(ctx context.Context, ids ...id.PersonID) error {
	for _, p := range ids {
		if _, err := a.activePerson(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// exists converts a lookup into a presence flag, surfacing unexpected errors.
func exists[T any](v *T, err error) (bool, error) {
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sentinel.ErrNotFound) {
		return false, nil
	}
	return false, internal(err, "failed to read graph")
}

// Check validates c and re-checks its preconditions against the current
// graph without mutating it.
func (a *Applier) Check(ctx context.Context, c Change) error {
	if err := c.Validate(); err != nil {
		return err
	}
	switch c := c.(type) {
	case AddParentChild:
		return a.checkAddParentChild(ctx, c)
	case RemoveParentChild:
		_, err := a.findEdge(ctx, c.ParentID, c.ChildID)
		return err
	case AddUnion:
		return a.checkAddUnion(ctx, c)
	case RemoveUnion:
		_, err := a.removableUnion(ctx, c.PartnerA, c.PartnerB)
		return err
	case EditPersonFact:
		_, err := a.activePerson(ctx, c.PersonID)
		return err
	case LinkPerson:
		return a.activePersons(ctx, c.PersonA, c.PersonB)
	case MergePerson:
		return a.activePersons(ctx, c.Keep, c.Absorb)
	}
	return badRequest("unsupported change")
}

func (a *Applier) checkAddParentChild(ctx context.Context, c AddParentChild) error {
	if err := a.activePersons(ctx, c.ParentID, c.ChildID); err != nil {
		return err
	}
	found, err := exists(a.graph.FindParentChild(ctx, c.ParentID, c.ChildID))
	if err != nil {
		return err
	}
	if found {
		return conflict("parent-child edge already exists")
	}
	reverse, err := exists(a.graph.FindParentChild(ctx, c.ChildID, c.ParentID))
	if err != nil {
		return err
	}
	if reverse {
		return conflict("child is already a parent of the proposed parent")
	}
	if c.UnionID != nil {
		u, err := a.graph.FindUnionByID(ctx, *c.UnionID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return conflict("union %s does not exist", c.UnionID)
			}
			return internal(err, "failed to load union")
		}
		if !u.Involves(c.ParentID) {
			return conflict("union does not involve the parent")
		}
	}
	return nil
}

func (a *Applier) findEdge(ctx context.Context, parent, child id.PersonID) (*graph.ParentChild, error) {
	e, err := a.graph.FindParentChild(ctx, parent, child)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, conflict("parent-child edge does not exist")
		}
		return nil, internal(err, "failed to load parent-child edge")
	}
	return e, nil
}

func (a *Applier) checkAddUnion(ctx context.Context, c AddUnion) error {
	if err := a.activePersons(ctx, c.PartnerA, c.PartnerB); err != nil {
		return err
	}
	found, err := exists(a.graph.FindUnion(ctx, c.PartnerA, c.PartnerB))
	if err != nil {
		return err
	}
	if found {
		return conflict("union already exists")
	}
	return nil
}

func (a *Applier) removableUnion(ctx context.Context, partnerA, partnerB id.PersonID) (*graph.Union, error) {
	u, err := a.graph.FindUnion(ctx, partnerA, partnerB)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, conflict("union does not exist")
		}
		return nil, internal(err, "failed to load union")
	}
	n, err := a.graph.CountChildrenOfUnion(ctx, u.ID)
	if err != nil {
		return nil, internal(err, "failed to count union children")
	}
	if n > 0 {
		return nil, conflict("union has %d dependent parent-child edges", n)
	}
	return u, nil
}

// Apply re-checks c and mutates the graph. The returned snapshot is enough to
// revert the change later.
func (a *Applier) Apply(ctx context.Context, c Change) (*Snapshot, error) {
	if err := a.graph.LockPersons(ctx, c.Persons()...); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return nil, internal(err, "failed to lock persons")
	}
	if err := a.Check(ctx, c); err != nil {
		return nil, err
	}

	snap := &Snapshot{Kind: c.Kind(), AppliedAt: requestcontext.Now(ctx)}
	switch c := c.(type) {
	case AddParentChild:
		edge := &graph.ParentChild{
			ID:           id.NewParentChildID(),
			ParentID:     c.ParentID,
			ChildID:      c.ChildID,
			Relationship: c.Relationship,
			UnionID:      c.UnionID,
		}
		if err := a.graph.InsertParentChild(ctx, edge); err != nil {
			return nil, storeErr(err, "parent-child edge")
		}
		snap.Edge = edge
	case RemoveParentChild:
		edge, err := a.findEdge(ctx, c.ParentID, c.ChildID)
		if err != nil {
			return nil, err
		}
		if err := a.graph.DeleteParentChild(ctx, *edge); err != nil {
			return nil, storeErr(err, "parent-child edge")
		}
		snap.Edge = edge
	case AddUnion:
		pa, pb := id.CanonicalPair(c.PartnerA, c.PartnerB)
		u := &graph.Union{ID: id.NewUnionID(), PartnerA: pa, PartnerB: pb, Kind: c.UnionKind, StartDate: c.StartDate}
		if err := a.graph.InsertUnion(ctx, u); err != nil {
			return nil, storeErr(err, "union")
		}
		snap.Union = u
	case RemoveUnion:
		u, err := a.removableUnion(ctx, c.PartnerA, c.PartnerB)
		if err != nil {
			return nil, err
		}
		if err := a.graph.DeleteUnion(ctx, *u); err != nil {
			return nil, storeErr(err, "union")
		}
		snap.Union = u
	case EditPersonFact:
		p, err := a.activePerson(ctx, c.PersonID)
		if err != nil {
			return nil, err
		}
		before := p.Field(c.Field)
		if err := a.graph.UpdatePersonField(ctx, c.PersonID, c.Field, before, c.Value); err != nil {
			return nil, storeErr(err, "person fact")
		}
		snap.Fact = &FactSnapshot{PersonID: c.PersonID, Field: c.Field, Before: before, After: c.Value}
	case LinkPerson:
		snap.Link = &LinkSnapshot{PersonA: c.PersonA, PersonB: c.PersonB}
	case MergePerson:
		merge, err := a.merge(ctx, c.Keep, c.Absorb, snap.AppliedAt)
		if err != nil {
			return nil, err
		}
		snap.Merge = merge
	default:
		return nil, badRequest("unsupported change")
	}
	return snap, nil
}

// Revert undoes an applied change after confirming the graph still holds what
// the change produced.
func (a *Applier) Revert(ctx context.Context, snap *Snapshot) error {
	if snap == nil {
		return dErrors.New(dErrors.CodeInvariantViolation, "no snapshot to revert")
	}
	switch snap.Kind {
	case KindAddParentChild:
		return a.revertAddParentChild(ctx, snap.Edge)
	case KindRemoveParentChild:
		return a.revertRemoveParentChild(ctx, snap.Edge)
	case KindAddUnion:
		return a.revertAddUnion(ctx, snap.Union)
	case KindRemoveUnion:
		return a.revertRemoveUnion(ctx, snap.Union)
	case KindEditPersonFact:
		return a.revertEditPersonFact(ctx, snap.Fact)
	case KindLinkPerson:
		return nil
	case KindMergePerson:
		return a.revertMerge(ctx, snap.Merge)
	}
	return dErrors.New(dErrors.CodeInvariantViolation, "unknown snapshot kind: "+string(snap.Kind))
}

func missingPart(kind Kind) error {
	return dErrors.New(dErrors.CodeInvariantViolation, "snapshot for "+string(kind)+" is incomplete")
}

func (a *Applier) revertAddParentChild(ctx context.Context, edge *graph.ParentChild) error {
	if edge == nil {
		return missingPart(KindAddParentChild)
	}
	if err := a.graph.DeleteParentChild(ctx, *edge); err != nil {
		return revertErr(err, "the created parent-child edge")
	}
	return nil
}

func (a *Applier) revertRemoveParentChild(ctx context.Context, edge *graph.ParentChild) error {
	if edge == nil {
		return missingPart(KindRemoveParentChild)
	}
	if err := a.activePersons(ctx, edge.ParentID, edge.ChildID); err != nil {
		return revertErr(err, "a person on the removed edge")
	}
	if edge.UnionID != nil {
		if _, err := a.graph.FindUnionByID(ctx, *edge.UnionID); err != nil {
			return revertErr(err, "the union of the removed edge")
		}
	}
	restored := *edge
	if err := a.graph.InsertParentChild(ctx, &restored); err != nil {
		return revertErr(err, "the removed parent-child slot")
	}
	return nil
}

func (a *Applier) revertAddUnion(ctx context.Context, u *graph.Union) error {
	if u == nil {
		return missingPart(KindAddUnion)
	}
	if err := a.graph.DeleteUnion(ctx, *u); err != nil {
		return revertErr(err, "the created union")
	}
	return nil
}

func (a *Applier) revertRemoveUnion(ctx context.Context, u *graph.Union) error {
	if u == nil {
		return missingPart(KindRemoveUnion)
	}
	if err := a.activePersons(ctx, u.PartnerA, u.PartnerB); err != nil {
		return revertErr(err, "a partner of the removed union")
	}
	restored := *u
	if err := a.graph.InsertUnion(ctx, &restored); err != nil {
		return revertErr(err, "the removed union slot")
	}
	return nil
}

func (a *Applier) revertEditPersonFact(ctx context.Context, f *FactSnapshot) error {
	if f == nil {
		return missingPart(KindEditPersonFact)
	}
	if err := a.graph.UpdatePersonField(ctx, f.PersonID, f.Field, f.After, f.Before); err != nil {
		return revertErr(err, "the edited fact")
	}
	return nil
}
