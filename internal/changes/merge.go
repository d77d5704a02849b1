package changes

import (
	"context"
	"errors"
	"time"

	"lineage/internal/graph"
	id "lineage/pkg/domain"
	"lineage/pkg/platform/sentinel"
)

// merge folds absorb into keep. Unions move first so that edges pointing at a
// dropped union are relinked before edges themselves are re-pointed.
func (a *Applier) merge(ctx context.Context, keep, absorb id.PersonID, at time.Time) (*MergeSnapshot, error) {
	absorbed, err := a.activePerson(ctx, absorb)
	if err != nil {
		return nil, err
	}
	snap := &MergeSnapshot{Keep: keep, Absorb: absorb, Absorbed: *absorbed}

	if err := a.mergeUnions(ctx, snap); err != nil {
		return nil, err
	}
	if err := a.mergeEdges(ctx, snap); err != nil {
		return nil, err
	}
	if err := a.graph.MarkPersonMerged(ctx, absorb, keep, at); err != nil {
		return nil, storeErr(err, "absorbed person")
	}
	return snap, nil
}

func (a *Applier) mergeUnions(ctx context.Context, snap *MergeSnapshot) error {
	unions, err := a.graph.ListUnionsByPerson(ctx, snap.Absorb)
	if err != nil {
		return internal(err, "failed to list unions")
	}
	for _, u := range unions {
		partner := u.Other(snap.Absorb)

		var target *id.UnionID
		if partner != snap.Keep {
			existing, err := a.graph.FindUnion(ctx, snap.Keep, partner)
			switch {
			case err == nil:
				target = &existing.ID
			case errors.Is(err, sentinel.ErrNotFound):
				if err := a.repointUnion(ctx, snap, *u, partner); err != nil {
					return err
				}
				continue
			default:
				return internal(err, "failed to load union")
			}
		}

		// The union would duplicate one keep already has, or would join keep
		// to itself. Move its children to target (nil detaches them) and drop it.
		children, err := a.graph.ListParentChildByUnion(ctx, u.ID)
		if err != nil {
			return internal(err, "failed to list union children")
		}
		for _, e := range children {
			if err := a.graph.SetParentChildUnion(ctx, e.ID, target); err != nil {
				return storeErr(err, "parent-child edge")
			}
			snap.RelinkedEdges = append(snap.RelinkedEdges, EdgeRelink{EdgeID: e.ID, From: e.UnionID, To: target})
		}
		if err := a.graph.DeleteUnion(ctx, *u); err != nil {
			return storeErr(err, "union")
		}
		snap.DroppedUnions = append(snap.DroppedUnions, *u)
	}
	return nil
}

func (a *Applier) repointUnion(ctx context.Context, snap *MergeSnapshot, u graph.Union, partner id.PersonID) error {
	if err := a.graph.RepointUnion(ctx, u.ID, snap.Keep, partner); err != nil {
		return storeErr(err, "union")
	}
	after := u
	after.PartnerA, after.PartnerB = id.CanonicalPair(snap.Keep, partner)
	snap.RepointedUnions = append(snap.RepointedUnions, UnionMove{Before: u, After: after})
	return nil
}

func (a *Applier) mergeEdges(ctx context.Context, snap *MergeSnapshot) error {
	edges, err := a.graph.ListParentChildByPerson(ctx, snap.Absorb)
	if err != nil {
		return internal(err, "failed to list parent-child edges")
	}
	for _, e := range edges {
		after := *e
		if after.ParentID == snap.Absorb {
			after.ParentID = snap.Keep
		}
		if after.ChildID == snap.Absorb {
			after.ChildID = snap.Keep
		}

		drop := after.ParentID == after.ChildID
		if !drop {
			dup, err := exists(a.graph.FindParentChild(ctx, after.ParentID, after.ChildID))
			if err != nil {
				return err
			}
			drop = dup
		}

		if drop {
			if err := a.graph.DeleteParentChild(ctx, *e); err != nil {
				return storeErr(err, "parent-child edge")
			}
			snap.DroppedEdges = append(snap.DroppedEdges, *e)
			continue
		}
		if err := a.graph.RepointParentChild(ctx, e.ID, after.ParentID, after.ChildID); err != nil {
			return storeErr(err, "parent-child edge")
		}
		snap.RepointedEdges = append(snap.RepointedEdges, EdgeMove{Before: *e, After: after})
	}
	return nil
}

// revertMerge replays the merge backwards. Each step first confirms the
// record still looks the way the merge left it.
func (a *Applier) revertMerge(ctx context.Context, m *MergeSnapshot) error {
	if m == nil {
		return missingPart(KindMergePerson)
	}
	if err := a.graph.LockPersons(ctx, m.Keep, m.Absorb); err != nil {
		return revertErr(err, "a merged person")
	}

	absorbed, err := a.graph.FindPerson(ctx, m.Absorb)
	if err != nil {
		return revertErr(err, "the absorbed person")
	}
	if absorbed.MergedInto == nil || *absorbed.MergedInto != m.Keep {
		return conflict("cannot revert: %s is no longer merged into %s", m.Absorb, m.Keep)
	}
	if _, err := a.activePerson(ctx, m.Keep); err != nil {
		return revertErr(err, "the kept person")
	}
	if err := a.graph.RestorePerson(ctx, m.Absorb); err != nil {
		return revertErr(err, "the absorbed person")
	}

	for i := len(m.RepointedEdges) - 1; i >= 0; i-- {
		mv := m.RepointedEdges[i]
		cur, err := a.graph.FindParentChildByID(ctx, mv.After.ID)
		if err != nil {
			return revertErr(err, "a re-pointed parent-child edge")
		}
		if !sameEdge(cur, &mv.After) {
			return conflict("cannot revert: parent-child edge %s changed since the merge", mv.After.ID)
		}
		if err := a.graph.RepointParentChild(ctx, mv.Before.ID, mv.Before.ParentID, mv.Before.ChildID); err != nil {
			return revertErr(err, "a re-pointed parent-child edge")
		}
	}

	for i := len(m.RepointedUnions) - 1; i >= 0; i-- {
		mv := m.RepointedUnions[i]
		cur, err := a.graph.FindUnionByID(ctx, mv.After.ID)
		if err != nil {
			return revertErr(err, "a re-pointed union")
		}
		if cur.PartnerA != mv.After.PartnerA || cur.PartnerB != mv.After.PartnerB {
			return conflict("cannot revert: union %s changed since the merge", mv.After.ID)
		}
		if err := a.graph.RepointUnion(ctx, mv.Before.ID, mv.Before.PartnerA, mv.Before.PartnerB); err != nil {
			return revertErr(err, "a re-pointed union")
		}
	}

	for _, u := range m.DroppedUnions {
		restored := u
		if err := a.graph.InsertUnion(ctx, &restored); err != nil {
			return revertErr(err, "a dropped union slot")
		}
	}

	for _, e := range m.DroppedEdges {
		restored := e
		if err := a.graph.InsertParentChild(ctx, &restored); err != nil {
			return revertErr(err, "a dropped parent-child slot")
		}
	}

	for i := len(m.RelinkedEdges) - 1; i >= 0; i-- {
		rl := m.RelinkedEdges[i]
		cur, err := a.graph.FindParentChildByID(ctx, rl.EdgeID)
		if err != nil {
			return revertErr(err, "a relinked parent-child edge")
		}
		if !graph.SameUnionID(cur.UnionID, rl.To) {
			return conflict("cannot revert: parent-child edge %s changed union since the merge", rl.EdgeID)
		}
		if err := a.graph.SetParentChildUnion(ctx, rl.EdgeID, rl.From); err != nil {
			return revertErr(err, "a relinked parent-child edge")
		}
	}
	return nil
}

func sameEdge(a, b *graph.ParentChild) bool {
	return a.ID == b.ID && a.ParentID == b.ParentID && a.ChildID == b.ChildID &&
		a.Relationship == b.Relationship && graph.SameUnionID(a.UnionID, b.UnionID)
}
