package changes

import (
	"encoding/json"
	"time"

	"lineage/internal/graph"
	id "lineage/pkg/domain"
)

// Snapshot records what Apply did so Revert can undo it. Exactly one of the
// kind-specific parts is set.
type Snapshot struct {
	Kind      Kind      `json:"kind"`
	AppliedAt time.Time `json:"applied_at"`

	// Edge is the edge created by AddParentChild or removed by
	// RemoveParentChild.
	Edge *graph.ParentChild `json:"edge,omitempty"`
	// Union is the union created by AddUnion or removed by RemoveUnion.
	Union *graph.Union   `json:"union,omitempty"`
	Fact  *FactSnapshot  `json:"fact,omitempty"`
	Link  *LinkSnapshot  `json:"link,omitempty"`
	Merge *MergeSnapshot `json:"merge,omitempty"`
}

type FactSnapshot struct {
	PersonID id.PersonID       `json:"person_id"`
	Field    graph.PersonField `json:"field"`
	Before   *string           `json:"before"`
	After    *string           `json:"after"`
}

type LinkSnapshot struct {
	PersonA id.PersonID `json:"person_a"`
	PersonB id.PersonID `json:"person_b"`
}

// MergeSnapshot lists every graph mutation a merge performed, in the order
// it performed them.
type MergeSnapshot struct {
	Keep     id.PersonID  `json:"keep"`
	Absorb   id.PersonID  `json:"absorb"`
	Absorbed graph.Person `json:"absorbed"`

	// RelinkedEdges moved children off unions that were dropped.
	RelinkedEdges   []EdgeRelink        `json:"relinked_edges,omitempty"`
	DroppedUnions   []graph.Union       `json:"dropped_unions,omitempty"`
	RepointedUnions []UnionMove         `json:"repointed_unions,omitempty"`
	DroppedEdges    []graph.ParentChild `json:"dropped_edges,omitempty"`
	RepointedEdges  []EdgeMove          `json:"repointed_edges,omitempty"`
}

type EdgeRelink struct {
	EdgeID id.ParentChildID `json:"edge_id"`
	From   *id.UnionID      `json:"from,omitempty"`
	To     *id.UnionID      `json:"to,omitempty"`
}

type EdgeMove struct {
	Before graph.ParentChild `json:"before"`
	After  graph.ParentChild `json:"after"`
}

type UnionMove struct {
	Before graph.Union `json:"before"`
	After  graph.Union `json:"after"`
}

// BeforeJSON describes the graph state the change replaced, for audit.
func (s *Snapshot) BeforeJSON() json.RawMessage {
	switch s.Kind {
	case KindRemoveParentChild:
		return mustJSON(s.Edge)
	case KindRemoveUnion:
		return mustJSON(s.Union)
	case KindEditPersonFact:
		return mustJSON(map[string]any{"person_id": s.Fact.PersonID, "field": s.Fact.Field, "value": s.Fact.Before})
	case KindMergePerson:
		return mustJSON(s.Merge.Absorbed)
	}
	return nil
}

// AfterJSON describes the graph state the change produced, for audit.
func (s *Snapshot) AfterJSON() json.RawMessage {
	switch s.Kind {
	case KindAddParentChild:
		return mustJSON(s.Edge)
	case KindAddUnion:
		return mustJSON(s.Union)
	case KindEditPersonFact:
		return mustJSON(map[string]any{"person_id": s.Fact.PersonID, "field": s.Fact.Field, "value": s.Fact.After})
	case KindLinkPerson:
		return mustJSON(s.Link)
	case KindMergePerson:
		return mustJSON(map[string]any{
			"keep":             s.Merge.Keep,
			"absorb":           s.Merge.Absorb,
			"repointed_edges":  len(s.Merge.RepointedEdges),
			"dropped_edges":    len(s.Merge.DroppedEdges),
			"repointed_unions": len(s.Merge.RepointedUnions),
			"dropped_unions":   len(s.Merge.DroppedUnions),
		})
	}
	return nil
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}
