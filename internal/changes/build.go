package changes

import (
	"encoding/json"

	"lineage/internal/graph"
	id "lineage/pkg/domain"
)

// Build assembles a change of the given kind from a suggestion's subject
// people and its kind-specific payload.
//
// Subjects map onto each kind as follows: for parent-child edges target is
// the child and secondary the parent; for unions, links and merges they are
// the two people involved (merge keeps target); fact edits apply to target.
func Build(kind Kind, target id.PersonID, secondary *id.PersonID, payload json.RawMessage) (Change, error) {
	if !kind.IsSuggestion() {
		return nil, badRequest("unknown suggestion type: " + string(kind))
	}
	if target.IsNil() {
		return nil, badRequest("target_person_id is required")
	}

	var other id.PersonID
	if secondary != nil {
		other = *secondary
	}
	if kind != KindEditPersonFact && other.IsNil() {
		return nil, badRequest("secondary_person_id is required for " + string(kind))
	}

	var c Change
	switch kind {
	case KindAddParentChild:
		var p struct {
			Relationship graph.Relationship `json:"relationship"`
			UnionID      *id.UnionID        `json:"union_id"`
		}
		if err := decodePayload(payload, &p); err != nil {
			return nil, err
		}
		if p.Relationship == "" {
			p.Relationship = graph.RelationshipBiological
		}
		c = AddParentChild{ParentID: other, ChildID: target, Relationship: p.Relationship, UnionID: p.UnionID}
	case KindRemoveParentChild:
		c = RemoveParentChild{ParentID: other, ChildID: target}
	case KindAddUnion:
		var p struct {
			Kind      graph.UnionKind `json:"kind"`
			StartDate *string         `json:"start_date"`
		}
		if err := decodePayload(payload, &p); err != nil {
			return nil, err
		}
		if p.Kind == "" {
			p.Kind = graph.UnionMarriage
		}
		c = AddUnion{PartnerA: target, PartnerB: other, UnionKind: p.Kind, StartDate: p.StartDate}
	case KindRemoveUnion:
		c = RemoveUnion{PartnerA: target, PartnerB: other}
	case KindEditPersonFact:
		var p struct {
			Field graph.PersonField `json:"field"`
			Value *string           `json:"value"`
		}
		if err := decodePayload(payload, &p); err != nil {
			return nil, err
		}
		c = EditPersonFact{PersonID: target, Field: p.Field, Value: p.Value}
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func decodePayload(payload json.RawMessage, into any) error {
	if len(payload) == 0 || string(payload) == "null" {
		return nil
	}
	if err := json.Unmarshal(payload, into); err != nil {
		return badRequest("invalid payload: " + err.Error())
	}
	return nil
}
