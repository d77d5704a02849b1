// Package changes applies and reverts typed edits to the genealogy graph.
//
// A Change is one of a closed set of variants. Callers switch on the concrete
// type; Encode and Decode move a Change through its JSON envelope
// {"kind": ..., "data": {...}} for persistence.
package changes

import (
	"encoding/json"
	"fmt"
	"slices"

	"lineage/internal/graph"
	id "lineage/pkg/domain"
	dErrors "lineage/pkg/domain-errors"
)

type Kind string

const (
	KindAddParentChild    Kind = "add_parent_child"
	KindRemoveParentChild Kind = "remove_parent_child"
	KindAddUnion          Kind = "add_union"
	KindRemoveUnion       Kind = "remove_union"
	KindEditPersonFact    Kind = "edit_person_fact"
	KindLinkPerson        Kind = "link_person"
	KindMergePerson       Kind = "merge_person"
)

// Kinds lists every change kind in a stable order.
var Kinds = []Kind{
	KindAddParentChild, KindRemoveParentChild, KindAddUnion, KindRemoveUnion,
	KindEditPersonFact, KindLinkPerson, KindMergePerson,
}

// SuggestionKinds are the changes a suggestion may propose. Linking and
// merging people only happen when a duplicate candidate is resolved.
var SuggestionKinds = []Kind{
	KindAddParentChild, KindRemoveParentChild, KindAddUnion, KindRemoveUnion, KindEditPersonFact,
}

func (k Kind) IsValid() bool {
	return slices.Contains(Kinds, k)
}

// IsSuggestion reports whether k may be submitted as a suggestion.
func (k Kind) IsSuggestion() bool {
	return slices.Contains(SuggestionKinds, k)
}

// Change is implemented only by the variants in this package.
type Change interface {
	Kind() Kind
	Validate() error
	// Persons returns every person the change touches.
	Persons() []id.PersonID
	isChange()
}

type AddParentChild struct {
	ParentID     id.PersonID        `json:"parent_id"`
	ChildID      id.PersonID        `json:"child_id"`
	Relationship graph.Relationship `json:"relationship"`
	UnionID      *id.UnionID        `json:"union_id,omitempty"`
}

type RemoveParentChild struct {
	ParentID id.PersonID `json:"parent_id"`
	ChildID  id.PersonID `json:"child_id"`
}

type AddUnion struct {
	PartnerA  id.PersonID     `json:"partner_a"`
	PartnerB  id.PersonID     `json:"partner_b"`
	UnionKind graph.UnionKind `json:"kind"`
	StartDate *string         `json:"start_date,omitempty"`
}

type RemoveUnion struct {
	PartnerA id.PersonID `json:"partner_a"`
	PartnerB id.PersonID `json:"partner_b"`
}

type EditPersonFact struct {
	PersonID id.PersonID       `json:"person_id"`
	Field    graph.PersonField `json:"field"`
	Value    *string           `json:"value"`
}

// LinkPerson records that two people are the same individual without
// touching the graph.
type LinkPerson struct {
	PersonA id.PersonID `json:"person_a"`
	PersonB id.PersonID `json:"person_b"`
}

// MergePerson folds Absorb into Keep.
type MergePerson struct {
	Keep   id.PersonID `json:"keep"`
	Absorb id.PersonID `json:"absorb"`
}

func (AddParentChild) Kind() Kind    { return KindAddParentChild }
func (RemoveParentChild) Kind() Kind { return KindRemoveParentChild }
func (AddUnion) Kind() Kind          { return KindAddUnion }
func (RemoveUnion) Kind() Kind       { return KindRemoveUnion }
func (EditPersonFact) Kind() Kind    { return KindEditPersonFact }
func (LinkPerson) Kind() Kind        { return KindLinkPerson }
func (MergePerson) Kind() Kind       { return KindMergePerson }

func (AddParentChild) isChange()    {}
func (RemoveParentChild) isChange() {}
func (AddUnion) isChange()          {}
func (RemoveUnion) isChange()       {}
func (EditPersonFact) isChange()    {}
func (LinkPerson) isChange()        {}
func (MergePerson) isChange()       {}

func (c AddParentChild) Persons() []id.PersonID    { return []id.PersonID{c.ParentID, c.ChildID} }
func (c RemoveParentChild) Persons() []id.PersonID { return []id.PersonID{c.ParentID, c.ChildID} }
func (c AddUnion) Persons() []id.PersonID          { return []id.PersonID{c.PartnerA, c.PartnerB} }
func (c RemoveUnion) Persons() []id.PersonID       { return []id.PersonID{c.PartnerA, c.PartnerB} }
func (c EditPersonFact) Persons() []id.PersonID    { return []id.PersonID{c.PersonID} }
func (c LinkPerson) Persons() []id.PersonID        { return []id.PersonID{c.PersonA, c.PersonB} }
func (c MergePerson) Persons() []id.PersonID       { return []id.PersonID{c.Keep, c.Absorb} }

func badRequest(msg string) error {
	return dErrors.New(dErrors.CodeBadRequest, msg)
}

func requirePair(a, b id.PersonID, first, second string) error {
	if a.IsNil() {
		return badRequest(first + " is required")
	}
	if b.IsNil() {
		return badRequest(second + " is required")
	}
	if a == b {
		return badRequest(first + " and " + second + " must differ")
	}
	return nil
}

func (c AddParentChild) Validate() error {
	if err := requirePair(c.ParentID, c.ChildID, "parent_id", "child_id"); err != nil {
		return err
	}
	if !c.Relationship.IsValid() {
		return badRequest("invalid relationship: " + string(c.Relationship))
	}
	if c.UnionID != nil && c.UnionID.IsNil() {
		return badRequest("union_id cannot be nil")
	}
	return nil
}

func (c RemoveParentChild) Validate() error {
	return requirePair(c.ParentID, c.ChildID, "parent_id", "child_id")
}

func (c AddUnion) Validate() error {
	if err := requirePair(c.PartnerA, c.PartnerB, "partner_a", "partner_b"); err != nil {
		return err
	}
	if !c.UnionKind.IsValid() {
		return badRequest("invalid union kind: " + string(c.UnionKind))
	}
	if c.StartDate != nil {
		if _, err := graph.ParseDate(*c.StartDate); err != nil {
			return err
		}
	}
	return nil
}

func (c RemoveUnion) Validate() error {
	return requirePair(c.PartnerA, c.PartnerB, "partner_a", "partner_b")
}

func (c EditPersonFact) Validate() error {
	if c.PersonID.IsNil() {
		return badRequest("person_id is required")
	}
	return c.Field.ValidateValue(c.Value)
}

func (c LinkPerson) Validate() error {
	return requirePair(c.PersonA, c.PersonB, "person_a", "person_b")
}

func (c MergePerson) Validate() error {
	return requirePair(c.Keep, c.Absorb, "keep", "absorb")
}

type envelope struct {
	Kind Kind            `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// Encode wraps c in its JSON envelope.
func Encode(c Change) (json.RawMessage, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", c.Kind(), err)
	}
	return json.Marshal(envelope{Kind: c.Kind(), Data: data})
}

// Decode reads a change from its JSON envelope.
func Decode(raw []byte) (Change, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid change envelope")
	}
	return DecodeData(env.Kind, env.Data)
}

// DecodeData decodes the payload of a change of the given kind and validates
// it.
func DecodeData(kind Kind, data []byte) (Change, error) {
	var (
		c   Change
		err error
	)
	switch kind {
	case KindAddParentChild:
		c, err = unmarshal[AddParentChild](data)
	case KindRemoveParentChild:
		c, err = unmarshal[RemoveParentChild](data)
	case KindAddUnion:
		c, err = unmarshal[AddUnion](data)
	case KindRemoveUnion:
		c, err = unmarshal[RemoveUnion](data)
	case KindEditPersonFact:
		c, err = unmarshal[EditPersonFact](data)
	case KindLinkPerson:
		c, err = unmarshal[LinkPerson](data)
	case KindMergePerson:
		c, err = unmarshal[MergePerson](data)
	default:
		return nil, badRequest("unknown change kind: " + string(kind))
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid "+string(kind)+" payload")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func unmarshal[T Change](data []byte) (Change, error) {
	var v T
	if len(data) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}
