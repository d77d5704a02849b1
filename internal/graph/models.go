// Package graph models the canonical genealogy graph: people, parent-child
// edges and unions between partners.
package graph

import (
	"time"

	id "lineage/pkg/domain"
	dErrors "lineage/pkg/domain-errors"
)

type Sex string

const (
	SexMale    Sex = "male"
	SexFemale  Sex = "female"
	SexUnknown Sex = "unknown"
)

func (s Sex) IsValid() bool {
	return s == SexMale || s == SexFemale || s == SexUnknown
}

// Relationship qualifies a parent-child edge.
type Relationship string

const (
	RelationshipBiological Relationship = "biological"
	RelationshipAdoptive   Relationship = "adoptive"
	RelationshipStep       Relationship = "step"
	RelationshipFoster     Relationship = "foster"
)

func (r Relationship) IsValid() bool {
	switch r {
	case RelationshipBiological, RelationshipAdoptive, RelationshipStep, RelationshipFoster:
		return true
	}
	return false
}

type UnionKind string

const (
	UnionMarriage    UnionKind = "marriage"
	UnionPartnership UnionKind = "partnership"
	UnionOther       UnionKind = "other"
)

func (k UnionKind) IsValid() bool {
	return k == UnionMarriage || k == UnionPartnership || k == UnionOther
}

// PersonField names an editable fact on a Person.
type PersonField string

const (
	FieldGivenName  PersonField = "given_name"
	FieldSurname    PersonField = "surname"
	FieldSex        PersonField = "sex"
	FieldBirthDate  PersonField = "birth_date"
	FieldDeathDate  PersonField = "death_date"
	FieldBirthPlace PersonField = "birth_place"
	FieldDeathPlace PersonField = "death_place"
)

// Nullable reports whether the field may be cleared.
func (f PersonField) Nullable() bool {
	switch f {
	case FieldBirthDate, FieldDeathDate, FieldBirthPlace, FieldDeathPlace:
		return true
	}
	return false
}

func (f PersonField) IsValid() bool {
	switch f {
	case FieldGivenName, FieldSurname, FieldSex, FieldBirthDate, FieldDeathDate, FieldBirthPlace, FieldDeathPlace:
		return true
	}
	return false
}

// ValidateValue checks a proposed value for the field.
func (f PersonField) ValidateValue(v *string) error {
	if !f.IsValid() {
		return dErrors.New(dErrors.CodeBadRequest, "unknown person field: "+string(f))
	}
	if v == nil {
		if !f.Nullable() {
			return dErrors.New(dErrors.CodeBadRequest, string(f)+" cannot be cleared")
		}
		return nil
	}
	switch f {
	case FieldSex:
		if !Sex(*v).IsValid() {
			return dErrors.New(dErrors.CodeBadRequest, "invalid sex: "+*v)
		}
	case FieldBirthDate, FieldDeathDate:
		if _, err := ParseDate(*v); err != nil {
			return err
		}
	}
	return nil
}

// Person is one individual in a tree. Merged people keep their row with
// MergedInto and DeletedAt set.
type Person struct {
	ID         id.PersonID  `json:"id"`
	TreeID     id.TreeID    `json:"tree_id"`
	GivenName  string       `json:"given_name"`
	Surname    string       `json:"surname"`
	Sex        Sex          `json:"sex"`
	BirthDate  *string      `json:"birth_date,omitempty"`
	DeathDate  *string      `json:"death_date,omitempty"`
	BirthPlace *string      `json:"birth_place,omitempty"`
	DeathPlace *string      `json:"death_place,omitempty"`
	MergedInto *id.PersonID `json:"merged_into,omitempty"`
	DeletedAt  *time.Time   `json:"deleted_at,omitempty"`
}

func (p *Person) Active() bool {
	return p.DeletedAt == nil
}

// Field returns the current value of f. Non-nullable fields are never nil.
func (p *Person) Field(f PersonField) *string {
	switch f {
	case FieldGivenName:
		return ptr(p.GivenName)
	case FieldSurname:
		return ptr(p.Surname)
	case FieldSex:
		return ptr(string(p.Sex))
	case FieldBirthDate:
		return p.BirthDate
	case FieldDeathDate:
		return p.DeathDate
	case FieldBirthPlace:
		return p.BirthPlace
	case FieldDeathPlace:
		return p.DeathPlace
	}
	return nil
}

// SetField assigns v to f. Callers validate v with ValidateValue first.
func (p *Person) SetField(f PersonField, v *string) {
	switch f {
	case FieldGivenName:
		p.GivenName = deref(v)
	case FieldSurname:
		p.Surname = deref(v)
	case FieldSex:
		p.Sex = Sex(deref(v))
	case FieldBirthDate:
		p.BirthDate = clone(v)
	case FieldDeathDate:
		p.DeathDate = clone(v)
	case FieldBirthPlace:
		p.BirthPlace = clone(v)
	case FieldDeathPlace:
		p.DeathPlace = clone(v)
	}
}

// ParentChild is a directed edge from parent to child, optionally attached to
// the union the child was born into.
type ParentChild struct {
	ID           id.ParentChildID `json:"id"`
	ParentID     id.PersonID      `json:"parent_id"`
	ChildID      id.PersonID      `json:"child_id"`
	Relationship Relationship     `json:"relationship"`
	UnionID      *id.UnionID      `json:"union_id,omitempty"`
}

// Union joins two partners. PartnerA always sorts before PartnerB.
type Union struct {
	ID        id.UnionID  `json:"id"`
	PartnerA  id.PersonID `json:"partner_a"`
	PartnerB  id.PersonID `json:"partner_b"`
	Kind      UnionKind   `json:"kind"`
	StartDate *string     `json:"start_date,omitempty"`
	EndDate   *string     `json:"end_date,omitempty"`
}

// Involves reports whether p is one of the partners.
func (u *Union) Involves(p id.PersonID) bool {
	return u.PartnerA == p || u.PartnerB == p
}

// Other returns the partner that is not p.
func (u *Union) Other(p id.PersonID) id.PersonID {
	if u.PartnerA == p {
		return u.PartnerB
	}
	return u.PartnerA
}

// SameUnionID compares optional union references.
func SameUnionID(a, b *id.UnionID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// SameValue compares optional field values.
func SameValue(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func clone(v *string) *string {
	if v == nil {
		return nil
	}
	return ptr(*v)
}

func ptr(s string) *string {
	return &s
}
