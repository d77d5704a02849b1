// Package domain holds the typed identifiers shared across lineage packages.
//
// Every entity has its own ID type over uuid.UUID so a PersonID can never be
// passed where a SuggestionID is expected. Construct IDs with the Parse*
// functions at trust boundaries; New* functions mint fresh identifiers.
package domain

import (
	"bytes"

	"github.com/google/uuid"

	dErrors "lineage/pkg/domain-errors"
)

type (
	UserID        uuid.UUID
	PersonID      uuid.UUID
	TreeID        uuid.UUID
	TownID        uuid.UUID
	SuggestionID  uuid.UUID
	EvidenceID    uuid.UUID
	CommentID     uuid.UUID
	ParentChildID uuid.UUID
	UnionID       uuid.UUID
	CandidateID   uuid.UUID
)

func parseUUID(s, label string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" is required")
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+label)
	}
	if parsed == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" cannot be nil")
	}
	return parsed, nil
}

func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s, "user ID")
	return UserID(u), err
}

func ParsePersonID(s string) (PersonID, error) {
	u, err := parseUUID(s, "person ID")
	return PersonID(u), err
}

func ParseTreeID(s string) (TreeID, error) {
	u, err := parseUUID(s, "tree ID")
	return TreeID(u), err
}

func ParseTownID(s string) (TownID, error) {
	u, err := parseUUID(s, "town ID")
	return TownID(u), err
}

func ParseSuggestionID(s string) (SuggestionID, error) {
	u, err := parseUUID(s, "suggestion ID")
	return SuggestionID(u), err
}

func ParseUnionID(s string) (UnionID, error) {
	u, err := parseUUID(s, "union ID")
	return UnionID(u), err
}

func NewPersonID() PersonID           { return PersonID(uuid.New()) }
func NewSuggestionID() SuggestionID   { return SuggestionID(uuid.New()) }
func NewEvidenceID() EvidenceID       { return EvidenceID(uuid.New()) }
func NewCommentID() CommentID         { return CommentID(uuid.New()) }
func NewParentChildID() ParentChildID { return ParentChildID(uuid.New()) }
func NewUnionID() UnionID             { return UnionID(uuid.New()) }
func NewCandidateID() CandidateID     { return CandidateID(uuid.New()) }

func (id UserID) String() string        { return uuid.UUID(id).String() }
func (id PersonID) String() string      { return uuid.UUID(id).String() }
func (id TreeID) String() string        { return uuid.UUID(id).String() }
func (id TownID) String() string        { return uuid.UUID(id).String() }
func (id SuggestionID) String() string  { return uuid.UUID(id).String() }
func (id EvidenceID) String() string    { return uuid.UUID(id).String() }
func (id CommentID) String() string     { return uuid.UUID(id).String() }
func (id ParentChildID) String() string { return uuid.UUID(id).String() }
func (id UnionID) String() string       { return uuid.UUID(id).String() }
func (id CandidateID) String() string   { return uuid.UUID(id).String() }

func (id UserID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }
func (id PersonID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id TreeID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }
func (id TownID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }
func (id SuggestionID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id ParentChildID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id UnionID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }

// Less orders person IDs by their byte representation, which matches the
// ordering postgres applies to uuid columns.
func (id PersonID) Less(other PersonID) bool {
	return bytes.Compare(id[:], other[:]) < 0
}

// CanonicalPair returns a and b ordered lower-first.
func CanonicalPair(a, b PersonID) (PersonID, PersonID) {
	if b.Less(a) {
		return b, a
	}
	return a, b
}
