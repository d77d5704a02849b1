package domain

import (
	"database/sql/driver"

	"github.com/google/uuid"
)

func scanUUID(src any) (uuid.UUID, error) {
	var u uuid.UUID
	if err := u.Scan(src); err != nil {
		return uuid.Nil, err
	}
	return u, nil
}

func (id UserID) Value() (driver.Value, error)        { return uuid.UUID(id).String(), nil }
func (id PersonID) Value() (driver.Value, error)      { return uuid.UUID(id).String(), nil }
func (id TreeID) Value() (driver.Value, error)        { return uuid.UUID(id).String(), nil }
func (id TownID) Value() (driver.Value, error)        { return uuid.UUID(id).String(), nil }
func (id SuggestionID) Value() (driver.Value, error)  { return uuid.UUID(id).String(), nil }
func (id EvidenceID) Value() (driver.Value, error)    { return uuid.UUID(id).String(), nil }
func (id CommentID) Value() (driver.Value, error)     { return uuid.UUID(id).String(), nil }
func (id ParentChildID) Value() (driver.Value, error) { return uuid.UUID(id).String(), nil }
func (id UnionID) Value() (driver.Value, error)       { return uuid.UUID(id).String(), nil }
func (id CandidateID) Value() (driver.Value, error)   { return uuid.UUID(id).String(), nil }

func (id *UserID) Scan(src any) error {
	u, err := scanUUID(src)
	*id = UserID(u)
	return err
}

func (id *PersonID) Scan(src any) error {
	u, err := scanUUID(src)
	*id = PersonID(u)
	return err
}

func (id *TreeID) Scan(src any) error {
	u, err := scanUUID(src)
	*id = TreeID(u)
	return err
}

func (id *TownID) Scan(src any) error {
	u, err := scanUUID(src)
	*id = TownID(u)
	return err
}

func (id *SuggestionID) Scan(src any) error {
	u, err := scanUUID(src)
	*id = SuggestionID(u)
	return err
}

func (id *EvidenceID) Scan(src any) error {
	u, err := scanUUID(src)
	*id = EvidenceID(u)
	return err
}

func (id *CommentID) Scan(src any) error {
	u, err := scanUUID(src)
	*id = CommentID(u)
	return err
}

func (id *ParentChildID) Scan(src any) error {
	u, err := scanUUID(src)
	*id = ParentChildID(u)
	return err
}

func (id *UnionID) Scan(src any) error {
	u, err := scanUUID(src)
	*id = UnionID(u)
	return err
}

func (id *CandidateID) Scan(src any) error {
	u, err := scanUUID(src)
	*id = CandidateID(u)
	return err
}
