package domain

import "github.com/google/uuid"

// Text marshalling makes IDs encode as UUID strings in JSON documents
// (snapshots, change payloads, API responses) instead of byte arrays.

func unmarshalUUID(b []byte) (uuid.UUID, error) {
	var u uuid.UUID
	err := u.UnmarshalText(b)
	return u, err
}

func (id UserID) MarshalText() ([]byte, error)        { return uuid.UUID(id).MarshalText() }
func (id PersonID) MarshalText() ([]byte, error)      { return uuid.UUID(id).MarshalText() }
func (id TreeID) MarshalText() ([]byte, error)        { return uuid.UUID(id).MarshalText() }
func (id TownID) MarshalText() ([]byte, error)        { return uuid.UUID(id).MarshalText() }
func (id SuggestionID) MarshalText() ([]byte, error)  { return uuid.UUID(id).MarshalText() }
func (id EvidenceID) MarshalText() ([]byte, error)    { return uuid.UUID(id).MarshalText() }
func (id CommentID) MarshalText() ([]byte, error)     { return uuid.UUID(id).MarshalText() }
func (id ParentChildID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id UnionID) MarshalText() ([]byte, error)       { return uuid.UUID(id).MarshalText() }
func (id CandidateID) MarshalText() ([]byte, error)   { return uuid.UUID(id).MarshalText() }

func (id *UserID) UnmarshalText(b []byte) error {
	u, err := unmarshalUUID(b)
	*id = UserID(u)
	return err
}

func (id *PersonID) UnmarshalText(b []byte) error {
	u, err := unmarshalUUID(b)
	*id = PersonID(u)
	return err
}

func (id *TreeID) UnmarshalText(b []byte) error {
	u, err := unmarshalUUID(b)
	*id = TreeID(u)
	return err
}

func (id *TownID) UnmarshalText(b []byte) error {
	u, err := unmarshalUUID(b)
	*id = TownID(u)
	return err
}

func (id *SuggestionID) UnmarshalText(b []byte) error {
	u, err := unmarshalUUID(b)
	*id = SuggestionID(u)
	return err
}

func (id *EvidenceID) UnmarshalText(b []byte) error {
	u, err := unmarshalUUID(b)
	*id = EvidenceID(u)
	return err
}

func (id *CommentID) UnmarshalText(b []byte) error {
	u, err := unmarshalUUID(b)
	*id = CommentID(u)
	return err
}

func (id *ParentChildID) UnmarshalText(b []byte) error {
	u, err := unmarshalUUID(b)
	*id = ParentChildID(u)
	return err
}

func (id *UnionID) UnmarshalText(b []byte) error {
	u, err := unmarshalUUID(b)
	*id = UnionID(u)
	return err
}

func (id *CandidateID) UnmarshalText(b []byte) error {
	u, err := unmarshalUUID(b)
	*id = CandidateID(u)
	return err
}
