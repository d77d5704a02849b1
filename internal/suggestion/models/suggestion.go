package models

import (
	"time"

	"lineage/internal/changes"
	id "lineage/pkg/domain"
	dErrors "lineage/pkg/domain-errors"
)

// Status is the review state of a suggestion. Deletion is tracked separately
// so a deleted suggestion keeps the status it had.
type Status string

const (
	StatusPending           Status = "pending"
	StatusApproved          Status = "approved"
	StatusRejected          Status = "rejected"
	StatusMoreInfoRequested Status = "more_info_requested"
	StatusWithdrawn         Status = "withdrawn"
	StatusRolledBack        Status = "rolled_back"

	// StatusDeleted is only ever reported by EffectiveStatus.
	StatusDeleted Status = "deleted"
)

var Statuses = []Status{
	StatusPending, StatusApproved, StatusRejected,
	StatusMoreInfoRequested, StatusWithdrawn, StatusRolledBack,
}

var transitions = map[Status][]Status{
	StatusPending:  {StatusApproved, StatusRejected, StatusMoreInfoRequested, StatusWithdrawn},
	StatusApproved: {StatusRolledBack},
}

func (s Status) IsValid() bool {
	for _, known := range Statuses {
		if s == known {
			return true
		}
	}
	return false
}

func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsOpen reports whether the suggestion still awaits a decision.
func (s Status) IsOpen() bool {
	return s == StatusPending || s == StatusMoreInfoRequested
}

// HoldsSnapshot reports whether suggestions in this status carry a snapshot.
func (s Status) HoldsSnapshot() bool {
	return s == StatusApproved || s == StatusRolledBack
}

type Review struct {
	ReviewerID id.UserID `json:"reviewer_id"`
	ReviewedAt time.Time `json:"reviewed_at"`
	Notes      string    `json:"notes,omitempty"`
	Reason     string    `json:"reason,omitempty"`
}

type Withdrawal struct {
	At     time.Time `json:"at"`
	Reason string    `json:"reason,omitempty"`
}

type RollbackRecord struct {
	By     id.UserID `json:"by"`
	At     time.Time `json:"at"`
	Reason string    `json:"reason"`
}

type Deletion struct {
	By id.UserID `json:"by"`
	At time.Time `json:"at"`
}

// Suggestion is a proposed change to the graph awaiting moderation.
//
// Invariants:
//   - Snapshot is set exactly when Status is approved or rolled_back
//   - Status moves only along CanTransitionTo
//   - a deleted suggestion accepts no further transitions
type Suggestion struct {
	ID                id.SuggestionID   `json:"id"`
	Type              changes.Kind      `json:"type"`
	Status            Status            `json:"status"`
	SubmitterID       id.UserID         `json:"submitter_id"`
	TownID            id.TownID         `json:"town_id"`
	TreeID            id.TreeID         `json:"tree_id"`
	TargetPersonID    id.PersonID       `json:"target_person_id"`
	SecondaryPersonID *id.PersonID      `json:"secondary_person_id,omitempty"`
	Change            changes.Change    `json:"-"`
	Snapshot          *changes.Snapshot `json:"snapshot,omitempty"`
	Review            *Review           `json:"review,omitempty"`
	Withdrawal        *Withdrawal       `json:"withdrawal,omitempty"`
	Rollback          *RollbackRecord   `json:"rollback,omitempty"`
	Deletion          *Deletion         `json:"deletion,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// NewSuggestion builds a pending suggestion for change.
func NewSuggestion(sid id.SuggestionID, submitter id.UserID, town id.TownID, tree id.TreeID,
	target id.PersonID, secondary *id.PersonID, change changes.Change, now time.Time) (*Suggestion, error) {
	if submitter.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "submitter is required")
	}
	if town.IsNil() || tree.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "town and tree are required")
	}
	if change == nil {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "change is required")
	}
	return &Suggestion{
		ID:                sid,
		Type:              change.Kind(),
		Status:            StatusPending,
		SubmitterID:       submitter,
		TownID:            town,
		TreeID:            tree,
		TargetPersonID:    target,
		SecondaryPersonID: secondary,
		Change:            change,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

func (s *Suggestion) IsDeleted() bool {
	return s.Deletion != nil
}

// EffectiveStatus reports deleted for soft-deleted suggestions and Status
// otherwise.
func (s *Suggestion) EffectiveStatus() Status {
	if s.IsDeleted() {
		return StatusDeleted
	}
	return s.Status
}

// CheckInvariants verifies the snapshot and status agree.
func (s *Suggestion) CheckInvariants() error {
	if s.Status.HoldsSnapshot() != (s.Snapshot != nil) {
		return dErrors.New(dErrors.CodeInvariantViolation, "snapshot presence does not match status "+string(s.Status))
	}
	return nil
}

// canMoveTo is the shared guard for every review transition. Failures are
// invariant violations; services translate them to conflicts.
func (s *Suggestion) canMoveTo(next Status) error {
	if s.IsDeleted() {
		return dErrors.New(dErrors.CodeInvariantViolation, "suggestion has been deleted")
	}
	if !s.Status.CanTransitionTo(next) {
		return dErrors.New(dErrors.CodeInvariantViolation,
			"cannot move suggestion from "+string(s.Status)+" to "+string(next))
	}
	return nil
}

func (s *Suggestion) CanApprove() error         { return s.canMoveTo(StatusApproved) }
func (s *Suggestion) CanReject() error          { return s.canMoveTo(StatusRejected) }
func (s *Suggestion) CanRequestMoreInfo() error { return s.canMoveTo(StatusMoreInfoRequested) }
func (s *Suggestion) CanWithdraw() error        { return s.canMoveTo(StatusWithdrawn) }
func (s *Suggestion) CanRollback() error        { return s.canMoveTo(StatusRolledBack) }

// ApplyApproval records a successful approval. Call CanApprove first.
func (s *Suggestion) ApplyApproval(reviewer id.UserID, notes string, snap *changes.Snapshot, now time.Time) {
	s.Status = StatusApproved
	s.Snapshot = snap
	s.Review = &Review{ReviewerID: reviewer, ReviewedAt: now, Notes: notes}
	s.UpdatedAt = now
}

// ApplyDecision records a reject or more-info decision.
func (s *Suggestion) ApplyDecision(next Status, reviewer id.UserID, reason, notes string, now time.Time) {
	s.Status = next
	s.Review = &Review{ReviewerID: reviewer, ReviewedAt: now, Notes: notes, Reason: reason}
	s.UpdatedAt = now
}

func (s *Suggestion) ApplyWithdrawal(reason string, now time.Time) {
	s.Status = StatusWithdrawn
	s.Withdrawal = &Withdrawal{At: now, Reason: reason}
	s.UpdatedAt = now
}

// ApplyRollback keeps the snapshot so the applied change stays on record.
func (s *Suggestion) ApplyRollback(by id.UserID, reason string, now time.Time) {
	s.Status = StatusRolledBack
	s.Rollback = &RollbackRecord{By: by, At: now, Reason: reason}
	s.UpdatedAt = now
}

func (s *Suggestion) CanDelete() error {
	if s.IsDeleted() {
		return dErrors.New(dErrors.CodeInvariantViolation, "suggestion is already deleted")
	}
	return nil
}

func (s *Suggestion) ApplyDeletion(by id.UserID, now time.Time) {
	s.Deletion = &Deletion{By: by, At: now}
	s.UpdatedAt = now
}

// CanAttachEvidence guards evidence: only open, live suggestions accept it.
func (s *Suggestion) CanAttachEvidence() error {
	if s.IsDeleted() {
		return dErrors.New(dErrors.CodeInvariantViolation, "suggestion has been deleted")
	}
	if s.Status != StatusPending {
		return dErrors.New(dErrors.CodeInvariantViolation, "evidence can only be added to pending suggestions")
	}
	return nil
}

func (s *Suggestion) CanComment() error {
	if s.IsDeleted() {
		return dErrors.New(dErrors.CodeInvariantViolation, "suggestion has been deleted")
	}
	return nil
}

// Key identifies suggestions that propose the same change.
func (s *Suggestion) Key() DuplicateKey {
	return DuplicateKey{TreeID: s.TreeID, Type: s.Type, TargetPersonID: s.TargetPersonID, SecondaryPersonID: s.SecondaryPersonID}
}

// DuplicateKey is the identity CheckDuplicate compares on.
type DuplicateKey struct {
	TreeID            id.TreeID
	Type              changes.Kind
	TargetPersonID    id.PersonID
	SecondaryPersonID *id.PersonID
}

// Matches reports whether s proposes the same change as k.
func (k DuplicateKey) Matches(s *Suggestion) bool {
	if s.TreeID != k.TreeID || s.Type != k.Type || s.TargetPersonID != k.TargetPersonID {
		return false
	}
	if k.SecondaryPersonID == nil || s.SecondaryPersonID == nil {
		return k.SecondaryPersonID == nil && s.SecondaryPersonID == nil
	}
	return *k.SecondaryPersonID == *s.SecondaryPersonID
}

// Evidence is append-only supporting material for a suggestion.
type Evidence struct {
	ID            id.EvidenceID   `json:"id"`
	SuggestionID  id.SuggestionID `json:"suggestion_id"`
	Description   string          `json:"description"`
	AttachmentRef string          `json:"attachment_ref,omitempty"`
	SubmittedBy   id.UserID       `json:"submitted_by"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Comment is an append-only discussion entry.
type Comment struct {
	ID           id.CommentID    `json:"id"`
	SuggestionID id.SuggestionID `json:"suggestion_id"`
	AuthorID     id.UserID       `json:"author_id"`
	IsAdmin      bool            `json:"is_admin"`
	Body         string          `json:"body"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Details bundles a suggestion with its discussion.
type Details struct {
	Suggestion *Suggestion `json:"suggestion"`
	Evidence   []*Evidence `json:"evidence"`
	Comments   []*Comment  `json:"comments"`
}
