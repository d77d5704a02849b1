// Package models defines duplicate candidates: scored person pairs suspected
// to be the same individual, and the requests that scan and resolve them.
package models

import (
	"time"

	"lineage/internal/changes"
	id "lineage/pkg/domain"
	dErrors "lineage/pkg/domain-errors"
)

// Mode names the name-matching heuristic a score was computed with.
type Mode string

const (
	ModeExact    Mode = "exact"
	ModeFuzzy    Mode = "fuzzy"
	ModePhonetic Mode = "phonetic"
)

func (m Mode) IsValid() bool {
	return m == ModeExact || m == ModeFuzzy || m == ModePhonetic
}

type Status string

const (
	StatusPending      Status = "pending"
	StatusApprovedLink Status = "approved_link"
	StatusRejected     Status = "rejected"
	StatusMerged       Status = "merged"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusApprovedLink, StatusRejected, StatusMerged:
		return true
	}
	return false
}

// IsTerminal reports whether the candidate has been resolved.
func (s Status) IsTerminal() bool {
	return s != StatusPending
}

// Action is a reviewer's resolution of a candidate.
type Action string

const (
	ActionApproveLink Action = "approve_link"
	ActionReject      Action = "reject"
	ActionMerge       Action = "merge"
)

func (a Action) IsValid() bool {
	return a == ActionApproveLink || a == ActionReject || a == ActionMerge
}

// Outcome returns the terminal status the action leads to.
func (a Action) Outcome() Status {
	switch a {
	case ActionApproveLink:
		return StatusApprovedLink
	case ActionMerge:
		return StatusMerged
	}
	return StatusRejected
}

// Pair is an unordered pair of people stored lowest ID first, so each pair
// maps to exactly one candidate row.
type Pair struct {
	A id.PersonID
	B id.PersonID
}

// CanonicalPair orders a and b.
func CanonicalPair(a, b id.PersonID) Pair {
	a, b = id.CanonicalPair(a, b)
	return Pair{A: a, B: b}
}

// Candidate is one scored pair. TargetTreeID equals TreeID for scans within
// a single tree.
type Candidate struct {
	ID           id.CandidateID    `json:"id"`
	PersonA      id.PersonID       `json:"person_a"`
	PersonB      id.PersonID       `json:"person_b"`
	Score        int               `json:"score"`
	Mode         Mode              `json:"mode"`
	Status       Status            `json:"status"`
	TreeID       id.TreeID         `json:"tree_id"`
	TargetTreeID id.TreeID         `json:"target_tree_id"`
	Reasons      []string          `json:"reasons"`
	ReviewerID   *id.UserID        `json:"reviewer_id,omitempty"`
	ReviewedAt   *time.Time        `json:"reviewed_at,omitempty"`
	Notes        string            `json:"notes,omitempty"`
	Snapshot     *changes.Snapshot `json:"snapshot,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// NewCandidate builds a pending candidate for the canonical form of (a, b).
func NewCandidate(a, b id.PersonID, score int, mode Mode, tree, targetTree id.TreeID, reasons []string, now time.Time) (*Candidate, error) {
	if a == b {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "a person cannot duplicate itself")
	}
	if score < 0 || score > 100 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "score must be between 0 and 100")
	}
	pair := CanonicalPair(a, b)
	if reasons == nil {
		reasons = []string{}
	}
	return &Candidate{
		ID:           id.NewCandidateID(),
		PersonA:      pair.A,
		PersonB:      pair.B,
		Score:        score,
		Mode:         mode,
		Status:       StatusPending,
		TreeID:       tree,
		TargetTreeID: targetTree,
		Reasons:      reasons,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

func (c *Candidate) Pair() Pair {
	return Pair{A: c.PersonA, B: c.PersonB}
}

// Refresh overwrites the score of a pending candidate with a newer scan.
// Resolved candidates keep the score they were resolved with.
func (c *Candidate) Refresh(score int, mode Mode, reasons []string, now time.Time) {
	if c.Status.IsTerminal() {
		return
	}
	c.Score = score
	c.Mode = mode
	c.Reasons = reasons
	c.UpdatedAt = now
}

// CanResolve fails Conflict once the candidate is terminal.
func (c *Candidate) CanResolve() error {
	if c.Status.IsTerminal() {
		return dErrors.New(dErrors.CodeConflict, "duplicate candidate is already "+string(c.Status))
	}
	return nil
}

// Resolve moves the candidate to the outcome of action. snap is nil for
// rejections.
func (c *Candidate) Resolve(action Action, reviewer id.UserID, notes string, snap *changes.Snapshot, now time.Time) {
	c.Status = action.Outcome()
	c.ReviewerID = &reviewer
	c.ReviewedAt = &now
	c.Notes = notes
	c.Snapshot = snap
	c.UpdatedAt = now
}
