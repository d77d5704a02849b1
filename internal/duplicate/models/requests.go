package models

import (
	"strings"

	id "lineage/pkg/domain"
	dErrors "lineage/pkg/domain-errors"
)

// DefaultMinConfidence applies when a scan or summary names no threshold.
const DefaultMinConfidence = 70

// ScanRequest scopes a duplicate scan. TargetTreeID compares people of
// TreeID against people of another tree instead of against each other.
type ScanRequest struct {
	TreeID        string `json:"tree_id"`
	TargetTreeID  string `json:"target_tree_id,omitempty"`
	Mode          Mode   `json:"mode"`
	MinConfidence *int   `json:"min_confidence,omitempty"`

	tree       id.TreeID
	targetTree id.TreeID
}

func (r *ScanRequest) Normalize() {
	r.TreeID = strings.TrimSpace(r.TreeID)
	r.TargetTreeID = strings.TrimSpace(r.TargetTreeID)
	r.Mode = Mode(strings.ToLower(strings.TrimSpace(string(r.Mode))))
	if r.Mode == "" {
		r.Mode = ModeFuzzy
	}
}

func (r *ScanRequest) Validate() error {
	var err error
	if r.tree, err = id.ParseTreeID(r.TreeID); err != nil {
		return dErrors.New(dErrors.CodeBadRequest, "invalid tree_id")
	}
	r.targetTree = r.tree
	if r.TargetTreeID != "" {
		if r.targetTree, err = id.ParseTreeID(r.TargetTreeID); err != nil {
			return dErrors.New(dErrors.CodeBadRequest, "invalid target_tree_id")
		}
	}
	if !r.Mode.IsValid() {
		return dErrors.New(dErrors.CodeBadRequest, "unknown mode: "+string(r.Mode))
	}
	return validConfidence(r.MinConfidence)
}

// Scope returns the parsed trees and threshold. Validate must have passed.
func (r *ScanRequest) Scope() Scope {
	return Scope{TreeID: r.tree, TargetTreeID: r.targetTree, Mode: &r.Mode, MinConfidence: confidenceOr(r.MinConfidence)}
}

// Scope selects candidates for a scan or summary. A nil Mode matches any.
type Scope struct {
	TreeID        id.TreeID
	TargetTreeID  id.TreeID
	Mode          *Mode
	MinConfidence int
}

// CrossTree reports whether the scope compares two different trees.
func (s Scope) CrossTree() bool {
	return s.TreeID != s.TargetTreeID
}

// Matches applies the scope to one candidate. Cross-tree candidates are
// stored with either tree first.
func (s Scope) Matches(c *Candidate) bool {
	sameTrees := (c.TreeID == s.TreeID && c.TargetTreeID == s.TargetTreeID) ||
		(c.TreeID == s.TargetTreeID && c.TargetTreeID == s.TreeID)
	if !sameTrees || c.Score < s.MinConfidence {
		return false
	}
	return s.Mode == nil || c.Mode == *s.Mode
}

// ResolveRequest resolves the candidate for a pair. PersonA survives a merge.
type ResolveRequest struct {
	PersonA string `json:"person_a"`
	PersonB string `json:"person_b"`
	Action  Action `json:"action"`
	Notes   string `json:"notes,omitempty"`

	a id.PersonID
	b id.PersonID
}

func (r *ResolveRequest) Normalize() {
	r.PersonA = strings.TrimSpace(r.PersonA)
	r.PersonB = strings.TrimSpace(r.PersonB)
	r.Action = Action(strings.ToLower(strings.TrimSpace(string(r.Action))))
	r.Notes = strings.TrimSpace(r.Notes)
}

func (r *ResolveRequest) Validate() error {
	var err error
	if r.a, err = id.ParsePersonID(r.PersonA); err != nil {
		return dErrors.New(dErrors.CodeBadRequest, "invalid person_a")
	}
	if r.b, err = id.ParsePersonID(r.PersonB); err != nil {
		return dErrors.New(dErrors.CodeBadRequest, "invalid person_b")
	}
	if r.a == r.b {
		return dErrors.New(dErrors.CodeBadRequest, "person_a and person_b must differ")
	}
	if !r.Action.IsValid() {
		return dErrors.New(dErrors.CodeBadRequest, "unknown action: "+string(r.Action))
	}
	if len(r.Notes) > 10000 {
		return dErrors.New(dErrors.CodeBadRequest, "notes is too long")
	}
	return nil
}

// Persons returns the parsed people in the order given.
func (r *ResolveRequest) Persons() (a, b id.PersonID) {
	return r.a, r.b
}

func validConfidence(v *int) error {
	if v != nil && (*v < 0 || *v > 100) {
		return dErrors.New(dErrors.CodeBadRequest, "min_confidence must be between 0 and 100")
	}
	return nil
}

func confidenceOr(v *int) int {
	if v == nil {
		return DefaultMinConfidence
	}
	return *v
}

// ParseConfidence validates an optional threshold taken from a query string.
func ParseConfidence(v *int) (int, error) {
	if err := validConfidence(v); err != nil {
		return 0, err
	}
	return confidenceOr(v), nil
}
