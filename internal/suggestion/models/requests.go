package models

import (
	"encoding/json"
	"strings"

	"lineage/internal/changes"
	id "lineage/pkg/domain"
	dErrors "lineage/pkg/domain-errors"
)

const (
	maxReasonLength  = 2000
	maxCommentLength = 10000
)

// CreateRequest proposes a change. Payload carries the kind-specific fields.
type CreateRequest struct {
	Type              changes.Kind    `json:"type"`
	TargetPersonID    string          `json:"target_person_id"`
	SecondaryPersonID string          `json:"secondary_person_id,omitempty"`
	TownID            string          `json:"town_id"`
	TreeID            string          `json:"tree_id"`
	Payload           json.RawMessage `json:"payload,omitempty"`
	Force             bool            `json:"force,omitempty"`

	target    id.PersonID
	secondary *id.PersonID
	town      id.TownID
	tree      id.TreeID
}

func (r *CreateRequest) Normalize() {
	r.Type = changes.Kind(strings.ToLower(strings.TrimSpace(string(r.Type))))
	r.TargetPersonID = strings.TrimSpace(r.TargetPersonID)
	r.SecondaryPersonID = strings.TrimSpace(r.SecondaryPersonID)
	r.TownID = strings.TrimSpace(r.TownID)
	r.TreeID = strings.TrimSpace(r.TreeID)
}

// Validate parses identifiers and checks the type. The payload is checked
// when the change is built.
func (r *CreateRequest) Validate() error {
	if !r.Type.IsSuggestion() {
		return dErrors.New(dErrors.CodeBadRequest, "unknown suggestion type: "+string(r.Type))
	}
	var err error
	if r.target, err = id.ParsePersonID(r.TargetPersonID); err != nil {
		return dErrors.New(dErrors.CodeBadRequest, "invalid target_person_id")
	}
	if r.SecondaryPersonID != "" {
		p, err := id.ParsePersonID(r.SecondaryPersonID)
		if err != nil {
			return dErrors.New(dErrors.CodeBadRequest, "invalid secondary_person_id")
		}
		r.secondary = &p
	}
	if r.town, err = id.ParseTownID(r.TownID); err != nil {
		return dErrors.New(dErrors.CodeBadRequest, "invalid town_id")
	}
	if r.tree, err = id.ParseTreeID(r.TreeID); err != nil {
		return dErrors.New(dErrors.CodeBadRequest, "invalid tree_id")
	}
	return nil
}

// Parsed returns the identifiers checked by Validate.
func (r *CreateRequest) Parsed() (target id.PersonID, secondary *id.PersonID, town id.TownID, tree id.TreeID) {
	return r.target, r.secondary, r.town, r.tree
}

// CreateResult carries either the new suggestion or the open suggestions
// that already propose the same change.
type CreateResult struct {
	Suggestion *Suggestion    `json:"suggestion,omitempty"`
	Duplicates []*Suggestion  `json:"duplicates,omitempty"`
	Change     changes.Change `json:"-"`
}

// Created reports whether a suggestion was stored.
func (r *CreateResult) Created() bool {
	return r.Suggestion != nil
}

type WithdrawRequest struct {
	Reason string `json:"reason"`
}

func (r *WithdrawRequest) Normalize() { r.Reason = strings.TrimSpace(r.Reason) }

func (r *WithdrawRequest) Validate() error {
	return checkLength("reason", r.Reason, maxReasonLength)
}

type EvidenceRequest struct {
	Description   string `json:"description"`
	AttachmentRef string `json:"attachment_ref,omitempty"`
}

func (r *EvidenceRequest) Normalize() {
	r.Description = strings.TrimSpace(r.Description)
	r.AttachmentRef = strings.TrimSpace(r.AttachmentRef)
}

func (r *EvidenceRequest) Validate() error {
	if r.Description == "" {
		return dErrors.New(dErrors.CodeBadRequest, "description is required")
	}
	return checkLength("description", r.Description, maxCommentLength)
}

type CommentRequest struct {
	Body string `json:"body"`
}

func (r *CommentRequest) Normalize() { r.Body = strings.TrimSpace(r.Body) }

func (r *CommentRequest) Validate() error {
	if r.Body == "" {
		return dErrors.New(dErrors.CodeBadRequest, "body is required")
	}
	return checkLength("body", r.Body, maxCommentLength)
}

// ReviewRequest carries a reviewer decision. Reason is mandatory for
// rejections, more-info requests and rollbacks.
type ReviewRequest struct {
	Status Status `json:"status,omitempty"`
	Reason string `json:"reason,omitempty"`
	Notes  string `json:"notes,omitempty"`
}

func (r *ReviewRequest) Normalize() {
	r.Status = Status(strings.ToLower(strings.TrimSpace(string(r.Status))))
	r.Reason = strings.TrimSpace(r.Reason)
	r.Notes = strings.TrimSpace(r.Notes)
}

func (r *ReviewRequest) Validate() error {
	if r.Status != "" && !r.Status.IsValid() {
		return dErrors.New(dErrors.CodeBadRequest, "unknown status: "+string(r.Status))
	}
	if err := checkLength("reason", r.Reason, maxReasonLength); err != nil {
		return err
	}
	return checkLength("notes", r.Notes, maxCommentLength)
}

// RequireReason fails when a decision needing a reason has none.
func RequireReason(reason string) error {
	if strings.TrimSpace(reason) == "" {
		return dErrors.New(dErrors.CodeBadRequest, "reason is required")
	}
	return nil
}

func checkLength(field, v string, max int) error {
	if len(v) > max {
		return dErrors.New(dErrors.CodeBadRequest, field+" is too long")
	}
	return nil
}
