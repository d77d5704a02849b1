package handler

import (
	"encoding/json"
	"time"

	"lineage/internal/changes"
	"lineage/internal/suggestion/models"
)

// SuggestionResponse is the wire form of a suggestion. Status reports
// deleted for soft-deleted suggestions.
type SuggestionResponse struct {
	ID                string                 `json:"id"`
	Type              string                 `json:"type"`
	Status            string                 `json:"status"`
	SubmitterID       string                 `json:"submitter_id"`
	TownID            string                 `json:"town_id"`
	TreeID            string                 `json:"tree_id"`
	TargetPersonID    string                 `json:"target_person_id"`
	SecondaryPersonID *string                `json:"secondary_person_id,omitempty"`
	Change            json.RawMessage        `json:"change"`
	Snapshot          *changes.Snapshot      `json:"snapshot,omitempty"`
	Review            *models.Review         `json:"review,omitempty"`
	Withdrawal        *models.Withdrawal     `json:"withdrawal,omitempty"`
	Rollback          *models.RollbackRecord `json:"rollback,omitempty"`
	Deletion          *models.Deletion       `json:"deletion,omitempty"`
	CreatedAt         time.Time              `json:"created_at"`
	UpdatedAt         time.Time              `json:"updated_at"`
}

func FromSuggestion(sg *models.Suggestion) *SuggestionResponse {
	resp := &SuggestionResponse{
		ID:             sg.ID.String(),
		Type:           string(sg.Type),
		Status:         string(sg.EffectiveStatus()),
		SubmitterID:    sg.SubmitterID.String(),
		TownID:         sg.TownID.String(),
		TreeID:         sg.TreeID.String(),
		TargetPersonID: sg.TargetPersonID.String(),
		Snapshot:       sg.Snapshot,
		Review:         sg.Review,
		Withdrawal:     sg.Withdrawal,
		Rollback:       sg.Rollback,
		Deletion:       sg.Deletion,
		CreatedAt:      sg.CreatedAt,
		UpdatedAt:      sg.UpdatedAt,
	}
	if sg.SecondaryPersonID != nil {
		v := sg.SecondaryPersonID.String()
		resp.SecondaryPersonID = &v
	}
	if sg.Change != nil {
		if raw, err := changes.Encode(sg.Change); err == nil {
			resp.Change = raw
		}
	}
	return resp
}

func FromSuggestions(in []*models.Suggestion) []*SuggestionResponse {
	out := make([]*SuggestionResponse, len(in))
	for i, sg := range in {
		out[i] = FromSuggestion(sg)
	}
	return out
}

// CreateResponse answers a submission. Exactly one of Suggestion and
// Duplicates is set.
type CreateResponse struct {
	Suggestion *SuggestionResponse   `json:"suggestion,omitempty"`
	Duplicates []*SuggestionResponse `json:"duplicates,omitempty"`
	Message    string                `json:"message,omitempty"`
}

type DetailsResponse struct {
	*SuggestionResponse
	Evidence []*models.Evidence `json:"evidence"`
	Comments []*models.Comment  `json:"comments"`
}

type ListResponse struct {
	Items  []*SuggestionResponse `json:"items"`
	Limit  int                   `json:"limit"`
	Offset int                   `json:"offset"`
}
