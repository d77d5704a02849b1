package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Category classifies records so sinks can apply different retention.
type Category string

const (
	// CategoryGovernance covers moderated changes to the canonical graph.
	CategoryGovernance Category = "governance"
	// CategoryActivity covers submitter and reviewer activity that does not
	// change the graph.
	CategoryActivity Category = "activity"
)

// Action names what happened.
type Action string

const (
	ActionSuggestionCreated    Action = "suggestion_created"
	ActionSuggestionWithdrawn  Action = "suggestion_withdrawn"
	ActionSuggestionApproved   Action = "suggestion_approved"
	ActionSuggestionRejected   Action = "suggestion_rejected"
	ActionSuggestionMoreInfo   Action = "suggestion_more_info_requested"
	ActionSuggestionRolledBack Action = "suggestion_rolled_back"
	ActionSuggestionDeleted    Action = "suggestion_deleted"
	ActionEvidenceAdded        Action = "evidence_added"
	ActionCommentAdded         Action = "comment_added"
	ActionDuplicateScanned     Action = "duplicate_scan_completed"
	ActionDuplicateLinked      Action = "duplicate_linked"
	ActionDuplicateRejected    Action = "duplicate_rejected"
	ActionDuplicateMerged      Action = "duplicate_merged"
)

var actionCategories = map[Action]Category{
	ActionSuggestionApproved:   CategoryGovernance,
	ActionSuggestionRolledBack: CategoryGovernance,
	ActionSuggestionDeleted:    CategoryGovernance,
	ActionDuplicateLinked:      CategoryGovernance,
	ActionDuplicateMerged:      CategoryGovernance,
}

// Category returns the category of the action. Unlisted actions are activity.
func (a Action) Category() Category {
	if c, ok := actionCategories[a]; ok {
		return c
	}
	return CategoryActivity
}

// Entity types referenced by records.
const (
	EntitySuggestion = "suggestion"
	EntityCandidate  = "duplicate_candidate"
	EntityTree       = "tree"
)

// Record is one audited mutation: who did what to which entity, with the
// entity's JSON state before and after.
type Record struct {
	ID         uuid.UUID       `json:"id"`
	ActorID    string          `json:"actor_id"`
	Action     Action          `json:"action"`
	EntityType string          `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	Previous   json.RawMessage `json:"previous,omitempty"`
	New        json.RawMessage `json:"new,omitempty"`
	RequestID  string          `json:"request_id,omitempty"`
	ClientIP   string          `json:"client_ip,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
}

// Store persists records.
type Store interface {
	Append(ctx context.Context, rec Record) error
}

// Recorder is the fire-and-forget sink services depend on. Implementations
// never block on persistence and never report persistence failures.
type Recorder interface {
	Record(ctx context.Context, rec Record)
}

// MustJSON marshals v for Previous/New. Values that cannot be marshalled are
// recorded as null.
func MustJSON(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("null")
	}
	return b
}
