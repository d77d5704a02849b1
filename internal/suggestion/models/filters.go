package models

import (
	"lineage/internal/changes"
	id "lineage/pkg/domain"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// Page bounds a listing. Zero Limit uses DefaultPageSize.
type Page struct {
	Limit  int
	Offset int
}

// Normalize clamps the page to sane bounds.
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultPageSize
	}
	if p.Limit > MaxPageSize {
		p.Limit = MaxPageSize
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// MineFilter selects the caller's own submissions.
type MineFilter struct {
	Status *Status
	Page
}

// Reach limits queue and statistics queries to the towns and trees a caller
// may review. All lifts the limit.
type Reach struct {
	All   bool
	Towns []id.TownID
	Trees []id.TreeID
}

// Covers reports whether a suggestion in town and tree is inside the reach.
func (r Reach) Covers(town id.TownID, tree id.TreeID) bool {
	if r.All {
		return true
	}
	for _, t := range r.Towns {
		if t == town {
			return true
		}
	}
	for _, t := range r.Trees {
		if t == tree {
			return true
		}
	}
	return false
}

// QueueFilter selects suggestions for reviewers. Deleted suggestions are
// never listed.
type QueueFilter struct {
	Reach  Reach
	TownID *id.TownID
	Status *Status
	Type   *changes.Kind
	Page
}

// Matches applies the filter to one suggestion.
func (f QueueFilter) Matches(s *Suggestion) bool {
	if s.IsDeleted() || !f.Reach.Covers(s.TownID, s.TreeID) {
		return false
	}
	if f.TownID != nil && s.TownID != *f.TownID {
		return false
	}
	if f.Status != nil && s.Status != *f.Status {
		return false
	}
	if f.Type != nil && s.Type != *f.Type {
		return false
	}
	return true
}

// TownCount is the number of pending suggestions in one town.
type TownCount struct {
	TownID  id.TownID `json:"town_id"`
	Pending int       `json:"pending"`
}

// Statistics summarizes suggestions in a reach.
type Statistics struct {
	Total        int                  `json:"total"`
	Deleted      int                  `json:"deleted"`
	ByStatus     map[Status]int       `json:"by_status"`
	ByType       map[changes.Kind]int `json:"by_type"`
	ApprovalRate float64              `json:"approval_rate"`
}

// NewStatistics returns statistics with every status and type present.
func NewStatistics() *Statistics {
	st := &Statistics{ByStatus: map[Status]int{}, ByType: map[changes.Kind]int{}}
	for _, s := range Statuses {
		st.ByStatus[s] = 0
	}
	for _, k := range changes.SuggestionKinds {
		st.ByType[k] = 0
	}
	return st
}

// Finalize derives the approval rate: approved and later rolled back over
// every decided suggestion.
func (st *Statistics) Finalize() {
	approved := st.ByStatus[StatusApproved] + st.ByStatus[StatusRolledBack]
	decided := approved + st.ByStatus[StatusRejected]
	if decided > 0 {
		st.ApprovalRate = float64(approved) / float64(decided)
	}
}
