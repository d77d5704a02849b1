// Package policy turns an authenticated principal into the set of
// capabilities it holds, each bound to the towns or trees it applies to.
package policy

import (
	"slices"

	id "lineage/pkg/domain"
	dErrors "lineage/pkg/domain-errors"
	pstrings "lineage/pkg/platform/strings"
	"lineage/pkg/requestcontext"
)

type Role string

const (
	RoleMember       Role = "member"
	RoleTownReviewer Role = "town_reviewer"
	RoleTreeAdmin    Role = "tree_admin"
	RoleSuperAdmin   Role = "super_admin"
)

type Capability string

const (
	SuggestionSubmit    Capability = "suggestion:submit"
	SuggestionReview    Capability = "suggestion:review"
	SuggestionRollback  Capability = "suggestion:rollback"
	SuggestionDelete    Capability = "suggestion:delete"
	SuggestionViewQueue Capability = "suggestion:view_queue"
	DuplicateScan       Capability = "duplicate:scan"
	DuplicateResolve    Capability = "duplicate:resolve"
)

var (
	memberCaps   = []Capability{SuggestionSubmit}
	reviewerCaps = []Capability{SuggestionReview, SuggestionRollback, SuggestionViewQueue}
	treeCaps     = []Capability{
		SuggestionReview, SuggestionRollback, SuggestionDelete, SuggestionViewQueue,
		DuplicateScan, DuplicateResolve,
	}
)

// Scope names the town and tree an operation touches. Zero values match
// nothing except for capabilities granted globally.
type Scope struct {
	Town id.TownID
	Tree id.TreeID
}

// CapabilitySet is computed once per operation from the caller's principal.
type CapabilitySet struct {
	user   id.UserID
	super  bool
	global map[Capability]bool
	town   map[Capability]bool
	tree   map[Capability]bool
	towns  []id.TownID
	trees  []id.TreeID
}

// Evaluate derives the capability set for p. Unknown roles grant nothing.
func Evaluate(p requestcontext.Principal) CapabilitySet {
	set := CapabilitySet{
		user:   p.UserID,
		global: map[Capability]bool{},
		town:   map[Capability]bool{},
		tree:   map[Capability]bool{},
		towns:  p.Towns,
		trees:  p.Trees,
	}
	if !p.Authenticated() {
		return set
	}
	for _, r := range pstrings.DedupeLower(p.Roles) {
		switch Role(r) {
		case RoleMember:
			grant(set.global, memberCaps)
		case RoleTownReviewer:
			grant(set.town, reviewerCaps)
		case RoleTreeAdmin:
			grant(set.tree, treeCaps)
		case RoleSuperAdmin:
			set.super = true
		}
	}
	return set
}

func grant(into map[Capability]bool, caps []Capability) {
	for _, c := range caps {
		into[c] = true
	}
}

func (c CapabilitySet) UserID() id.UserID { return c.user }

func (c CapabilitySet) Authenticated() bool { return !c.user.IsNil() }

func (c CapabilitySet) IsSuperAdmin() bool { return c.super }

// Can reports whether the caller holds capability within scope.
func (c CapabilitySet) Can(capability Capability, scope Scope) bool {
	switch {
	case !c.Authenticated():
		return false
	case c.super, c.global[capability]:
		return true
	case c.town[capability] && !scope.Town.IsNil() && slices.Contains(c.towns, scope.Town):
		return true
	case c.tree[capability] && !scope.Tree.IsNil() && slices.Contains(c.trees, scope.Tree):
		return true
	}
	return false
}

// CanAnywhere reports whether capability is held for at least one scope.
func (c CapabilitySet) CanAnywhere(capability Capability) bool {
	if !c.Authenticated() {
		return false
	}
	return c.super || c.global[capability] ||
		(c.town[capability] && len(c.towns) > 0) ||
		(c.tree[capability] && len(c.trees) > 0)
}

// Require returns Forbidden unless Can holds.
func (c CapabilitySet) Require(capability Capability, scope Scope) error {
	if !c.Authenticated() {
		return dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	if !c.Can(capability, scope) {
		return dErrors.New(dErrors.CodeForbidden, "missing capability "+string(capability))
	}
	return nil
}

// Reach lists the towns and trees where capability holds. All is true when it
// holds everywhere, in which case the lists are empty.
type Reach struct {
	All   bool
	Towns []id.TownID
	Trees []id.TreeID
}

func (r Reach) Empty() bool {
	return !r.All && len(r.Towns) == 0 && len(r.Trees) == 0
}

func (c CapabilitySet) Reach(capability Capability) Reach {
	if !c.Authenticated() {
		return Reach{}
	}
	if c.super || c.global[capability] {
		return Reach{All: true}
	}
	var r Reach
	if c.town[capability] {
		r.Towns = slices.Clone(c.towns)
	}
	if c.tree[capability] {
		r.Trees = slices.Clone(c.trees)
	}
	return r
}
