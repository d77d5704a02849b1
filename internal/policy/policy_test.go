package policy

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	id "lineage/pkg/domain"
	dErrors "lineage/pkg/domain-errors"
	"lineage/pkg/requestcontext"
)

func TestCapabilities(t *testing.T) {
	user := id.UserID(uuid.New())
	town, otherTown := id.TownID(uuid.New()), id.TownID(uuid.New())
	tree, otherTree := id.TreeID(uuid.New()), id.TreeID(uuid.New())

	tests := []struct {
		name      string
		principal requestcontext.Principal
		cap       Capability
		scope     Scope
		want      bool
	}{
		{"anonymous has nothing", requestcontext.Principal{Roles: []string{"super_admin"}}, SuggestionSubmit, Scope{Town: town}, false},
		{"member submits anywhere", requestcontext.Principal{UserID: user, Roles: []string{"member"}}, SuggestionSubmit, Scope{Town: otherTown}, true},
		{"member cannot review", requestcontext.Principal{UserID: user, Roles: []string{"member"}, Towns: []id.TownID{town}}, SuggestionReview, Scope{Town: town}, false},
		{"reviewer reviews own town", requestcontext.Principal{UserID: user, Roles: []string{"town_reviewer"}, Towns: []id.TownID{town}}, SuggestionReview, Scope{Town: town, Tree: otherTree}, true},
		{"reviewer outside town", requestcontext.Principal{UserID: user, Roles: []string{"town_reviewer"}, Towns: []id.TownID{town}}, SuggestionReview, Scope{Town: otherTown}, false},
		{"reviewer cannot delete", requestcontext.Principal{UserID: user, Roles: []string{"town_reviewer"}, Towns: []id.TownID{town}}, SuggestionDelete, Scope{Town: town}, false},
		{"tree admin resolves duplicates", requestcontext.Principal{UserID: user, Roles: []string{"tree_admin"}, Trees: []id.TreeID{tree}}, DuplicateResolve, Scope{Tree: tree}, true},
		{"tree admin other tree", requestcontext.Principal{UserID: user, Roles: []string{"tree_admin"}, Trees: []id.TreeID{tree}}, DuplicateScan, Scope{Tree: otherTree}, false},
		{"roles are case insensitive", requestcontext.Principal{UserID: user, Roles: []string{" Tree_Admin "}, Trees: []id.TreeID{tree}}, SuggestionDelete, Scope{Tree: tree}, true},
		{"super admin everywhere", requestcontext.Principal{UserID: user, Roles: []string{"super_admin"}}, DuplicateResolve, Scope{Tree: otherTree}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Evaluate(tt.principal).Can(tt.cap, tt.scope))
		})
	}
}

func TestRequire(t *testing.T) {
	town := id.TownID(uuid.New())

	err := Evaluate(requestcontext.Principal{}).Require(SuggestionSubmit, Scope{})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))

	member := Evaluate(requestcontext.Principal{UserID: id.UserID(uuid.New()), Roles: []string{"member"}})
	assert.NoError(t, member.Require(SuggestionSubmit, Scope{Town: town}))
	assert.True(t, dErrors.HasCode(member.Require(SuggestionReview, Scope{Town: town}), dErrors.CodeForbidden))
}

func TestReach(t *testing.T) {
	town := id.TownID(uuid.New())
	tree := id.TreeID(uuid.New())
	user := id.UserID(uuid.New())

	reviewer := Evaluate(requestcontext.Principal{UserID: user, Roles: []string{"town_reviewer", "tree_admin"}, Towns: []id.TownID{town}, Trees: []id.TreeID{tree}})
	r := reviewer.Reach(SuggestionViewQueue)
	assert.False(t, r.All)
	assert.Equal(t, []id.TownID{town}, r.Towns)
	assert.Equal(t, []id.TreeID{tree}, r.Trees)

	assert.True(t, Evaluate(requestcontext.Principal{UserID: user, Roles: []string{"super_admin"}}).Reach(SuggestionViewQueue).All)
	assert.True(t, Evaluate(requestcontext.Principal{UserID: user, Roles: []string{"member"}}).Reach(SuggestionViewQueue).Empty())
}
