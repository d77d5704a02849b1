package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"lineage/internal/changes"
	"lineage/internal/graph"
	"lineage/internal/suggestion/models"
	"lineage/internal/suggestion/service"
	"lineage/internal/suggestion/service/mocks"
	id "lineage/pkg/domain"
	dErrors "lineage/pkg/domain-errors"
	"lineage/pkg/platform/sentinel"
	"lineage/pkg/testutil"
)

type mockDeps struct {
	store   *mocks.MockStore
	graph   *mocks.MockGraphReader
	applier *mocks.MockChangeApplier
	svc     *service.Service
}

func newMockDeps(t *testing.T) mockDeps {
	ctrl := gomock.NewController(t)
	d := mockDeps{
		store:   mocks.NewMockStore(ctrl),
		graph:   mocks.NewMockGraphReader(ctrl),
		applier: mocks.NewMockChangeApplier(ctrl),
	}
	d.svc = service.New(d.store, d.graph, d.applier)
	return d
}

func pendingSuggestion(t *testing.T, town id.TownID) *models.Suggestion {
	parent, child := id.NewPersonID(), id.NewPersonID()
	sg, err := models.NewSuggestion(id.NewSuggestionID(), id.UserID(uuid.New()), town, id.TreeID(uuid.New()), child, &parent,
		changes.AddParentChild{ParentID: parent, ChildID: child, Relationship: graph.RelationshipBiological}, time.Now())
	require.NoError(t, err)
	return sg
}

func TestApproveFailures(t *testing.T) {
	town := id.TownID(uuid.New())
	reviewer := testutil.TownReviewer(context.Background(), id.UserID(uuid.New()), town)

	t.Run("missing suggestion is not found", func(t *testing.T) {
		d := newMockDeps(t)
		d.store.EXPECT().FindByIDForUpdate(gomock.Any(), gomock.Any()).Return(nil, sentinel.ErrNotFound)

		_, err := d.svc.Approve(reviewer, id.NewSuggestionID(), "")
		assert.Equal(t, dErrors.CodeNotFound, dErrors.CodeOf(err))
	})

	t.Run("applier conflict skips the update", func(t *testing.T) {
		d := newMockDeps(t)
		sg := pendingSuggestion(t, town)
		d.store.EXPECT().FindByIDForUpdate(gomock.Any(), sg.ID).Return(sg, nil)
		d.applier.EXPECT().Apply(gomock.Any(), sg.Change).Return(nil, dErrors.New(dErrors.CodeConflict, "edge already exists"))

		_, err := d.svc.Approve(reviewer, sg.ID, "")
		assert.Equal(t, dErrors.CodeConflict, dErrors.CodeOf(err))
	})

	t.Run("store failure is internal", func(t *testing.T) {
		d := newMockDeps(t)
		sg := pendingSuggestion(t, town)
		d.store.EXPECT().FindByIDForUpdate(gomock.Any(), sg.ID).Return(sg, nil)
		d.applier.EXPECT().Apply(gomock.Any(), sg.Change).Return(&changes.Snapshot{Kind: sg.Type}, nil)
		d.store.EXPECT().Update(gomock.Any(), gomock.Any()).Return(errors.New("connection reset"))

		_, err := d.svc.Approve(reviewer, sg.ID, "")
		assert.Equal(t, dErrors.CodeInternal, dErrors.CodeOf(err))
	})

	t.Run("concurrent modification is a conflict", func(t *testing.T) {
		d := newMockDeps(t)
		sg := pendingSuggestion(t, town)
		d.store.EXPECT().FindByIDForUpdate(gomock.Any(), sg.ID).Return(sg, nil)
		d.applier.EXPECT().Apply(gomock.Any(), sg.Change).Return(&changes.Snapshot{Kind: sg.Type}, nil)
		d.store.EXPECT().Update(gomock.Any(), gomock.Any()).Return(sentinel.ErrConflict)

		_, err := d.svc.Approve(reviewer, sg.ID, "")
		assert.Equal(t, dErrors.CodeConflict, dErrors.CodeOf(err))
	})
}

func TestRollbackRevertFailure(t *testing.T) {
	town := id.TownID(uuid.New())
	reviewer := testutil.TownReviewer(context.Background(), id.UserID(uuid.New()), town)
	d := newMockDeps(t)

	sg := pendingSuggestion(t, town)
	sg.ApplyApproval(id.UserID(uuid.New()), "", &changes.Snapshot{Kind: sg.Type}, time.Now())
	d.store.EXPECT().FindByIDForUpdate(gomock.Any(), sg.ID).Return(sg, nil)
	d.applier.EXPECT().Revert(gomock.Any(), sg.Snapshot).Return(dErrors.New(dErrors.CodeConflict, "cannot revert: edge changed"))

	_, err := d.svc.Rollback(reviewer, sg.ID, "wrong person")
	require.Error(t, err)
	assert.Equal(t, dErrors.CodeConflict, dErrors.CodeOf(err))
	assert.Contains(t, err.Error(), "cannot revert")
}

func TestCreateGraphFailure(t *testing.T) {
	d := newMockDeps(t)
	d.graph.EXPECT().FindPerson(gomock.Any(), gomock.Any()).Return(nil, errors.New("timeout"))

	member := testutil.Member(context.Background(), id.UserID(uuid.New()))
	_, err := d.svc.Create(member, &models.CreateRequest{
		Type:              changes.KindAddUnion,
		TargetPersonID:    uuid.NewString(),
		SecondaryPersonID: uuid.NewString(),
		TownID:            uuid.NewString(),
		TreeID:            uuid.NewString(),
	})
	assert.Equal(t, dErrors.CodeInternal, dErrors.CodeOf(err))
}
