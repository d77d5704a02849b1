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
	"lineage/internal/duplicate/models"
	"lineage/internal/duplicate/service"
	"lineage/internal/duplicate/service/mocks"
	"lineage/internal/graph"
	id "lineage/pkg/domain"
	dErrors "lineage/pkg/domain-errors"
	"lineage/pkg/testutil"
)

type mockDeps struct {
	store   *mocks.MockStore
	graph   *mocks.MockGraphReader
	applier *mocks.MockChangeApplier
	cache   *mocks.MockSummaryCache
	svc     *service.Service
}

func newMockDeps(t *testing.T) mockDeps {
	ctrl := gomock.NewController(t)
	d := mockDeps{
		store:   mocks.NewMockStore(ctrl),
		graph:   mocks.NewMockGraphReader(ctrl),
		applier: mocks.NewMockChangeApplier(ctrl),
		cache:   mocks.NewMockSummaryCache(ctrl),
	}
	d.svc = service.New(d.store, d.graph, d.applier, service.WithCache(d.cache))
	return d
}

func pendingCandidate(t *testing.T, tree id.TreeID) *models.Candidate {
	c, err := models.NewCandidate(id.NewPersonID(), id.NewPersonID(), 88, models.ModeFuzzy, tree, tree,
		[]string{"names similar"}, time.Now())
	require.NoError(t, err)
	return c
}

func resolveReq(c *models.Candidate, action models.Action) *models.ResolveRequest {
	return &models.ResolveRequest{PersonA: c.PersonA.String(), PersonB: c.PersonB.String(), Action: action}
}

func TestResolveFailures(t *testing.T) {
	tree := id.TreeID(uuid.New())
	admin := testutil.TreeAdmin(context.Background(), id.UserID(uuid.New()), tree)

	t.Run("a rejected merge leaves the candidate untouched", func(t *testing.T) {
		d := newMockDeps(t)
		c := pendingCandidate(t, tree)
		d.store.EXPECT().FindByPairForUpdate(gomock.Any(), c.Pair()).Return(c, nil)
		d.applier.EXPECT().Apply(gomock.Any(), changes.MergePerson{Keep: c.PersonA, Absorb: c.PersonB}).
			Return(nil, dErrors.New(dErrors.CodeConflict, "person is not active"))

		_, err := d.svc.ResolveDuplicate(admin, resolveReq(c, models.ActionMerge))
		assert.Equal(t, dErrors.CodeConflict, dErrors.CodeOf(err))
		assert.Equal(t, models.StatusPending, c.Status)
	})

	t.Run("reject never touches the graph", func(t *testing.T) {
		d := newMockDeps(t)
		c := pendingCandidate(t, tree)
		d.store.EXPECT().FindByPairForUpdate(gomock.Any(), c.Pair()).Return(c, nil)
		d.store.EXPECT().Update(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, got *models.Candidate) error {
			assert.Equal(t, models.StatusRejected, got.Status)
			assert.Nil(t, got.Snapshot)
			return nil
		})
		d.cache.EXPECT().Invalidate(gomock.Any(), tree).Return(nil)

		res, err := d.svc.ResolveDuplicate(admin, resolveReq(c, models.ActionReject))
		require.NoError(t, err)
		assert.Equal(t, models.StatusRejected, res.Status)
	})

	t.Run("store failure is internal", func(t *testing.T) {
		d := newMockDeps(t)
		c := pendingCandidate(t, tree)
		d.store.EXPECT().FindByPairForUpdate(gomock.Any(), gomock.Any()).Return(nil, errors.New("connection reset"))

		_, err := d.svc.ResolveDuplicate(admin, resolveReq(c, models.ActionReject))
		assert.Equal(t, dErrors.CodeInternal, dErrors.CodeOf(err))
	})

	t.Run("invalid request never reaches the store", func(t *testing.T) {
		d := newMockDeps(t)
		p := id.NewPersonID()

		_, err := d.svc.ResolveDuplicate(admin, &models.ResolveRequest{PersonA: p.String(), PersonB: p.String(), Action: models.ActionMerge})
		assert.Equal(t, dErrors.CodeBadRequest, dErrors.CodeOf(err))

		_, err = d.svc.ResolveDuplicate(admin, &models.ResolveRequest{PersonA: p.String(), PersonB: id.NewPersonID().String(), Action: "ignore"})
		assert.Equal(t, dErrors.CodeBadRequest, dErrors.CodeOf(err))
	})
}

func TestScanFailures(t *testing.T) {
	tree := id.TreeID(uuid.New())
	admin := testutil.TreeAdmin(context.Background(), id.UserID(uuid.New()), tree)

	t.Run("graph read failure is internal", func(t *testing.T) {
		d := newMockDeps(t)
		d.graph.EXPECT().ListPeopleInTree(gomock.Any(), tree).Return(nil, errors.New("timeout talking to db"))

		_, err := d.svc.ScanDuplicates(admin, &models.ScanRequest{TreeID: tree.String()})
		assert.Equal(t, dErrors.CodeInternal, dErrors.CodeOf(err))
	})

	t.Run("upsert failure aborts the scan", func(t *testing.T) {
		d := newMockDeps(t)
		birth := "1900-01-01"
		people := []*graph.Person{
			{ID: id.NewPersonID(), TreeID: tree, GivenName: "Adaeze", Surname: "Okafor", Sex: graph.SexFemale, BirthDate: &birth},
			{ID: id.NewPersonID(), TreeID: tree, GivenName: "Adaeze", Surname: "Okafor", Sex: graph.SexFemale, BirthDate: &birth},
		}
		d.graph.EXPECT().ListPeopleInTree(gomock.Any(), tree).Return(people, nil)
		d.graph.EXPECT().ListParentChildForPersons(gomock.Any(), gomock.Any()).Return(nil, nil)
		d.graph.EXPECT().ListUnionsForPersons(gomock.Any(), gomock.Any()).Return(nil, nil)
		d.store.EXPECT().Upsert(gomock.Any(), gomock.Any()).Return(nil, errors.New("disk full"))

		_, err := d.svc.ScanDuplicates(admin, &models.ScanRequest{TreeID: tree.String()})
		assert.Equal(t, dErrors.CodeInternal, dErrors.CodeOf(err))
	})
}

func TestSummaryCacheFallback(t *testing.T) {
	tree := id.TreeID(uuid.New())
	admin := testutil.TreeAdmin(context.Background(), id.UserID(uuid.New()), tree)
	scope := models.Scope{TreeID: tree, TargetTreeID: tree}

	t.Run("cache error falls back to the store", func(t *testing.T) {
		d := newMockDeps(t)
		want := models.NewSummary()
		want.Add(models.Bucket90to100, models.StatusPending, 2)
		d.cache.EXPECT().Get(gomock.Any(), scope).Return(nil, false, errors.New("redis down"))
		d.store.EXPECT().Summarize(gomock.Any(), scope).Return(want, nil)
		d.cache.EXPECT().Set(gomock.Any(), scope, want).Return(errors.New("redis down"))

		got, err := d.svc.SummarizeDuplicates(admin, scope)
		require.NoError(t, err)
		assert.Equal(t, 2, got.Total)
	})

	t.Run("cache hit skips the store", func(t *testing.T) {
		d := newMockDeps(t)
		cached := models.NewSummary()
		d.cache.EXPECT().Get(gomock.Any(), scope).Return(cached, true, nil)

		got, err := d.svc.SummarizeDuplicates(admin, scope)
		require.NoError(t, err)
		assert.Same(t, cached, got)
	})

	t.Run("unknown mode is rejected", func(t *testing.T) {
		d := newMockDeps(t)
		mode := models.Mode("soundex")

		_, err := d.svc.SummarizeDuplicates(admin, models.Scope{TreeID: tree, TargetTreeID: tree, Mode: &mode})
		assert.Equal(t, dErrors.CodeBadRequest, dErrors.CodeOf(err))
	})
}
