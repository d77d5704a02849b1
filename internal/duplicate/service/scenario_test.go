package service_test

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lineage/internal/changes"
	"lineage/internal/duplicate/models"
	"lineage/internal/duplicate/service"
	duplicatestore "lineage/internal/duplicate/store"
	"lineage/internal/graph"
	graphstore "lineage/internal/graph/store"
	id "lineage/pkg/domain"
	dErrors "lineage/pkg/domain-errors"
	"lineage/pkg/platform/tx"
	"lineage/pkg/testutil"
)

type mergeFixture struct {
	graph   *graphstore.InMemory
	store   *duplicatestore.InMemory
	svc     *service.Service
	tree    id.TreeID
	admin   context.Context
	parent  *graph.Person
	kept    *graph.Person
	dup     *graph.Person
	grandch *graph.Person
}

func newMergeFixture(t *testing.T) *mergeFixture {
	t.Helper()
	f := &mergeFixture{
		graph: graphstore.NewInMemory(),
		store: duplicatestore.NewInMemory(),
		tree:  id.TreeID(uuid.New()),
	}
	f.svc = service.New(f.store, f.graph, changes.NewApplier(f.graph), service.WithTx(tx.NewMemoryRunner(f.graph, f.store)))
	f.admin = testutil.TreeAdmin(context.Background(), id.UserID(uuid.New()), f.tree)

	birth := "1871"
	f.parent = &graph.Person{ID: id.NewPersonID(), TreeID: f.tree, GivenName: "Ama", Surname: "Owusu", Sex: graph.SexFemale}
	f.kept = &graph.Person{ID: id.NewPersonID(), TreeID: f.tree, GivenName: "Kwabena", Surname: "Owusu", Sex: graph.SexMale, BirthDate: &birth}
	f.dup = &graph.Person{ID: id.NewPersonID(), TreeID: f.tree, GivenName: "Kwabenah", Surname: "Owusu", Sex: graph.SexUnknown, BirthDate: &birth}
	f.grandch = &graph.Person{ID: id.NewPersonID(), TreeID: f.tree, GivenName: "Esi", Surname: "Owusu", Sex: graph.SexFemale}
	for _, p := range []*graph.Person{f.parent, f.kept, f.dup, f.grandch} {
		require.NoError(t, f.graph.CreatePerson(context.Background(), p))
	}
	for _, e := range [][2]*graph.Person{{f.parent, f.kept}, {f.parent, f.dup}, {f.dup, f.grandch}} {
		require.NoError(t, f.graph.InsertParentChild(context.Background(), &graph.ParentChild{
			ID: id.NewParentChildID(), ParentID: e[0].ID, ChildID: e[1].ID, Relationship: graph.RelationshipBiological,
		}))
	}
	return f
}

func TestFuzzyScanAndMerge(t *testing.T) {
	f := newMergeFixture(t)
	var found *models.Candidate

	testutil.Given(t, "a son entered twice under one mother", func(t *testing.T) {
		people, err := f.graph.ListPeopleInTree(context.Background(), f.tree)
		require.NoError(t, err)
		assert.Len(t, people, 4)
	})

	testutil.When(t, "the tree admin runs a fuzzy scan", func(t *testing.T) {
		res, err := f.svc.ScanDuplicates(f.admin, &models.ScanRequest{TreeID: f.tree.String()})
		require.NoError(t, err)
		require.Len(t, res.Candidates, 1)
		found = res.Candidates[0]
	})

	testutil.Then(t, "the pair is pending with its reasons", func(t *testing.T) {
		assert.Equal(t, models.CanonicalPair(f.kept.ID, f.dup.ID), found.Pair())
		assert.Equal(t, models.StatusPending, found.Status)
		// given 22 (7/8 similar) + surname 25 + same year 14 + shared mother 10
		assert.Equal(t, 71, found.Score)
		assert.Contains(t, found.Reasons, "birth same year")
		assert.Contains(t, found.Reasons, "shared parents (1 of 1)")
	})

	testutil.When(t, "the admin merges the duplicate into the kept record", func(t *testing.T) {
		c, err := f.svc.ResolveDuplicate(f.admin, &models.ResolveRequest{
			PersonA: f.kept.ID.String(),
			PersonB: f.dup.ID.String(),
			Action:  models.ActionMerge,
			Notes:   "same baptism record",
		})
		require.NoError(t, err)
		assert.Equal(t, models.StatusMerged, c.Status)
		assert.Equal(t, "same baptism record", c.Notes)
		require.NotNil(t, c.Snapshot)
		require.NotNil(t, c.Snapshot.Merge)
		assert.Len(t, c.Snapshot.Merge.DroppedEdges, 1)
		assert.Len(t, c.Snapshot.Merge.RepointedEdges, 1)
	})

	testutil.Then(t, "the duplicate is gone and its child belongs to the kept record", func(t *testing.T) {
		dup, err := f.graph.FindPerson(context.Background(), f.dup.ID)
		require.NoError(t, err)
		assert.False(t, dup.Active())
		require.NotNil(t, dup.MergedInto)
		assert.Equal(t, f.kept.ID, *dup.MergedInto)

		_, err = f.graph.FindParentChild(context.Background(), f.kept.ID, f.grandch.ID)
		require.NoError(t, err)
		edges, err := f.graph.ListParentChildByPerson(context.Background(), f.dup.ID)
		require.NoError(t, err)
		assert.Empty(t, edges)

		people, err := f.graph.ListPeopleInTree(context.Background(), f.tree)
		require.NoError(t, err)
		assert.Len(t, people, 3)
	})

	testutil.Then(t, "a rescan neither reopens nor duplicates the merged pair", func(t *testing.T) {
		res, err := f.svc.ScanDuplicates(f.admin, &models.ScanRequest{TreeID: f.tree.String()})
		require.NoError(t, err)
		assert.Empty(t, res.Candidates)

		c, err := f.svc.GetCandidate(f.admin, f.kept.ID, f.dup.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusMerged, c.Status)
	})
}

func TestConcurrentMergesOfOnePair(t *testing.T) {
	f := newMergeFixture(t)
	_, err := f.svc.ScanDuplicates(f.admin, &models.ScanRequest{TreeID: f.tree.String()})
	require.NoError(t, err)

	const attempts = 8
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	for i := range attempts {
		wg.Go(func() {
			_, errs[i] = f.svc.ResolveDuplicate(f.admin, &models.ResolveRequest{
				PersonA: f.kept.ID.String(),
				PersonB: f.dup.ID.String(),
				Action:  models.ActionMerge,
			})
		})
	}
	wg.Wait()

	var ok, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case dErrors.HasCode(err, dErrors.CodeConflict):
			conflicts++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, attempts-1, conflicts)
}
