package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lineage/internal/changes"
	"lineage/internal/graph"
	graphstore "lineage/internal/graph/store"
	"lineage/internal/suggestion/models"
	"lineage/internal/suggestion/service"
	suggestionstore "lineage/internal/suggestion/store"
	id "lineage/pkg/domain"
	dErrors "lineage/pkg/domain-errors"
	"lineage/pkg/platform/tx"
	"lineage/pkg/testutil"
)

func TestConcurrentApprovalsOfTheSameEdge(t *testing.T) {
	g := graphstore.NewInMemory()
	st := suggestionstore.NewInMemory()
	svc := service.New(st, g, changes.NewApplier(g), service.WithTx(tx.NewMemoryRunner(g, st)))

	town, tree := id.TownID(uuid.New()), id.TreeID(uuid.New())
	parent := &graph.Person{ID: id.NewPersonID(), TreeID: tree, GivenName: "Ama", Sex: graph.SexFemale}
	child := &graph.Person{ID: id.NewPersonID(), TreeID: tree, GivenName: "Kofi", Sex: graph.SexMale}
	require.NoError(t, g.CreatePerson(context.Background(), parent))
	require.NoError(t, g.CreatePerson(context.Background(), child))

	member := testutil.Member(context.Background(), id.UserID(uuid.New()))
	var ids []id.SuggestionID
	for range 2 {
		res, err := svc.Create(member, &models.CreateRequest{
			Type:              changes.KindAddParentChild,
			TargetPersonID:    child.ID.String(),
			SecondaryPersonID: parent.ID.String(),
			TownID:            town.String(),
			TreeID:            tree.String(),
			Force:             true,
		})
		require.NoError(t, err)
		ids = append(ids, res.Suggestion.ID)
	}

	reviewer := testutil.TownReviewer(context.Background(), id.UserID(uuid.New()), town)
	errs := make([]error, len(ids)*2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = svc.Approve(reviewer, ids[i%len(ids)], "")
		}()
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
			continue
		}
		assert.Equal(t, dErrors.CodeConflict, dErrors.CodeOf(err), err.Error())
	}
	assert.Equal(t, 1, successes, "exactly one approval may create the edge")

	edges, err := g.ListParentChildByPerson(context.Background(), child.ID)
	require.NoError(t, err)
	assert.Len(t, edges, 1)

	approved := 0
	for _, sid := range ids {
		sg, err := st.FindByID(context.Background(), sid)
		require.NoError(t, err)
		require.NoError(t, sg.CheckInvariants())
		if sg.Status == models.StatusApproved {
			approved++
		}
	}
	assert.Equal(t, 1, approved)
}

// heldApplier blocks Apply until the test hands it a result.
type heldApplier struct {
	entered chan struct{}
	release chan error
}

func (a *heldApplier) Apply(context.Context, changes.Change) (*changes.Snapshot, error) {
	close(a.entered)
	return nil, <-a.release
}

func (a *heldApplier) Revert(context.Context, *changes.Snapshot) error { return nil }

func TestFailedApprovalKeepsSubmissionsMadeMeanwhile(t *testing.T) {
	g := graphstore.NewInMemory()
	st := suggestionstore.NewInMemory()
	applier := &heldApplier{entered: make(chan struct{}), release: make(chan error)}
	svc := service.New(st, g, applier, service.WithTx(tx.NewMemoryRunner(g, st)))

	town, tree := id.TownID(uuid.New()), id.TreeID(uuid.New())
	var people []*graph.Person
	for _, name := range []string{"Ama", "Kofi", "Esi"} {
		p := &graph.Person{ID: id.NewPersonID(), TreeID: tree, GivenName: name, Sex: graph.SexUnknown}
		require.NoError(t, g.CreatePerson(context.Background(), p))
		people = append(people, p)
	}
	request := func(parent, child *graph.Person) *models.CreateRequest {
		return &models.CreateRequest{
			Type:              changes.KindAddParentChild,
			TargetPersonID:    child.ID.String(),
			SecondaryPersonID: parent.ID.String(),
			TownID:            town.String(),
			TreeID:            tree.String(),
		}
	}

	member := testutil.Member(context.Background(), id.UserID(uuid.New()))
	first, err := svc.Create(member, request(people[0], people[1]))
	require.NoError(t, err)

	reviewer := testutil.TownReviewer(context.Background(), id.UserID(uuid.New()), town)
	approved := make(chan error, 1)
	go func() {
		_, err := svc.Approve(reviewer, first.Suggestion.ID, "")
		approved <- err
	}()
	<-applier.entered

	type outcome struct {
		res *models.CreateResult
		err error
	}
	created := make(chan outcome, 1)
	go func() {
		res, err := svc.Create(member, request(people[0], people[2]))
		created <- outcome{res, err}
	}()

	// Give the submission time to reach the store while the approval is open.
	var second outcome
	select {
	case second = <-created:
	case <-time.After(50 * time.Millisecond):
	}
	applier.release <- errors.New("graph write failed")
	require.Error(t, <-approved)
	if second.res == nil && second.err == nil {
		second = <-created
	}
	require.NoError(t, second.err)
	require.True(t, second.res.Created())

	kept, err := st.FindByID(context.Background(), second.res.Suggestion.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, kept.Status)

	sg, err := st.FindByID(context.Background(), first.Suggestion.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, sg.Status, "the failed approval changed nothing")
}
