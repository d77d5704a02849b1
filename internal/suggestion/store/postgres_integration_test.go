//go:build integration

package store_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"lineage/internal/changes"
	"lineage/internal/graph"
	"lineage/internal/suggestion/models"
	"lineage/internal/suggestion/store"
	id "lineage/pkg/domain"
	"lineage/pkg/platform/sentinel"
	"lineage/pkg/platform/tx"
	"lineage/pkg/testutil/containers"
)

type PostgresSuggestionSuite struct {
	suite.Suite
	postgres  *containers.PostgresContainer
	store     *store.Postgres
	submitter id.UserID
	town      id.TownID
	tree      id.TreeID
	now       time.Time
}

func TestPostgresSuggestionSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresSuggestionSuite))
}

func (s *PostgresSuggestionSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
}

func (s *PostgresSuggestionSuite) SetupTest() {
	err := s.postgres.TruncateTables(context.Background(),
		"suggestion_comments", "suggestion_evidence", "suggestions")
	s.Require().NoError(err)
	s.submitter = id.UserID(uuid.New())
	s.town = id.TownID(uuid.New())
	s.tree = id.TreeID(uuid.New())
	s.now = time.Now().UTC().Truncate(time.Microsecond)
}

func (s *PostgresSuggestionSuite) suggest(ctx context.Context, offset time.Duration) *models.Suggestion {
	parent, child := id.NewPersonID(), id.NewPersonID()
	change := changes.AddParentChild{ParentID: parent, ChildID: child, Relationship: graph.RelationshipAdoptive}
	sg, err := models.NewSuggestion(id.NewSuggestionID(), s.submitter, s.town, s.tree, child, &parent, change, s.now.Add(offset))
	s.Require().NoError(err)
	s.Require().NoError(s.store.Create(ctx, sg))
	return sg
}

func (s *PostgresSuggestionSuite) TestRoundTripKeepsChangeAndSnapshot() {
	ctx := context.Background()
	sg := s.suggest(ctx, 0)

	found, err := s.store.FindByID(ctx, sg.ID)
	s.Require().NoError(err)
	s.Equal(sg.Change, found.Change)
	s.Equal(sg.CreatedAt, found.CreatedAt)
	s.Nil(found.Snapshot)
	s.Nil(found.Review)

	edge := graph.ParentChild{ID: id.NewParentChildID(), ParentID: *sg.SecondaryPersonID, ChildID: sg.TargetPersonID, Relationship: graph.RelationshipAdoptive}
	snap := &changes.Snapshot{Kind: sg.Type, AppliedAt: s.now, Edge: &edge}
	reviewer := id.UserID(uuid.New())

	updated, err := s.store.Execute(ctx, sg.ID, (*models.Suggestion).CanApprove, func(m *models.Suggestion) {
		m.ApplyApproval(reviewer, "matches the register", snap, s.now)
	})
	s.Require().NoError(err)
	s.Equal(models.StatusApproved, updated.Status)

	found, err = s.store.FindByID(ctx, sg.ID)
	s.Require().NoError(err)
	s.Require().NotNil(found.Snapshot)
	s.Equal(edge, *found.Snapshot.Edge)
	s.Require().NotNil(found.Review)
	s.Equal(reviewer, found.Review.ReviewerID)
	s.Equal("matches the register", found.Review.Notes)
}

func (s *PostgresSuggestionSuite) TestExecuteValidationFailureRollsBack() {
	ctx := context.Background()
	sg := s.suggest(ctx, 0)
	s.Require().NoError(s.store.Update(ctx, func() *models.Suggestion {
		sg.ApplyWithdrawal("duplicate", s.now)
		return sg
	}()))

	_, err := s.store.Execute(ctx, sg.ID, (*models.Suggestion).CanApprove, func(*models.Suggestion) {
		s.Fail("mutate must not run")
	})
	s.Require().Error(err)

	found, err := s.store.FindByID(ctx, sg.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusWithdrawn, found.Status)
	s.Require().NotNil(found.Withdrawal)
	s.Equal("duplicate", found.Withdrawal.Reason)
}

func (s *PostgresSuggestionSuite) TestConcurrentDecisionsHaveOneWinner() {
	ctx := context.Background()
	sg := s.suggest(ctx, 0)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reviewer := id.UserID(uuid.New())
			_, err := s.store.Execute(ctx, sg.ID, (*models.Suggestion).CanReject, func(m *models.Suggestion) {
				m.ApplyDecision(models.StatusRejected, reviewer, "insufficient evidence", "", time.Now().UTC())
			})
			if err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	s.Equal(int32(1), wins.Load())
}

func (s *PostgresSuggestionSuite) TestListingsAndCounts() {
	ctx := context.Background()
	first := s.suggest(ctx, 0)
	second := s.suggest(ctx, time.Minute)

	deleted := s.suggest(ctx, 2*time.Minute)
	deleted.ApplyDeletion(s.submitter, s.now)
	s.Require().NoError(s.store.Update(ctx, deleted))

	mine, err := s.store.ListBySubmitter(ctx, s.submitter, models.MineFilter{})
	s.Require().NoError(err)
	s.Len(mine, 3, "submitters still see their deleted suggestions")
	s.Equal(deleted.ID, mine[0].ID)

	queue, err := s.store.ListQueue(ctx, models.QueueFilter{Reach: models.Reach{Towns: []id.TownID{s.town}}})
	s.Require().NoError(err)
	s.Require().Len(queue, 2)
	s.Equal(first.ID, queue[0].ID)
	s.Equal(second.ID, queue[1].ID)

	kind := changes.KindAddUnion
	queue, err = s.store.ListQueue(ctx, models.QueueFilter{Reach: models.Reach{All: true}, Type: &kind})
	s.Require().NoError(err)
	s.Empty(queue)

	queue, err = s.store.ListQueue(ctx, models.QueueFilter{Reach: models.Reach{Trees: []id.TreeID{id.TreeID(uuid.New())}}})
	s.Require().NoError(err)
	s.Empty(queue)

	counts, err := s.store.CountPendingByTown(ctx, models.Reach{All: true})
	s.Require().NoError(err)
	s.Equal([]models.TownCount{{TownID: s.town, Pending: 2}}, counts)

	open, err := s.store.FindOpenByKey(ctx, first.Key())
	s.Require().NoError(err)
	s.Require().Len(open, 1)
	s.Equal(first.ID, open[0].ID)

	st, err := s.store.Statistics(ctx, models.Reach{Trees: []id.TreeID{s.tree}}, nil)
	s.Require().NoError(err)
	s.Equal(2, st.Total)
	s.Equal(1, st.Deleted)
	s.Equal(2, st.ByStatus[models.StatusPending])
}

func (s *PostgresSuggestionSuite) TestEvidenceJoinsTransaction() {
	ctx := context.Background()
	sg := s.suggest(ctx, 0)
	runner := tx.NewPostgresRunner(s.postgres.DB, 0)

	errBoom := errors.New("boom")
	err := runner.RunInTx(ctx, func(txCtx context.Context) error {
		s.Require().NoError(s.store.AddEvidence(txCtx, &models.Evidence{
			ID: id.NewEvidenceID(), SuggestionID: sg.ID, Description: "baptism record",
			SubmittedBy: s.submitter, CreatedAt: s.now,
		}))
		return errBoom
	})
	s.ErrorIs(err, errBoom)

	evidence, err := s.store.ListEvidence(ctx, sg.ID)
	s.Require().NoError(err)
	s.Empty(evidence)

	s.Require().NoError(s.store.AddComment(ctx, &models.Comment{
		ID: id.NewCommentID(), SuggestionID: sg.ID, AuthorID: s.submitter, IsAdmin: true, Body: "checked", CreatedAt: s.now,
	}))
	comments, err := s.store.ListComments(ctx, sg.ID)
	s.Require().NoError(err)
	s.Require().Len(comments, 1)
	s.True(comments[0].IsAdmin)
}

func (s *PostgresSuggestionSuite) TestMissingRows() {
	ctx := context.Background()
	_, err := s.store.FindByID(ctx, id.NewSuggestionID())
	s.ErrorIs(err, sentinel.ErrNotFound)

	ghost, err := models.NewSuggestion(id.NewSuggestionID(), s.submitter, s.town, s.tree, id.NewPersonID(), nil,
		changes.EditPersonFact{PersonID: id.NewPersonID(), Field: graph.FieldSurname, Value: ptr("Mensah")}, s.now)
	s.Require().NoError(err)
	s.ErrorIs(s.store.Update(ctx, ghost), sentinel.ErrNotFound)
}

func ptr[T any](v T) *T { return &v }
