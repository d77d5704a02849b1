//go:build integration

package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"lineage/internal/changes"
	"lineage/internal/duplicate/models"
	"lineage/internal/duplicate/store"
	"lineage/internal/graph"
	graphstore "lineage/internal/graph/store"
	id "lineage/pkg/domain"
	"lineage/pkg/platform/sentinel"
	"lineage/pkg/platform/tx"
	"lineage/pkg/testutil/containers"
)

type PostgresCandidateSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.Postgres
	graph    *graphstore.Postgres
	tree     id.TreeID
	now      time.Time
}

func TestPostgresCandidateSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresCandidateSuite))
}

func (s *PostgresCandidateSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
	s.graph = graphstore.NewPostgres(s.postgres.DB)
}

func (s *PostgresCandidateSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "duplicate_candidates", "persons"))
	s.tree = id.TreeID(uuid.New())
	s.now = time.Now().UTC().Truncate(time.Microsecond)
}

func (s *PostgresCandidateSuite) pair() (id.PersonID, id.PersonID) {
	ctx := context.Background()
	var ids [2]id.PersonID
	for i := range ids {
		p := &graph.Person{ID: id.NewPersonID(), TreeID: s.tree, GivenName: "Amara", Surname: "Eze", Sex: graph.SexFemale}
		s.Require().NoError(s.graph.CreatePerson(ctx, p))
		ids[i] = p.ID
	}
	return ids[0], ids[1]
}

func (s *PostgresCandidateSuite) candidate(a, b id.PersonID, score int) *models.Candidate {
	c, err := models.NewCandidate(a, b, score, models.ModeFuzzy, s.tree, s.tree, []string{"names similar", "birth same year"}, s.now)
	s.Require().NoError(err)
	return c
}

func (s *PostgresCandidateSuite) TestUpsertRefreshesPendingRow() {
	ctx := context.Background()
	a, b := s.pair()

	first, err := s.store.Upsert(ctx, s.candidate(a, b, 71))
	s.Require().NoError(err)
	s.Equal([]string{"names similar", "birth same year"}, first.Reasons)

	again := s.candidate(b, a, 93)
	again.UpdatedAt = s.now.Add(time.Minute)
	second, err := s.store.Upsert(ctx, again)
	s.Require().NoError(err)

	s.Equal(first.ID, second.ID)
	s.Equal(93, second.Score)
	s.Equal(first.CreatedAt, second.CreatedAt)
	s.Equal(s.now.Add(time.Minute), second.UpdatedAt)

	var rows int
	s.Require().NoError(s.postgres.DB.QueryRowContext(ctx, `SELECT count(*) FROM duplicate_candidates`).Scan(&rows))
	s.Equal(1, rows)
}

func (s *PostgresCandidateSuite) TestUpsertLeavesResolvedRowAlone() {
	ctx := context.Background()
	a, b := s.pair()
	stored, err := s.store.Upsert(ctx, s.candidate(a, b, 82))
	s.Require().NoError(err)

	snap := &changes.Snapshot{Kind: changes.KindMergePerson}
	stored.Resolve(models.ActionMerge, id.UserID(uuid.New()), "same baptism record", snap, s.now)
	s.Require().NoError(s.store.Update(ctx, stored))

	again, err := s.store.Upsert(ctx, s.candidate(a, b, 40))
	s.Require().NoError(err)

	s.Equal(models.StatusMerged, again.Status)
	s.Equal(82, again.Score)
	s.Equal("same baptism record", again.Notes)
	s.Require().NotNil(again.ReviewerID)
	s.Require().NotNil(again.Snapshot)
	s.Equal(changes.KindMergePerson, again.Snapshot.Kind)
}

func (s *PostgresCandidateSuite) TestUpdateRollsBackWithTransaction() {
	ctx := context.Background()
	a, b := s.pair()
	stored, err := s.store.Upsert(ctx, s.candidate(a, b, 82))
	s.Require().NoError(err)

	boom := errors.New("merge failed")
	err = tx.NewPostgresRunner(s.postgres.DB, 0).RunInTx(ctx, func(txCtx context.Context) error {
		locked, err := s.store.FindByPairForUpdate(txCtx, stored.Pair())
		s.Require().NoError(err)
		locked.Resolve(models.ActionReject, id.UserID(uuid.New()), "", nil, s.now)
		s.Require().NoError(s.store.Update(txCtx, locked))
		return boom
	})
	s.ErrorIs(err, boom)

	found, err := s.store.FindByPair(ctx, stored.Pair())
	s.Require().NoError(err)
	s.Equal(models.StatusPending, found.Status)
}

func (s *PostgresCandidateSuite) TestListAndSummarize() {
	ctx := context.Background()
	for _, score := range []int{96, 84, 77, 51, 30} {
		a, b := s.pair()
		_, err := s.store.Upsert(ctx, s.candidate(a, b, score))
		s.Require().NoError(err)
	}

	scope := models.Scope{TreeID: s.tree, TargetTreeID: s.tree, MinConfidence: 70}
	got, err := s.store.List(ctx, scope, nil, 2, 0)
	s.Require().NoError(err)
	s.Require().Len(got, 2)
	s.Equal(96, got[0].Score)
	s.Equal(84, got[1].Score)

	pending := models.StatusPending
	got, err = s.store.List(ctx, scope, &pending, 0, 0)
	s.Require().NoError(err)
	s.Len(got, 3)

	scope.MinConfidence = 0
	sum, err := s.store.Summarize(ctx, scope)
	s.Require().NoError(err)
	s.Equal(5, sum.Total)
	for _, b := range models.Buckets {
		s.Equal(1, sum.Buckets[b][models.StatusPending], b)
	}

	exact := models.ModeExact
	scope.Mode = &exact
	sum, err = s.store.Summarize(ctx, scope)
	s.Require().NoError(err)
	s.Zero(sum.Total)
}

func (s *PostgresCandidateSuite) TestMissingRows() {
	ctx := context.Background()
	a, b := s.pair()
	_, err := s.store.FindByPair(ctx, models.CanonicalPair(a, b))
	s.ErrorIs(err, sentinel.ErrNotFound)
	s.ErrorIs(s.store.Update(ctx, s.candidate(a, b, 90)), sentinel.ErrNotFound)
}
