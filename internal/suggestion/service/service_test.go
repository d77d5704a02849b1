package service_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"lineage/internal/changes"
	"lineage/internal/graph"
	graphstore "lineage/internal/graph/store"
	"lineage/internal/suggestion/models"
	"lineage/internal/suggestion/service"
	suggestionstore "lineage/internal/suggestion/store"
	id "lineage/pkg/domain"
	dErrors "lineage/pkg/domain-errors"
	"lineage/pkg/platform/audit"
	"lineage/pkg/platform/audit/publisher"
	auditmemory "lineage/pkg/platform/audit/store/memory"
	"lineage/pkg/platform/tx"
	"lineage/pkg/requestcontext"
	"lineage/pkg/testutil"
)

type ServiceSuite struct {
	suite.Suite
	graph    *graphstore.InMemory
	store    *suggestionstore.InMemory
	audit    *auditmemory.InMemoryStore
	svc      *service.Service
	town     id.TownID
	tree     id.TreeID
	member   id.UserID
	reviewer id.UserID
	now      time.Time
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.graph = graphstore.NewInMemory()
	s.store = suggestionstore.NewInMemory()
	s.audit = auditmemory.NewInMemoryStore()
	s.svc = service.New(s.store, s.graph, changes.NewApplier(s.graph),
		service.WithTx(tx.NewMemoryRunner(s.graph, s.store)),
		service.WithAudit(publisher.NewPublisher(s.audit)),
	)
	s.town = id.TownID(uuid.New())
	s.tree = id.TreeID(uuid.New())
	s.member = id.UserID(uuid.New())
	s.reviewer = id.UserID(uuid.New())
	s.now = time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)
}

func (s *ServiceSuite) memberCtx() context.Context {
	return requestcontext.WithTime(testutil.Member(context.Background(), s.member), s.now)
}

func (s *ServiceSuite) reviewerCtx() context.Context {
	return requestcontext.WithTime(testutil.TownReviewer(context.Background(), s.reviewer, s.town), s.now)
}

func (s *ServiceSuite) adminCtx() context.Context {
	return requestcontext.WithTime(testutil.TreeAdmin(context.Background(), s.reviewer, s.tree), s.now)
}

func (s *ServiceSuite) person(given string) *graph.Person {
	p := &graph.Person{ID: id.NewPersonID(), TreeID: s.tree, GivenName: given, Surname: "Adeyemi", Sex: graph.SexUnknown}
	s.Require().NoError(s.graph.CreatePerson(context.Background(), p))
	return p
}

func (s *ServiceSuite) parentChildRequest(parent, child *graph.Person) *models.CreateRequest {
	return &models.CreateRequest{
		Type:              changes.KindAddParentChild,
		TargetPersonID:    child.ID.String(),
		SecondaryPersonID: parent.ID.String(),
		TownID:            s.town.String(),
		TreeID:            s.tree.String(),
	}
}

func (s *ServiceSuite) create(req *models.CreateRequest) *models.Suggestion {
	res, err := s.svc.Create(s.memberCtx(), req)
	s.Require().NoError(err)
	s.Require().True(res.Created())
	return res.Suggestion
}

func (s *ServiceSuite) requireCode(err error, code dErrors.Code) {
	s.T().Helper()
	s.Require().Error(err)
	s.Equal(code, dErrors.CodeOf(err), err.Error())
}

func (s *ServiceSuite) auditActions(sid id.SuggestionID) []audit.Action {
	recs, err := s.audit.ListByEntity(context.Background(), audit.EntitySuggestion, sid.String())
	s.Require().NoError(err)
	out := make([]audit.Action, len(recs))
	for i, r := range recs {
		out[i] = r.Action
	}
	return out
}

func (s *ServiceSuite) TestCreate() {
	parent, child := s.person("Grace"), s.person("Tobi")

	s.Run("stores a pending suggestion", func() {
		sg := s.create(s.parentChildRequest(parent, child))
		s.Equal(models.StatusPending, sg.Status)
		s.Equal(s.member, sg.SubmitterID)
		s.Equal(s.now, sg.CreatedAt)
		s.Equal(changes.AddParentChild{ParentID: parent.ID, ChildID: child.ID, Relationship: graph.RelationshipBiological}, sg.Change)
		s.Equal([]audit.Action{audit.ActionSuggestionCreated}, s.auditActions(sg.ID))
	})

	s.Run("returns open duplicates instead of storing", func() {
		res, err := s.svc.Create(s.memberCtx(), s.parentChildRequest(parent, child))
		s.Require().NoError(err)
		s.False(res.Created())
		s.Len(res.Duplicates, 1)
	})

	s.Run("force stores despite duplicates", func() {
		req := s.parentChildRequest(parent, child)
		req.Force = true
		res, err := s.svc.Create(s.memberCtx(), req)
		s.Require().NoError(err)
		s.True(res.Created())
	})

	s.Run("unknown person", func() {
		req := s.parentChildRequest(parent, child)
		req.SecondaryPersonID = id.NewPersonID().String()
		_, err := s.svc.Create(s.memberCtx(), req)
		s.requireCode(err, dErrors.CodeNotFound)
	})

	s.Run("target outside the tree", func() {
		req := s.parentChildRequest(parent, child)
		req.TreeID = uuid.NewString()
		_, err := s.svc.Create(s.memberCtx(), req)
		s.requireCode(err, dErrors.CodeBadRequest)
	})

	s.Run("invalid payload", func() {
		req := s.parentChildRequest(parent, child)
		req.Payload = json.RawMessage(`{"relationship":"cousin"}`)
		_, err := s.svc.Create(s.memberCtx(), req)
		s.requireCode(err, dErrors.CodeBadRequest)
	})

	s.Run("self edge", func() {
		req := s.parentChildRequest(child, child)
		_, err := s.svc.Create(s.memberCtx(), req)
		s.requireCode(err, dErrors.CodeBadRequest)
	})

	s.Run("anonymous caller", func() {
		_, err := s.svc.Create(context.Background(), s.parentChildRequest(parent, child))
		s.requireCode(err, dErrors.CodeUnauthorized)
	})
}

func (s *ServiceSuite) TestCheckDuplicate() {
	parent, child := s.person("Grace"), s.person("Tobi")
	key := models.DuplicateKey{TreeID: s.tree, Type: changes.KindAddParentChild, TargetPersonID: child.ID, SecondaryPersonID: &parent.ID}

	found, err := s.svc.CheckDuplicate(s.memberCtx(), key)
	s.Require().NoError(err)
	s.Empty(found)

	sg := s.create(s.parentChildRequest(parent, child))
	found, err = s.svc.CheckDuplicate(s.memberCtx(), key)
	s.Require().NoError(err)
	s.Require().Len(found, 1)
	s.Equal(sg.ID, found[0].ID)

	_, err = s.svc.Reject(s.reviewerCtx(), sg.ID, "no source", "")
	s.Require().NoError(err)
	found, err = s.svc.CheckDuplicate(s.memberCtx(), key)
	s.Require().NoError(err)
	s.Empty(found, "terminal suggestions are not duplicates")
}

func (s *ServiceSuite) graphState(people ...*graph.Person) string {
	ctx := context.Background()
	var state []any
	for _, p := range people {
		found, err := s.graph.FindPerson(ctx, p.ID)
		s.Require().NoError(err)
		edges, err := s.graph.ListParentChildByPerson(ctx, p.ID)
		s.Require().NoError(err)
		unions, err := s.graph.ListUnionsByPerson(ctx, p.ID)
		s.Require().NoError(err)
		state = append(state, found, edges, unions)
	}
	b, err := json.Marshal(state)
	s.Require().NoError(err)
	return string(b)
}

func (s *ServiceSuite) TestApproveThenRollbackRestoresGraph() {
	parent, child := s.person("Grace"), s.person("Tobi")
	before := s.graphState(parent, child)
	sg := s.create(s.parentChildRequest(parent, child))

	approved, err := s.svc.Approve(s.reviewerCtx(), sg.ID, "baptism record attached")
	s.Require().NoError(err)
	s.Equal(models.StatusApproved, approved.Status)
	s.Require().NotNil(approved.Snapshot)
	s.Require().NotNil(approved.Review)
	s.Equal(s.reviewer, approved.Review.ReviewerID)

	edge, err := s.graph.FindParentChild(context.Background(), parent.ID, child.ID)
	s.Require().NoError(err)
	s.Equal(approved.Snapshot.Edge.ID, edge.ID)

	rolledBack, err := s.svc.Rollback(s.reviewerCtx(), sg.ID, "wrong parish")
	s.Require().NoError(err)
	s.Equal(models.StatusRolledBack, rolledBack.Status)
	s.NotNil(rolledBack.Snapshot, "snapshot stays on record")
	s.NoError(rolledBack.CheckInvariants())

	s.Empty(cmp.Diff(before, s.graphState(parent, child)))
	s.Equal([]audit.Action{
		audit.ActionSuggestionCreated, audit.ActionSuggestionApproved, audit.ActionSuggestionRolledBack,
	}, s.auditActions(sg.ID))

	_, err = s.svc.Rollback(s.reviewerCtx(), sg.ID, "again")
	s.requireCode(err, dErrors.CodeConflict)
}

func (s *ServiceSuite) TestApproveConflictLeavesEverythingUntouched() {
	parent, child := s.person("Grace"), s.person("Tobi")
	first := s.create(s.parentChildRequest(parent, child))
	req := s.parentChildRequest(parent, child)
	req.Force = true
	second := s.create(req)

	_, err := s.svc.Approve(s.reviewerCtx(), first.ID, "")
	s.Require().NoError(err)
	state := s.graphState(parent, child)

	_, err = s.svc.Approve(s.reviewerCtx(), second.ID, "")
	s.requireCode(err, dErrors.CodeConflict)

	found, err := s.store.FindByID(context.Background(), second.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusPending, found.Status)
	s.Nil(found.Snapshot)
	s.Empty(cmp.Diff(state, s.graphState(parent, child)))
}

func (s *ServiceSuite) TestRollbackDetectsDivergence() {
	p := s.person("Grace")
	edit := func(value string) *models.Suggestion {
		return s.create(&models.CreateRequest{
			Type:           changes.KindEditPersonFact,
			TargetPersonID: p.ID.String(),
			TownID:         s.town.String(),
			TreeID:         s.tree.String(),
			Payload:        json.RawMessage(`{"field":"birth_place","value":"` + value + `"}`),
			Force:          true,
		})
	}
	first := edit("Ibadan")
	_, err := s.svc.Approve(s.reviewerCtx(), first.ID, "")
	s.Require().NoError(err)

	second := edit("Lagos")
	_, err = s.svc.Approve(s.reviewerCtx(), second.ID, "")
	s.Require().NoError(err)

	_, err = s.svc.Rollback(s.reviewerCtx(), first.ID, "bad transcription")
	s.requireCode(err, dErrors.CodeConflict)

	found, err := s.store.FindByID(context.Background(), first.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusApproved, found.Status)

	_, err = s.svc.Rollback(s.reviewerCtx(), second.ID, "bad transcription")
	s.Require().NoError(err)
	_, err = s.svc.Rollback(s.reviewerCtx(), first.ID, "bad transcription")
	s.Require().NoError(err)

	person, err := s.graph.FindPerson(context.Background(), p.ID)
	s.Require().NoError(err)
	s.Nil(person.BirthPlace)
}

func (s *ServiceSuite) TestTransitions() {
	parent, child := s.person("Grace"), s.person("Tobi")

	s.Run("only declared transitions succeed", func() {
		sg := s.create(s.parentChildRequest(parent, child))
		_, err := s.svc.Reject(s.reviewerCtx(), sg.ID, "duplicate entry", "")
		s.Require().NoError(err)

		_, err = s.svc.Approve(s.reviewerCtx(), sg.ID, "")
		s.requireCode(err, dErrors.CodeConflict)
		_, err = s.svc.RequestMoreInfo(s.reviewerCtx(), sg.ID, "need source", "")
		s.requireCode(err, dErrors.CodeConflict)
		_, err = s.svc.Withdraw(s.memberCtx(), sg.ID, &models.WithdrawRequest{})
		s.requireCode(err, dErrors.CodeConflict)
		_, err = s.svc.Rollback(s.reviewerCtx(), sg.ID, "oops")
		s.requireCode(err, dErrors.CodeConflict)
	})

	s.Run("more info requested has no exit", func() {
		req := s.parentChildRequest(parent, child)
		req.Force = true
		sg := s.create(req)
		updated, err := s.svc.UpdateStatus(s.reviewerCtx(), sg.ID, &models.ReviewRequest{Status: models.StatusMoreInfoRequested, Reason: "which parish?"})
		s.Require().NoError(err)
		s.Equal(models.StatusMoreInfoRequested, updated.Status)
		s.Equal("which parish?", updated.Review.Reason)

		_, err = s.svc.Approve(s.reviewerCtx(), sg.ID, "")
		s.requireCode(err, dErrors.CodeConflict)
	})

	s.Run("decisions need a reason", func() {
		sg := s.create(&models.CreateRequest{
			Type: changes.KindAddUnion, TargetPersonID: parent.ID.String(), SecondaryPersonID: child.ID.String(),
			TownID: s.town.String(), TreeID: s.tree.String(), Force: true,
		})
		_, err := s.svc.Reject(s.reviewerCtx(), sg.ID, "  ", "")
		s.requireCode(err, dErrors.CodeBadRequest)
		_, err = s.svc.UpdateStatus(s.reviewerCtx(), sg.ID, &models.ReviewRequest{Status: models.StatusApproved})
		s.requireCode(err, dErrors.CodeBadRequest)
	})

	s.Run("reviewers of other towns are refused", func() {
		req := s.parentChildRequest(parent, child)
		req.Force = true
		sg := s.create(req)
		ctx := testutil.TownReviewer(context.Background(), s.reviewer, id.TownID(uuid.New()))
		_, err := s.svc.Approve(ctx, sg.ID, "")
		s.requireCode(err, dErrors.CodeForbidden)
		_, err = s.svc.Approve(s.memberCtx(), sg.ID, "")
		s.requireCode(err, dErrors.CodeForbidden)
	})
}

func (s *ServiceSuite) TestWithdraw() {
	parent, child := s.person("Grace"), s.person("Tobi")
	sg := s.create(s.parentChildRequest(parent, child))

	other := testutil.Member(context.Background(), id.UserID(uuid.New()))
	_, err := s.svc.Withdraw(other, sg.ID, &models.WithdrawRequest{})
	s.requireCode(err, dErrors.CodeForbidden)

	withdrawn, err := s.svc.Withdraw(s.memberCtx(), sg.ID, &models.WithdrawRequest{Reason: "typo"})
	s.Require().NoError(err)
	s.Equal(models.StatusWithdrawn, withdrawn.Status)
	s.Equal("typo", withdrawn.Withdrawal.Reason)

	_, err = s.svc.Withdraw(s.memberCtx(), id.NewSuggestionID(), &models.WithdrawRequest{})
	s.requireCode(err, dErrors.CodeNotFound)
}

func (s *ServiceSuite) TestEvidenceAndComments() {
	parent, child := s.person("Grace"), s.person("Tobi")
	sg := s.create(s.parentChildRequest(parent, child))

	ev, err := s.svc.AddEvidence(s.memberCtx(), sg.ID, &models.EvidenceRequest{Description: "parish register p. 14"})
	s.Require().NoError(err)
	s.Equal(s.member, ev.SubmittedBy)

	_, err = s.svc.AddComment(s.memberCtx(), sg.ID, &models.CommentRequest{Body: "page scan attached"})
	s.Require().NoError(err)
	adminComment, err := s.svc.AddComment(s.reviewerCtx(), sg.ID, &models.CommentRequest{Body: "checking"})
	s.Require().NoError(err)
	s.True(adminComment.IsAdmin)

	stranger := testutil.Member(context.Background(), id.UserID(uuid.New()))
	_, err = s.svc.AddComment(stranger, sg.ID, &models.CommentRequest{Body: "hi"})
	s.requireCode(err, dErrors.CodeForbidden)

	_, err = s.svc.Approve(s.reviewerCtx(), sg.ID, "")
	s.Require().NoError(err)
	_, err = s.svc.AddEvidence(s.memberCtx(), sg.ID, &models.EvidenceRequest{Description: "late"})
	s.requireCode(err, dErrors.CodeConflict)
	_, err = s.svc.AddComment(s.memberCtx(), sg.ID, &models.CommentRequest{Body: "thanks"})
	s.Require().NoError(err, "comments are allowed in any status")

	details, err := s.svc.Get(s.memberCtx(), sg.ID)
	s.Require().NoError(err)
	s.Len(details.Evidence, 1)
	s.Len(details.Comments, 3)

	_, err = s.svc.Get(stranger, sg.ID)
	s.requireCode(err, dErrors.CodeForbidden)
}

func (s *ServiceSuite) TestDelete() {
	parent, child := s.person("Grace"), s.person("Tobi")
	sg := s.create(s.parentChildRequest(parent, child))

	_, err := s.svc.Delete(s.reviewerCtx(), sg.ID)
	s.requireCode(err, dErrors.CodeForbidden)

	deleted, err := s.svc.Delete(s.adminCtx(), sg.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusDeleted, deleted.EffectiveStatus())
	s.Equal(models.StatusPending, deleted.Status)

	_, err = s.svc.Delete(s.adminCtx(), sg.ID)
	s.requireCode(err, dErrors.CodeConflict)

	_, err = s.svc.Approve(s.adminCtx(), sg.ID, "")
	s.requireCode(err, dErrors.CodeConflict)
	_, err = s.svc.AddComment(s.memberCtx(), sg.ID, &models.CommentRequest{Body: "still there?"})
	s.requireCode(err, dErrors.CodeConflict)

	queue, err := s.svc.ListQueue(s.adminCtx(), models.QueueFilter{})
	s.Require().NoError(err)
	s.Empty(queue)

	mine, err := s.svc.ListMine(s.memberCtx(), models.MineFilter{Page: models.Page{Limit: 50}})
	s.Require().NoError(err)
	s.Len(mine, 1)
}

func (s *ServiceSuite) TestQueueCountsAndStatistics() {
	parent, child, partner := s.person("Grace"), s.person("Tobi"), s.person("Kemi")
	first := s.create(s.parentChildRequest(parent, child))
	s.create(&models.CreateRequest{
		Type: changes.KindAddUnion, TargetPersonID: parent.ID.String(), SecondaryPersonID: partner.ID.String(),
		TownID: s.town.String(), TreeID: s.tree.String(),
	})

	_, err := s.svc.ListQueue(s.memberCtx(), models.QueueFilter{})
	s.requireCode(err, dErrors.CodeForbidden)

	queue, err := s.svc.ListQueue(s.reviewerCtx(), models.QueueFilter{})
	s.Require().NoError(err)
	s.Len(queue, 2)

	kind := changes.KindAddUnion
	queue, err = s.svc.ListQueue(s.reviewerCtx(), models.QueueFilter{Type: &kind})
	s.Require().NoError(err)
	s.Len(queue, 1)

	_, err = s.svc.Approve(s.reviewerCtx(), first.ID, "")
	s.Require().NoError(err)

	counts, err := s.svc.PendingByTown(s.reviewerCtx())
	s.Require().NoError(err)
	s.Equal([]models.TownCount{{TownID: s.town, Pending: 1}}, counts)

	st, err := s.svc.Statistics(s.reviewerCtx(), nil)
	s.Require().NoError(err)
	s.Equal(2, st.Total)
	s.Equal(1, st.ByStatus[models.StatusApproved])
	s.Equal(1, st.ByType[changes.KindAddUnion])
	s.InDelta(1.0, st.ApprovalRate, 0.0001)

	elsewhere := testutil.TownReviewer(context.Background(), s.reviewer, id.TownID(uuid.New()))
	counts, err = s.svc.PendingByTown(elsewhere)
	s.Require().NoError(err)
	s.Empty(counts)
}

func (s *ServiceSuite) TestLinkAndMergeCannotBeSuggested() {
	keep, absorb := s.person("Grace"), s.person("Grace")

	for _, kind := range []changes.Kind{changes.KindLinkPerson, changes.KindMergePerson} {
		_, err := s.svc.Create(s.memberCtx(), &models.CreateRequest{
			Type: kind, TargetPersonID: keep.ID.String(), SecondaryPersonID: absorb.ID.String(),
			TownID: s.town.String(), TreeID: s.tree.String(),
		})
		s.requireCode(err, dErrors.CodeBadRequest)
	}

	mine, err := s.svc.ListMine(s.memberCtx(), models.MineFilter{Page: models.Page{Limit: 50}})
	s.Require().NoError(err)
	s.Empty(mine)
	merged, err := s.graph.FindPerson(context.Background(), absorb.ID)
	s.Require().NoError(err)
	s.True(merged.Active())
}
