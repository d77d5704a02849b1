package service

import (
	"context"
	"time"

	"lineage/internal/policy"
	"lineage/internal/suggestion/metrics"
	"lineage/internal/suggestion/models"
	id "lineage/pkg/domain"
	dErrors "lineage/pkg/domain-errors"
	"lineage/pkg/platform/audit"
	"lineage/pkg/requestcontext"
)

// reach resolves where the caller may look at the review queue. Callers
// with no reach at all are refused rather than shown an empty queue.
func reach(ctx context.Context) (models.Reach, error) {
	caps, err := authenticated(ctx)
	if err != nil {
		return models.Reach{}, err
	}
	r := caps.Reach(policy.SuggestionViewQueue)
	if r.Empty() {
		return models.Reach{}, dErrors.New(dErrors.CodeForbidden, "missing capability "+string(policy.SuggestionViewQueue))
	}
	return toReach(r), nil
}

// ListQueue lists non-deleted suggestions in the caller's towns and trees,
// oldest first.
func (s *Service) ListQueue(ctx context.Context, f models.QueueFilter) ([]*models.Suggestion, error) {
	r, err := reach(ctx)
	if err != nil {
		return nil, err
	}
	if f.Status != nil && !f.Status.IsValid() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "unknown status: "+string(*f.Status))
	}
	if f.Type != nil && !f.Type.IsSuggestion() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "unknown suggestion type: "+string(*f.Type))
	}
	f.Reach = r
	out, err := s.store.ListQueue(ctx, f)
	if err != nil {
		return nil, translate(err, "failed to list review queue")
	}
	if out == nil {
		out = []*models.Suggestion{}
	}
	return out, nil
}

// PendingByTown counts pending suggestions per town within the caller's
// reach, busiest first.
func (s *Service) PendingByTown(ctx context.Context) ([]models.TownCount, error) {
	r, err := reach(ctx)
	if err != nil {
		return nil, err
	}
	out, err := s.store.CountPendingByTown(ctx, r)
	if err != nil {
		return nil, translate(err, "failed to count pending suggestions")
	}
	if out == nil {
		out = []models.TownCount{}
	}
	return out, nil
}

// Statistics summarizes suggestions within the caller's reach, optionally
// narrowed to one town.
func (s *Service) Statistics(ctx context.Context, town *id.TownID) (*models.Statistics, error) {
	r, err := reach(ctx)
	if err != nil {
		return nil, err
	}
	st, err := s.store.Statistics(ctx, r, town)
	if err != nil {
		return nil, translate(err, "failed to compute statistics")
	}
	return st, nil
}

// UpdateStatus is the generic review endpoint. It accepts the decisions
// that only record a verdict; approval and rollback have their own paths.
func (s *Service) UpdateStatus(ctx context.Context, sid id.SuggestionID, req *models.ReviewRequest) (*models.Suggestion, error) {
	switch req.Status {
	case models.StatusRejected:
		return s.Reject(ctx, sid, req.Reason, req.Notes)
	case models.StatusMoreInfoRequested:
		return s.RequestMoreInfo(ctx, sid, req.Reason, req.Notes)
	case "":
		return nil, dErrors.New(dErrors.CodeBadRequest, "status is required")
	}
	return nil, dErrors.New(dErrors.CodeBadRequest, "status "+string(req.Status)+" cannot be set directly")
}

// Approve applies the suggested change to the graph and records the
// snapshot, atomically. A change whose preconditions no longer hold fails
// with a conflict and leaves both the graph and the suggestion untouched.
func (s *Service) Approve(ctx context.Context, sid id.SuggestionID, notes string) (_ *models.Suggestion, err error) {
	caps, err := authenticated(ctx)
	if err != nil {
		return nil, err
	}
	ctx, span := s.startSpan(ctx, "suggestion.Approve", sid)
	defer func() { endSpan(span, err) }()
	defer s.observe((*metrics.Metrics).ObserveApprove, time.Now())

	var sg *models.Suggestion
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		if sg, err = s.store.FindByIDForUpdate(txCtx, sid); err != nil {
			return err
		}
		if err := caps.Require(policy.SuggestionReview, scopeOf(sg)); err != nil {
			return err
		}
		if err := sg.CanApprove(); err != nil {
			return err
		}
		snap, err := s.applier.Apply(txCtx, sg.Change)
		if err != nil {
			return err
		}
		sg.ApplyApproval(caps.UserID(), notes, snap, requestcontext.Now(txCtx))
		if err := sg.CheckInvariants(); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "approval left suggestion inconsistent")
		}
		return s.store.Update(txCtx, sg)
	})
	if err != nil {
		s.logger.WarnContext(ctx, "suggestion approval failed",
			"request_id", requestcontext.RequestID(ctx),
			"suggestion_id", sid,
			"error", err,
		)
		return nil, translate(err, "failed to approve suggestion")
	}

	s.decision(sg.Status)
	s.logger.InfoContext(ctx, "suggestion approved",
		"request_id", requestcontext.RequestID(ctx),
		"suggestion_id", sg.ID,
		"type", sg.Type,
		"reviewer_id", caps.UserID(),
	)
	s.emit(ctx, audit.ActionSuggestionApproved, sg, sg.Snapshot.BeforeJSON(), sg.Snapshot.AfterJSON())
	return sg, nil
}

// Reject closes a pending suggestion without touching the graph.
func (s *Service) Reject(ctx context.Context, sid id.SuggestionID, reason, notes string) (*models.Suggestion, error) {
	return s.decide(ctx, sid, models.StatusRejected, reason, notes)
}

// RequestMoreInfo asks the submitter for more material. The suggestion
// leaves the pending queue.
func (s *Service) RequestMoreInfo(ctx context.Context, sid id.SuggestionID, reason, notes string) (*models.Suggestion, error) {
	return s.decide(ctx, sid, models.StatusMoreInfoRequested, reason, notes)
}

var decisionActions = map[models.Status]audit.Action{
	models.StatusRejected:          audit.ActionSuggestionRejected,
	models.StatusMoreInfoRequested: audit.ActionSuggestionMoreInfo,
}

func (s *Service) decide(ctx context.Context, sid id.SuggestionID, next models.Status, reason, notes string) (*models.Suggestion, error) {
	caps, err := authenticated(ctx)
	if err != nil {
		return nil, err
	}
	if err := models.RequireReason(reason); err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	var before models.Status
	sg, err := s.transition(ctx, sid, func(sg *models.Suggestion) error {
		if err := caps.Require(policy.SuggestionReview, scopeOf(sg)); err != nil {
			return err
		}
		before = sg.Status
		if next == models.StatusRejected {
			return sg.CanReject()
		}
		return sg.CanRequestMoreInfo()
	}, func(sg *models.Suggestion) {
		sg.ApplyDecision(next, caps.UserID(), reason, notes, now)
	})
	if err != nil {
		return nil, err
	}

	s.decision(sg.Status)
	s.logger.InfoContext(ctx, "suggestion reviewed",
		"request_id", requestcontext.RequestID(ctx),
		"suggestion_id", sg.ID,
		"status", sg.Status,
		"reviewer_id", caps.UserID(),
	)
	s.emit(ctx, decisionActions[next], sg, statusView{Status: before}, statusView{Status: sg.Status, Reason: reason})
	return sg, nil
}

// Rollback reverts the change an approved suggestion applied. It fails with
// a conflict when later edits make the revert unsafe.
func (s *Service) Rollback(ctx context.Context, sid id.SuggestionID, reason string) (_ *models.Suggestion, err error) {
	caps, err := authenticated(ctx)
	if err != nil {
		return nil, err
	}
	if err := models.RequireReason(reason); err != nil {
		return nil, err
	}
	ctx, span := s.startSpan(ctx, "suggestion.Rollback", sid)
	defer func() { endSpan(span, err) }()
	defer s.observe((*metrics.Metrics).ObserveRollback, time.Now())

	var sg *models.Suggestion
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		if sg, err = s.store.FindByIDForUpdate(txCtx, sid); err != nil {
			return err
		}
		if err := caps.Require(policy.SuggestionRollback, scopeOf(sg)); err != nil {
			return err
		}
		if err := sg.CanRollback(); err != nil {
			return err
		}
		if err := s.applier.Revert(txCtx, sg.Snapshot); err != nil {
			return err
		}
		sg.ApplyRollback(caps.UserID(), reason, requestcontext.Now(txCtx))
		return s.store.Update(txCtx, sg)
	})
	if err != nil {
		s.logger.WarnContext(ctx, "suggestion rollback failed",
			"request_id", requestcontext.RequestID(ctx),
			"suggestion_id", sid,
			"error", err,
		)
		return nil, translate(err, "failed to roll back suggestion")
	}

	s.decision(sg.Status)
	s.logger.InfoContext(ctx, "suggestion rolled back",
		"request_id", requestcontext.RequestID(ctx),
		"suggestion_id", sg.ID,
		"type", sg.Type,
	)
	s.emit(ctx, audit.ActionSuggestionRolledBack, sg, sg.Snapshot.AfterJSON(), sg.Snapshot.BeforeJSON())
	return sg, nil
}

// Delete soft-deletes a suggestion in any status. The graph is not touched.
func (s *Service) Delete(ctx context.Context, sid id.SuggestionID) (*models.Suggestion, error) {
	caps, err := authenticated(ctx)
	if err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	sg, err := s.transition(ctx, sid, func(sg *models.Suggestion) error {
		if err := caps.Require(policy.SuggestionDelete, scopeOf(sg)); err != nil {
			return err
		}
		return sg.CanDelete()
	}, func(sg *models.Suggestion) {
		sg.ApplyDeletion(caps.UserID(), now)
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "suggestion deleted",
		"request_id", requestcontext.RequestID(ctx),
		"suggestion_id", sg.ID,
	)
	s.emit(ctx, audit.ActionSuggestionDeleted, sg, statusView{Status: sg.Status}, statusView{Status: sg.EffectiveStatus()})
	return sg, nil
}
