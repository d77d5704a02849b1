package service

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"lineage/internal/changes"
	"lineage/internal/duplicate/models"
	"lineage/internal/policy"
	id "lineage/pkg/domain"
	dErrors "lineage/pkg/domain-errors"
	"lineage/pkg/platform/audit"
	"lineage/pkg/requestcontext"
)

var resolutionActions = map[models.Action]audit.Action{
	models.ActionApproveLink: audit.ActionDuplicateLinked,
	models.ActionReject:      audit.ActionDuplicateRejected,
	models.ActionMerge:       audit.ActionDuplicateMerged,
}

// ResolveDuplicate settles the candidate for a pair. A merge folds PersonB
// into PersonA through the change applier in the same transaction as the
// status change, so the candidate is marked merged only when the merge
// succeeded.
func (s *Service) ResolveDuplicate(ctx context.Context, req *models.ResolveRequest) (_ *models.Candidate, err error) {
	caps, err := authenticated(ctx)
	if err != nil {
		return nil, err
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	keep, absorb := req.Persons()
	pair := models.CanonicalPair(keep, absorb)

	ctx, span := s.startSpan(ctx, "duplicate.Resolve",
		attribute.String("person_a", keep.String()),
		attribute.String("person_b", absorb.String()),
		attribute.String("action", string(req.Action)),
	)
	defer func() { endSpan(span, err) }()

	var c *models.Candidate
	var before models.Status
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		if c, err = s.store.FindByPairForUpdate(txCtx, pair); err != nil {
			return err
		}
		if err := requireTrees(caps, policy.DuplicateResolve, candidateTrees(c)...); err != nil {
			return err
		}
		if err := c.CanResolve(); err != nil {
			return err
		}
		before = c.Status

		var snap *changes.Snapshot
		switch req.Action {
		case models.ActionMerge:
			snap, err = s.applier.Apply(txCtx, changes.MergePerson{Keep: keep, Absorb: absorb})
		case models.ActionApproveLink:
			snap, err = s.applier.Apply(txCtx, changes.LinkPerson{PersonA: keep, PersonB: absorb})
		}
		if err != nil {
			return err
		}
		c.Resolve(req.Action, caps.UserID(), req.Notes, snap, requestcontext.Now(txCtx))
		return s.store.Update(txCtx, c)
	})
	if err != nil {
		s.logger.WarnContext(ctx, "duplicate resolution failed",
			"request_id", requestcontext.RequestID(ctx),
			"person_a", keep,
			"person_b", absorb,
			"action", req.Action,
			"error", err,
		)
		return nil, translate(err, "failed to resolve duplicate candidate")
	}

	s.invalidate(ctx, candidateTrees(c)...)
	if s.metrics != nil {
		s.metrics.IncrementResolution(string(req.Action))
	}
	s.logger.InfoContext(ctx, "duplicate candidate resolved",
		"request_id", requestcontext.RequestID(ctx),
		"candidate_id", c.ID,
		"action", req.Action,
		"reviewer_id", caps.UserID(),
	)
	after := map[string]any{"status": c.Status, "notes": c.Notes}
	if c.Snapshot != nil && c.Snapshot.Merge != nil {
		after["merge"] = c.Snapshot.Merge
	}
	s.emit(ctx, resolutionActions[req.Action], audit.EntityCandidate, c.ID.String(),
		map[string]any{"status": before, "score": c.Score}, after)
	return c, nil
}

func candidateTrees(c *models.Candidate) []id.TreeID {
	if c.TreeID != c.TargetTreeID {
		return []id.TreeID{c.TreeID, c.TargetTreeID}
	}
	return []id.TreeID{c.TreeID}
}

// GetCandidate returns the candidate for a pair.
func (s *Service) GetCandidate(ctx context.Context, a, b id.PersonID) (*models.Candidate, error) {
	caps, err := authenticated(ctx)
	if err != nil {
		return nil, err
	}
	c, err := s.store.FindByPair(ctx, models.CanonicalPair(a, b))
	if err != nil {
		return nil, translate(err, "failed to load duplicate candidate")
	}
	if err := requireTrees(caps, policy.DuplicateScan, candidateTrees(c)...); err != nil {
		return nil, err
	}
	return c, nil
}

// ListCandidates returns candidates in scope, highest score first.
func (s *Service) ListCandidates(ctx context.Context, scope models.Scope, status *models.Status, limit, offset int) ([]*models.Candidate, error) {
	caps, err := authenticated(ctx)
	if err != nil {
		return nil, err
	}
	if err := requireTrees(caps, policy.DuplicateScan, scopeTrees(scope)...); err != nil {
		return nil, err
	}
	if status != nil && !status.IsValid() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "unknown status: "+string(*status))
	}
	out, err := s.store.List(ctx, scope, status, limit, offset)
	if err != nil {
		return nil, translate(err, "failed to list duplicate candidates")
	}
	return out, nil
}

// SummarizeDuplicates counts candidates in scope by confidence bucket and
// status, served from the cache when one is configured.
func (s *Service) SummarizeDuplicates(ctx context.Context, scope models.Scope) (*models.Summary, error) {
	caps, err := authenticated(ctx)
	if err != nil {
		return nil, err
	}
	if err := requireTrees(caps, policy.DuplicateScan, scopeTrees(scope)...); err != nil {
		return nil, err
	}
	if scope.Mode != nil && !scope.Mode.IsValid() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "unknown mode: "+string(*scope.Mode))
	}

	if s.cache != nil {
		sum, ok, err := s.cache.Get(ctx, scope)
		if err != nil {
			s.logger.WarnContext(ctx, "duplicate summary cache unavailable",
				"request_id", requestcontext.RequestID(ctx),
				"error", err,
			)
		}
		if s.metrics != nil && err == nil {
			s.metrics.IncrementCache(ok)
		}
		if ok {
			return sum, nil
		}
	}

	sum, err := s.store.Summarize(ctx, scope)
	if err != nil {
		return nil, translate(err, "failed to summarize duplicate candidates")
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, scope, sum); err != nil {
			s.logger.WarnContext(ctx, "failed to cache duplicate summary",
				"request_id", requestcontext.RequestID(ctx),
				"error", err,
			)
		}
	}
	return sum, nil
}
