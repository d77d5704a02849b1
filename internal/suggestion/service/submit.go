package service

import (
	"context"
	"errors"

	"lineage/internal/changes"
	"lineage/internal/policy"
	"lineage/internal/suggestion/models"
	id "lineage/pkg/domain"
	dErrors "lineage/pkg/domain-errors"
	"lineage/pkg/platform/audit"
	"lineage/pkg/platform/sentinel"
	"lineage/pkg/requestcontext"
)

// Create stores a pending suggestion. When open suggestions already propose
// the same change and req.Force is false, nothing is stored and the
// existing suggestions are returned instead.
func (s *Service) Create(ctx context.Context, req *models.CreateRequest) (*models.CreateResult, error) {
	caps, err := authenticated(ctx)
	if err != nil {
		return nil, err
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	target, secondary, town, tree := req.Parsed()
	if err := caps.Require(policy.SuggestionSubmit, policy.Scope{Town: town, Tree: tree}); err != nil {
		return nil, err
	}

	change, err := changes.Build(req.Type, target, secondary, req.Payload)
	if err != nil {
		return nil, err
	}
	if err := s.checkPeople(ctx, tree, target, change); err != nil {
		return nil, err
	}

	sg, err := models.NewSuggestion(id.NewSuggestionID(), caps.UserID(), town, tree, target, secondary, change, requestcontext.Now(ctx))
	if err != nil {
		return nil, dErrors.New(dErrors.CodeValidation, err.Error())
	}

	// The duplicate check and the insert run as one unit of work.
	key := models.DuplicateKey{TreeID: tree, Type: req.Type, TargetPersonID: target, SecondaryPersonID: secondary}
	var existing []*models.Suggestion
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if !req.Force {
			var err error
			if existing, err = s.store.FindOpenByKey(txCtx, key); err != nil || len(existing) > 0 {
				return err
			}
		}
		return s.store.Create(txCtx, sg)
	})
	if err != nil {
		return nil, translate(err, "failed to create suggestion")
	}
	if len(existing) > 0 {
		if s.metrics != nil {
			s.metrics.IncrementDuplicateHit()
		}
		s.logger.InfoContext(ctx, "suggestion matches open suggestions",
			"request_id", requestcontext.RequestID(ctx),
			"type", req.Type,
			"matches", len(existing),
		)
		return &models.CreateResult{Duplicates: existing, Change: change}, nil
	}

	if s.metrics != nil {
		s.metrics.IncrementCreated(string(sg.Type))
	}
	s.logger.InfoContext(ctx, "suggestion created",
		"request_id", requestcontext.RequestID(ctx),
		"suggestion_id", sg.ID,
		"type", sg.Type,
		"town_id", sg.TownID,
	)
	s.emit(ctx, audit.ActionSuggestionCreated, sg, nil, sg)
	return &models.CreateResult{Suggestion: sg, Change: change}, nil
}

// checkPeople confirms every person the change names exists, and that the
// target belongs to the suggestion's tree.
func (s *Service) checkPeople(ctx context.Context, tree id.TreeID, target id.PersonID, change changes.Change) error {
	seen := map[id.PersonID]bool{}
	for _, pid := range append([]id.PersonID{target}, change.Persons()...) {
		if seen[pid] {
			continue
		}
		seen[pid] = true
		p, err := s.graph.FindPerson(ctx, pid)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "person "+pid.String()+" not found")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load person")
		}
		if !p.Active() {
			return dErrors.New(dErrors.CodeConflict, "person "+pid.String()+" has been merged")
		}
		if pid == target && p.TreeID != tree {
			return dErrors.New(dErrors.CodeBadRequest, "target person does not belong to tree")
		}
	}
	return nil
}

// CheckDuplicate lists open, non-deleted suggestions proposing the same
// change as key.
func (s *Service) CheckDuplicate(ctx context.Context, key models.DuplicateKey) ([]*models.Suggestion, error) {
	if _, err := authenticated(ctx); err != nil {
		return nil, err
	}
	if !key.Type.IsSuggestion() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "unknown suggestion type: "+string(key.Type))
	}
	found, err := s.store.FindOpenByKey(ctx, key)
	if err != nil {
		return nil, translate(err, "failed to check for duplicate suggestions")
	}
	if found == nil {
		found = []*models.Suggestion{}
	}
	return found, nil
}

// Get returns a suggestion with its evidence and comments.
func (s *Service) Get(ctx context.Context, sid id.SuggestionID) (*models.Details, error) {
	caps, err := authenticated(ctx)
	if err != nil {
		return nil, err
	}
	sg, err := s.load(ctx, sid)
	if err != nil {
		return nil, err
	}
	if !canSee(caps, sg) {
		return nil, dErrors.New(dErrors.CodeForbidden, "not allowed to view this suggestion")
	}

	evidence, err := s.store.ListEvidence(ctx, sid)
	if err != nil {
		return nil, translate(err, "failed to load evidence")
	}
	comments, err := s.store.ListComments(ctx, sid)
	if err != nil {
		return nil, translate(err, "failed to load comments")
	}
	return &models.Details{Suggestion: sg, Evidence: evidence, Comments: comments}, nil
}

// ListMine lists the caller's own suggestions, newest first.
func (s *Service) ListMine(ctx context.Context, f models.MineFilter) ([]*models.Suggestion, error) {
	caps, err := authenticated(ctx)
	if err != nil {
		return nil, err
	}
	if f.Status != nil && !f.Status.IsValid() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "unknown status: "+string(*f.Status))
	}
	out, err := s.store.ListBySubmitter(ctx, caps.UserID(), f)
	if err != nil {
		return nil, translate(err, "failed to list suggestions")
	}
	if out == nil {
		out = []*models.Suggestion{}
	}
	return out, nil
}

// Withdraw lets the submitter retract a pending suggestion.
func (s *Service) Withdraw(ctx context.Context, sid id.SuggestionID, req *models.WithdrawRequest) (*models.Suggestion, error) {
	caps, err := authenticated(ctx)
	if err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	var before models.Status
	sg, err := s.transition(ctx, sid, func(sg *models.Suggestion) error {
		if sg.SubmitterID != caps.UserID() {
			return dErrors.New(dErrors.CodeForbidden, "only the submitter can withdraw a suggestion")
		}
		before = sg.Status
		return sg.CanWithdraw()
	}, func(sg *models.Suggestion) {
		sg.ApplyWithdrawal(req.Reason, now)
	})
	if err != nil {
		return nil, err
	}

	s.decision(sg.Status)
	s.logger.InfoContext(ctx, "suggestion withdrawn",
		"request_id", requestcontext.RequestID(ctx),
		"suggestion_id", sg.ID,
	)
	s.emit(ctx, audit.ActionSuggestionWithdrawn, sg, statusView{Status: before}, statusView{Status: sg.Status, Reason: req.Reason})
	return sg, nil
}

// AddEvidence attaches supporting material to a pending suggestion. The
// submitter and reviewers of the suggestion's scope may add evidence.
func (s *Service) AddEvidence(ctx context.Context, sid id.SuggestionID, req *models.EvidenceRequest) (*models.Evidence, error) {
	caps, err := authenticated(ctx)
	if err != nil {
		return nil, err
	}
	var ev *models.Evidence
	var sg *models.Suggestion
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		if sg, err = s.store.FindByIDForUpdate(txCtx, sid); err != nil {
			return err
		}
		if !canSee(caps, sg) {
			return dErrors.New(dErrors.CodeForbidden, "not allowed to add evidence to this suggestion")
		}
		if err := sg.CanAttachEvidence(); err != nil {
			return err
		}
		ev = &models.Evidence{
			ID:            id.NewEvidenceID(),
			SuggestionID:  sid,
			Description:   req.Description,
			AttachmentRef: req.AttachmentRef,
			SubmittedBy:   caps.UserID(),
			CreatedAt:     requestcontext.Now(txCtx),
		}
		return s.store.AddEvidence(txCtx, ev)
	})
	if err != nil {
		return nil, translate(err, "failed to add evidence")
	}

	s.emit(ctx, audit.ActionEvidenceAdded, sg, nil, ev)
	return ev, nil
}

// AddComment appends to the discussion of a live suggestion in any status.
// Comments from reviewers of the suggestion's scope are flagged as admin
// comments.
func (s *Service) AddComment(ctx context.Context, sid id.SuggestionID, req *models.CommentRequest) (*models.Comment, error) {
	caps, err := authenticated(ctx)
	if err != nil {
		return nil, err
	}
	var c *models.Comment
	var sg *models.Suggestion
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		if sg, err = s.store.FindByIDForUpdate(txCtx, sid); err != nil {
			return err
		}
		if !canSee(caps, sg) {
			return dErrors.New(dErrors.CodeForbidden, "not allowed to comment on this suggestion")
		}
		if err := sg.CanComment(); err != nil {
			return err
		}
		c = &models.Comment{
			ID:           id.NewCommentID(),
			SuggestionID: sid,
			AuthorID:     caps.UserID(),
			IsAdmin:      caps.Can(policy.SuggestionReview, scopeOf(sg)),
			Body:         req.Body,
			CreatedAt:    requestcontext.Now(txCtx),
		}
		return s.store.AddComment(txCtx, c)
	})
	if err != nil {
		return nil, translate(err, "failed to add comment")
	}

	s.emit(ctx, audit.ActionCommentAdded, sg, nil, c)
	return c, nil
}
