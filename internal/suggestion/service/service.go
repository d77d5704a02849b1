// Package service implements suggestion moderation: submission, discussion,
// review decisions that apply changes to the graph, and rollback.
package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"lineage/internal/changes"
	"lineage/internal/graph"
	"lineage/internal/policy"
	"lineage/internal/suggestion/metrics"
	"lineage/internal/suggestion/models"
	id "lineage/pkg/domain"
	dErrors "lineage/pkg/domain-errors"
	"lineage/pkg/platform/audit"
	"lineage/pkg/platform/sentinel"
	"lineage/pkg/platform/tx"
	"lineage/pkg/requestcontext"
)

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Store,GraphReader,ChangeApplier

// Store persists suggestions. Methods join the transaction carried in ctx.
type Store interface {
	Create(ctx context.Context, sg *models.Suggestion) error
	FindByID(ctx context.Context, sid id.SuggestionID) (*models.Suggestion, error)
	FindByIDForUpdate(ctx context.Context, sid id.SuggestionID) (*models.Suggestion, error)
	Update(ctx context.Context, sg *models.Suggestion) error
	Execute(ctx context.Context, sid id.SuggestionID, validate func(*models.Suggestion) error, mutate func(*models.Suggestion)) (*models.Suggestion, error)
	ListBySubmitter(ctx context.Context, submitter id.UserID, f models.MineFilter) ([]*models.Suggestion, error)
	ListQueue(ctx context.Context, f models.QueueFilter) ([]*models.Suggestion, error)
	FindOpenByKey(ctx context.Context, key models.DuplicateKey) ([]*models.Suggestion, error)
	CountPendingByTown(ctx context.Context, reach models.Reach) ([]models.TownCount, error)
	Statistics(ctx context.Context, reach models.Reach, town *id.TownID) (*models.Statistics, error)
	AddEvidence(ctx context.Context, e *models.Evidence) error
	ListEvidence(ctx context.Context, sid id.SuggestionID) ([]*models.Evidence, error)
	AddComment(ctx context.Context, c *models.Comment) error
	ListComments(ctx context.Context, sid id.SuggestionID) ([]*models.Comment, error)
}

// GraphReader resolves the people a submission refers to.
type GraphReader interface {
	FindPerson(ctx context.Context, personID id.PersonID) (*graph.Person, error)
}

// ChangeApplier mutates the graph on approval and undoes it on rollback.
type ChangeApplier interface {
	Apply(ctx context.Context, c changes.Change) (*changes.Snapshot, error)
	Revert(ctx context.Context, snap *changes.Snapshot) error
}

// Service orchestrates the suggestion lifecycle.
type Service struct {
	store   Store
	graph   GraphReader
	applier ChangeApplier
	tx      tx.Runner
	audit   audit.Recorder
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

type Option func(*Service)

// WithTx sets the runner that makes approvals and rollbacks atomic. It must
// cover both the suggestion store and the graph.
func WithTx(r tx.Runner) Option {
	return func(s *Service) { s.tx = r }
}

func WithAudit(r audit.Recorder) Option {
	return func(s *Service) { s.audit = r }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

func New(store Store, graph GraphReader, applier ChangeApplier, opts ...Option) *Service {
	s := &Service{
		store:   store,
		graph:   graph,
		applier: applier,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		tracer:  otel.Tracer("lineage/suggestion"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tx == nil {
		s.tx = tx.NewMemoryRunner()
	}
	return s
}

// transition runs validate and mutate on one locked suggestion inside a
// transaction and translates failures.
func (s *Service) transition(ctx context.Context, sid id.SuggestionID, validate func(*models.Suggestion) error, mutate func(*models.Suggestion)) (*models.Suggestion, error) {
	var updated *models.Suggestion
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		updated, err = s.store.Execute(txCtx, sid, validate, mutate)
		return err
	})
	if err != nil {
		return nil, translate(err, "failed to update suggestion")
	}
	return updated, nil
}

func (s *Service) load(ctx context.Context, sid id.SuggestionID) (*models.Suggestion, error) {
	sg, err := s.store.FindByID(ctx, sid)
	if err != nil {
		return nil, translate(err, "failed to load suggestion")
	}
	return sg, nil
}

// translate maps store sentinels and model invariant failures to domain
// errors. Domain errors pass through, except invariant violations which
// surface as conflicts.
func translate(err error, msg string) error {
	var de *dErrors.Error
	if errors.As(err, &de) {
		if de.Code == dErrors.CodeInvariantViolation {
			return dErrors.New(dErrors.CodeConflict, de.Message)
		}
		return err
	}
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "suggestion not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "suggestion was modified concurrently")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}

func scopeOf(sg *models.Suggestion) policy.Scope {
	return policy.Scope{Town: sg.TownID, Tree: sg.TreeID}
}

func toReach(r policy.Reach) models.Reach {
	return models.Reach{All: r.All, Towns: r.Towns, Trees: r.Trees}
}

// canSee reports whether caps may read sg: its submitter or anyone who
// reviews its town or tree.
func canSee(caps policy.CapabilitySet, sg *models.Suggestion) bool {
	if sg.SubmitterID == caps.UserID() {
		return true
	}
	return caps.Can(policy.SuggestionViewQueue, scopeOf(sg)) || caps.Can(policy.SuggestionReview, scopeOf(sg))
}

func authenticated(ctx context.Context) (policy.CapabilitySet, error) {
	caps := policy.Evaluate(requestcontext.PrincipalFrom(ctx))
	if !caps.Authenticated() {
		return caps, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	return caps, nil
}

// emit records an audit entry. Call only after the unit of work committed.
func (s *Service) emit(ctx context.Context, action audit.Action, sg *models.Suggestion, before, after any) {
	if s.audit == nil {
		return
	}
	s.audit.Record(ctx, audit.Record{
		ActorID:    requestcontext.UserID(ctx).String(),
		Action:     action,
		EntityType: audit.EntitySuggestion,
		EntityID:   sg.ID.String(),
		Previous:   audit.MustJSON(before),
		New:        audit.MustJSON(after),
	})
}

func (s *Service) startSpan(ctx context.Context, name string, sid id.SuggestionID) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(attribute.String("suggestion.id", sid.String())))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (s *Service) observe(observe func(*metrics.Metrics, time.Time), start time.Time) {
	if s.metrics != nil {
		observe(s.metrics, start)
	}
}

func (s *Service) decision(status models.Status) {
	if s.metrics != nil {
		s.metrics.IncrementDecision(string(status))
	}
}

// statusView is the audit payload for a status change.
type statusView struct {
	Status models.Status `json:"status"`
	Reason string        `json:"reason,omitempty"`
}
