// Package service scans trees for duplicate people and resolves the
// candidates a scan produces.
package service

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"lineage/internal/changes"
	"lineage/internal/duplicate/metrics"
	"lineage/internal/duplicate/models"
	"lineage/internal/graph"
	"lineage/internal/policy"
	id "lineage/pkg/domain"
	dErrors "lineage/pkg/domain-errors"
	"lineage/pkg/platform/audit"
	"lineage/pkg/platform/sentinel"
	"lineage/pkg/platform/tx"
	"lineage/pkg/requestcontext"
)

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Store,GraphReader,ChangeApplier,SummaryCache

// Store persists candidates. Methods join the transaction carried in ctx.
type Store interface {
	Upsert(ctx context.Context, c *models.Candidate) (*models.Candidate, error)
	FindByPair(ctx context.Context, pair models.Pair) (*models.Candidate, error)
	FindByPairForUpdate(ctx context.Context, pair models.Pair) (*models.Candidate, error)
	Update(ctx context.Context, c *models.Candidate) error
	List(ctx context.Context, scope models.Scope, status *models.Status, limit, offset int) ([]*models.Candidate, error)
	Summarize(ctx context.Context, scope models.Scope) (*models.Summary, error)
}

// GraphReader is the read side of the graph a scan needs.
type GraphReader interface {
	ListPeopleInTree(ctx context.Context, treeID id.TreeID) ([]*graph.Person, error)
	ListParentChildForPersons(ctx context.Context, personIDs []id.PersonID) ([]*graph.ParentChild, error)
	ListUnionsForPersons(ctx context.Context, personIDs []id.PersonID) ([]*graph.Union, error)
}

// ChangeApplier performs the merge and link changes of a resolution.
type ChangeApplier interface {
	Apply(ctx context.Context, c changes.Change) (*changes.Snapshot, error)
}

// SummaryCache holds summaries between scans. Failures are logged and the
// store is used instead.
type SummaryCache interface {
	Get(ctx context.Context, scope models.Scope) (*models.Summary, bool, error)
	Set(ctx context.Context, scope models.Scope, sum *models.Summary) error
	Invalidate(ctx context.Context, trees ...id.TreeID) error
}

const (
	defaultMaxScanPersons = 5000
	defaultScanWorkers    = 4
)

type Service struct {
	store          Store
	graph          GraphReader
	applier        ChangeApplier
	tx             tx.Runner
	cache          SummaryCache
	audit          audit.Recorder
	logger         *slog.Logger
	metrics        *metrics.Metrics
	tracer         trace.Tracer
	maxScanPersons int
	workers        int
}

type Option func(*Service)

// WithTx sets the runner that makes merges atomic. It must cover both the
// candidate store and the graph.
func WithTx(r tx.Runner) Option {
	return func(s *Service) { s.tx = r }
}

func WithCache(c SummaryCache) Option {
	return func(s *Service) { s.cache = c }
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

// WithScanLimits caps the people a scan compares and the goroutines that
// score pairs. Non-positive values keep the defaults.
func WithScanLimits(maxPersons, workers int) Option {
	return func(s *Service) {
		if maxPersons > 0 {
			s.maxScanPersons = maxPersons
		}
		if workers > 0 {
			s.workers = workers
		}
	}
}

func New(store Store, graph GraphReader, applier ChangeApplier, opts ...Option) *Service {
	s := &Service{
		store:          store,
		graph:          graph,
		applier:        applier,
		logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		tracer:         otel.Tracer("lineage/duplicate"),
		maxScanPersons: defaultMaxScanPersons,
		workers:        defaultScanWorkers,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tx == nil {
		s.tx = tx.NewMemoryRunner()
	}
	return s
}

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
		return dErrors.New(dErrors.CodeNotFound, "duplicate candidate not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "duplicate candidate was modified concurrently")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return dErrors.Wrap(err, dErrors.CodeTimeout, msg)
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}

func authenticated(ctx context.Context) (policy.CapabilitySet, error) {
	caps := policy.Evaluate(requestcontext.PrincipalFrom(ctx))
	if !caps.Authenticated() {
		return caps, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	return caps, nil
}

// requireTrees checks capability on every distinct tree of a scope.
func requireTrees(caps policy.CapabilitySet, capability policy.Capability, trees ...id.TreeID) error {
	for _, t := range trees {
		if err := caps.Require(capability, policy.Scope{Tree: t}); err != nil {
			return err
		}
	}
	return nil
}

func scopeTrees(scope models.Scope) []id.TreeID {
	if scope.CrossTree() {
		return []id.TreeID{scope.TreeID, scope.TargetTreeID}
	}
	return []id.TreeID{scope.TreeID}
}

// invalidate drops cached summaries after a write. Failures only cost
// freshness until the entries expire.
func (s *Service) invalidate(ctx context.Context, trees ...id.TreeID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, trees...); err != nil {
		s.logger.WarnContext(ctx, "failed to invalidate duplicate summaries",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	}
}

func (s *Service) emit(ctx context.Context, action audit.Action, entityType, entityID string, before, after any) {
	if s.audit == nil {
		return
	}
	s.audit.Record(ctx, audit.Record{
		ActorID:    requestcontext.UserID(ctx).String(),
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Previous:   audit.MustJSON(before),
		New:        audit.MustJSON(after),
	})
}

func (s *Service) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
