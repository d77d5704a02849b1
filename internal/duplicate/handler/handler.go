package handler

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"lineage/internal/duplicate/export"
	"lineage/internal/duplicate/models"
	id "lineage/pkg/domain"
	dErrors "lineage/pkg/domain-errors"
	"lineage/pkg/platform/httputil"
	"lineage/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

// Service is duplicate detection and resolution as seen by HTTP.
type Service interface {
	ScanDuplicates(ctx context.Context, req *models.ScanRequest) (*models.ScanResult, error)
	SummarizeDuplicates(ctx context.Context, scope models.Scope) (*models.Summary, error)
	ListCandidates(ctx context.Context, scope models.Scope, status *models.Status, limit, offset int) ([]*models.Candidate, error)
	GetCandidate(ctx context.Context, a, b id.PersonID) (*models.Candidate, error)
	ResolveDuplicate(ctx context.Context, req *models.ResolveRequest) (*models.Candidate, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the duplicate endpoints on r.
func (h *Handler) Register(r chi.Router) {
	r.Route("/duplicates", func(r chi.Router) {
		r.Get("/", h.HandleList)
		r.Post("/scan", h.HandleScan)
		r.Get("/summary", h.HandleSummary)
		r.Get("/export", h.HandleExport)
		r.Get("/pair", h.HandleGetPair)
		r.Post("/resolve", h.HandleResolve)
	})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	ctx := r.Context()
	if httputil.StatusFor(dErrors.CodeOf(err)) >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, msg, "request_id", requestcontext.RequestID(ctx), "error", err)
	} else {
		h.logger.WarnContext(ctx, msg, "request_id", requestcontext.RequestID(ctx), "error", err)
	}
	httputil.WriteError(w, err)
}

// HandleScan handles POST /duplicates/scan. A scan cut short by the client
// still answers 200 with partial set.
func (h *Handler) HandleScan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[models.ScanRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	res, err := h.service.ScanDuplicates(ctx, req)
	if err != nil {
		h.fail(w, r, "failed to scan for duplicates", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

// HandleSummary handles GET /duplicates/summary.
func (h *Handler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	scope, err := parseScope(r)
	if err != nil {
		h.fail(w, r, "invalid duplicate summary request", err)
		return
	}
	sum, err := h.service.SummarizeDuplicates(r.Context(), scope)
	if err != nil {
		h.fail(w, r, "failed to summarize duplicates", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sum)
}

// HandleList handles GET /duplicates.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	scope, err := parseScope(r)
	if err != nil {
		h.fail(w, r, "invalid duplicate list request", err)
		return
	}
	limit, offset, err := parsePage(r)
	if err != nil {
		h.fail(w, r, "invalid duplicate list request", err)
		return
	}
	found, err := h.service.ListCandidates(r.Context(), scope, optionalStatus(r), limit, offset)
	if err != nil {
		h.fail(w, r, "failed to list duplicates", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ListResponse{Candidates: found, Limit: limit, Offset: offset})
}

// HandleGetPair handles GET /duplicates/pair?person_a=&person_b=.
func (h *Handler) HandleGetPair(w http.ResponseWriter, r *http.Request) {
	a, b, err := parsePair(r)
	if err != nil {
		h.fail(w, r, "invalid duplicate pair", err)
		return
	}
	c, err := h.service.GetCandidate(r.Context(), a, b)
	if err != nil {
		h.fail(w, r, "failed to load duplicate candidate", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, c)
}

// HandleResolve handles POST /duplicates/resolve.
func (h *Handler) HandleResolve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[models.ResolveRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	c, err := h.service.ResolveDuplicate(ctx, req)
	if err != nil {
		h.fail(w, r, "failed to resolve duplicate", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, c)
}

// HandleExport handles GET /duplicates/export. It takes the list filters and
// answers with an xlsx workbook of at most maxExportRows candidates.
func (h *Handler) HandleExport(w http.ResponseWriter, r *http.Request) {
	scope, err := parseScope(r)
	if err != nil {
		h.fail(w, r, "invalid duplicate export request", err)
		return
	}
	found, err := h.service.ListCandidates(r.Context(), scope, optionalStatus(r), maxExportRows, 0)
	if err != nil {
		h.fail(w, r, "failed to list duplicates for export", err)
		return
	}

	var buf bytes.Buffer
	if err := export.WriteCandidates(&buf, found); err != nil {
		h.fail(w, r, "failed to render duplicate export", dErrors.Wrap(err, dErrors.CodeInternal, "render export"))
		return
	}
	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="duplicates-%s.xlsx"`, scope.TreeID))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
