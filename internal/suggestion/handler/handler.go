package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"lineage/internal/suggestion/models"
	id "lineage/pkg/domain"
	dErrors "lineage/pkg/domain-errors"
	"lineage/pkg/platform/httputil"
	"lineage/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

// Service is the suggestion workflow as seen by HTTP.
type Service interface {
	Create(ctx context.Context, req *models.CreateRequest) (*models.CreateResult, error)
	CheckDuplicate(ctx context.Context, key models.DuplicateKey) ([]*models.Suggestion, error)
	Get(ctx context.Context, sid id.SuggestionID) (*models.Details, error)
	ListMine(ctx context.Context, f models.MineFilter) ([]*models.Suggestion, error)
	Withdraw(ctx context.Context, sid id.SuggestionID, req *models.WithdrawRequest) (*models.Suggestion, error)
	AddEvidence(ctx context.Context, sid id.SuggestionID, req *models.EvidenceRequest) (*models.Evidence, error)
	AddComment(ctx context.Context, sid id.SuggestionID, req *models.CommentRequest) (*models.Comment, error)
	ListQueue(ctx context.Context, f models.QueueFilter) ([]*models.Suggestion, error)
	PendingByTown(ctx context.Context) ([]models.TownCount, error)
	Statistics(ctx context.Context, town *id.TownID) (*models.Statistics, error)
	UpdateStatus(ctx context.Context, sid id.SuggestionID, req *models.ReviewRequest) (*models.Suggestion, error)
	Approve(ctx context.Context, sid id.SuggestionID, notes string) (*models.Suggestion, error)
	Rollback(ctx context.Context, sid id.SuggestionID, reason string) (*models.Suggestion, error)
	Delete(ctx context.Context, sid id.SuggestionID) (*models.Suggestion, error)
}

// Handler serves the suggestion endpoints. Routes expect the auth
// middleware to have placed a principal in the request context.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the suggestion endpoints on r.
func (h *Handler) Register(r chi.Router) {
	r.Route("/suggestions", func(r chi.Router) {
		r.Post("/", h.HandleCreate)
		r.Get("/mine", h.HandleListMine)
		r.Get("/duplicates", h.HandleCheckDuplicate)
		r.Get("/queue", h.HandleListQueue)
		r.Get("/pending-by-town", h.HandlePendingByTown)
		r.Get("/statistics", h.HandleStatistics)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.HandleGet)
			r.Delete("/", h.HandleDelete)
			r.Post("/withdraw", h.HandleWithdraw)
			r.Post("/evidence", h.HandleAddEvidence)
			r.Post("/comments", h.HandleAddComment)
			r.Patch("/status", h.HandleUpdateStatus)
			r.Post("/approve", h.HandleApprove)
			r.Post("/rollback", h.HandleRollback)
		})
	})
}

// fail logs at warn for client errors and error for everything else, then
// writes the error response.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	ctx := r.Context()
	if httputil.StatusFor(dErrors.CodeOf(err)) >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, msg, "request_id", requestcontext.RequestID(ctx), "error", err)
	} else {
		h.logger.WarnContext(ctx, msg, "request_id", requestcontext.RequestID(ctx), "error", err)
	}
	httputil.WriteError(w, err)
}

// HandleCreate handles POST /suggestions. It answers 201 with the new
// suggestion, or 200 with the open suggestions that already propose the
// same change.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[models.CreateRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	res, err := h.service.Create(ctx, req)
	if err != nil {
		h.fail(w, r, "failed to create suggestion", err)
		return
	}
	if !res.Created() {
		httputil.WriteJSON(w, http.StatusOK, CreateResponse{
			Duplicates: FromSuggestions(res.Duplicates),
			Message:    "an open suggestion already proposes this change; resubmit with force to create another",
		})
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, CreateResponse{Suggestion: FromSuggestion(res.Suggestion)})
}

// HandleCheckDuplicate handles GET /suggestions/duplicates.
func (h *Handler) HandleCheckDuplicate(w http.ResponseWriter, r *http.Request) {
	key, err := parseDuplicateKey(r)
	if err != nil {
		h.fail(w, r, "invalid duplicate check", err)
		return
	}
	found, err := h.service.CheckDuplicate(r.Context(), key)
	if err != nil {
		h.fail(w, r, "failed to check duplicates", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"duplicate":   len(found) > 0,
		"suggestions": FromSuggestions(found),
	})
}

// HandleGet handles GET /suggestions/{id}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	sid, err := suggestionID(r)
	if err != nil {
		h.fail(w, r, "invalid suggestion id", err)
		return
	}
	details, err := h.service.Get(r.Context(), sid)
	if err != nil {
		h.fail(w, r, "failed to load suggestion", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, DetailsResponse{
		SuggestionResponse: FromSuggestion(details.Suggestion),
		Evidence:           details.Evidence,
		Comments:           details.Comments,
	})
}

// HandleListMine handles GET /suggestions/mine.
func (h *Handler) HandleListMine(w http.ResponseWriter, r *http.Request) {
	f, err := parseMineFilter(r)
	if err != nil {
		h.fail(w, r, "invalid listing filter", err)
		return
	}
	items, err := h.service.ListMine(r.Context(), f)
	if err != nil {
		h.fail(w, r, "failed to list suggestions", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ListResponse{Items: FromSuggestions(items), Limit: f.Limit, Offset: f.Offset})
}

// HandleListQueue handles GET /suggestions/queue.
func (h *Handler) HandleListQueue(w http.ResponseWriter, r *http.Request) {
	f, err := parseQueueFilter(r)
	if err != nil {
		h.fail(w, r, "invalid queue filter", err)
		return
	}
	items, err := h.service.ListQueue(r.Context(), f)
	if err != nil {
		h.fail(w, r, "failed to list review queue", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ListResponse{Items: FromSuggestions(items), Limit: f.Limit, Offset: f.Offset})
}

// HandlePendingByTown handles GET /suggestions/pending-by-town.
func (h *Handler) HandlePendingByTown(w http.ResponseWriter, r *http.Request) {
	counts, err := h.service.PendingByTown(r.Context())
	if err != nil {
		h.fail(w, r, "failed to count pending suggestions", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"towns": counts})
}

// HandleStatistics handles GET /suggestions/statistics.
func (h *Handler) HandleStatistics(w http.ResponseWriter, r *http.Request) {
	town, err := optionalTown(r)
	if err != nil {
		h.fail(w, r, "invalid statistics filter", err)
		return
	}
	st, err := h.service.Statistics(r.Context(), town)
	if err != nil {
		h.fail(w, r, "failed to compute statistics", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, st)
}

// withSuggestion parses the path id and a JSON body of type T, then calls fn.
func withSuggestion[T any, PT interface {
	*T
	httputil.Validatable
}](h *Handler, w http.ResponseWriter, r *http.Request, fn func(context.Context, id.SuggestionID, *T) (any, error), status int, failMsg string) {
	ctx := r.Context()
	sid, err := suggestionID(r)
	if err != nil {
		h.fail(w, r, "invalid suggestion id", err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[T, PT](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	out, err := fn(ctx, sid, req)
	if err != nil {
		h.fail(w, r, failMsg, err)
		return
	}
	httputil.WriteJSON(w, status, out)
}

// HandleWithdraw handles POST /suggestions/{id}/withdraw.
func (h *Handler) HandleWithdraw(w http.ResponseWriter, r *http.Request) {
	withSuggestion(h, w, r, func(ctx context.Context, sid id.SuggestionID, req *models.WithdrawRequest) (any, error) {
		sg, err := h.service.Withdraw(ctx, sid, req)
		if err != nil {
			return nil, err
		}
		return FromSuggestion(sg), nil
	}, http.StatusOK, "failed to withdraw suggestion")
}

// HandleAddEvidence handles POST /suggestions/{id}/evidence.
func (h *Handler) HandleAddEvidence(w http.ResponseWriter, r *http.Request) {
	withSuggestion(h, w, r, func(ctx context.Context, sid id.SuggestionID, req *models.EvidenceRequest) (any, error) {
		return h.service.AddEvidence(ctx, sid, req)
	}, http.StatusCreated, "failed to add evidence")
}

// HandleAddComment handles POST /suggestions/{id}/comments.
func (h *Handler) HandleAddComment(w http.ResponseWriter, r *http.Request) {
	withSuggestion(h, w, r, func(ctx context.Context, sid id.SuggestionID, req *models.CommentRequest) (any, error) {
		return h.service.AddComment(ctx, sid, req)
	}, http.StatusCreated, "failed to add comment")
}

// HandleUpdateStatus handles PATCH /suggestions/{id}/status.
func (h *Handler) HandleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	withSuggestion(h, w, r, func(ctx context.Context, sid id.SuggestionID, req *models.ReviewRequest) (any, error) {
		sg, err := h.service.UpdateStatus(ctx, sid, req)
		if err != nil {
			return nil, err
		}
		return FromSuggestion(sg), nil
	}, http.StatusOK, "failed to update suggestion status")
}

// HandleApprove handles POST /suggestions/{id}/approve.
func (h *Handler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	withSuggestion(h, w, r, func(ctx context.Context, sid id.SuggestionID, req *models.ReviewRequest) (any, error) {
		sg, err := h.service.Approve(ctx, sid, req.Notes)
		if err != nil {
			return nil, err
		}
		return FromSuggestion(sg), nil
	}, http.StatusOK, "failed to approve suggestion")
}

// HandleRollback handles POST /suggestions/{id}/rollback.
func (h *Handler) HandleRollback(w http.ResponseWriter, r *http.Request) {
	withSuggestion(h, w, r, func(ctx context.Context, sid id.SuggestionID, req *models.ReviewRequest) (any, error) {
		sg, err := h.service.Rollback(ctx, sid, req.Reason)
		if err != nil {
			return nil, err
		}
		return FromSuggestion(sg), nil
	}, http.StatusOK, "failed to roll back suggestion")
}

// HandleDelete handles DELETE /suggestions/{id}.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	sid, err := suggestionID(r)
	if err != nil {
		h.fail(w, r, "invalid suggestion id", err)
		return
	}
	sg, err := h.service.Delete(r.Context(), sid)
	if err != nil {
		h.fail(w, r, "failed to delete suggestion", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromSuggestion(sg))
}
