// Package middleware applies per-caller request budgets to authenticated
// routes.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"lineage/internal/ratelimit/metrics"
	"lineage/internal/ratelimit/models"
	"lineage/pkg/platform/httputil"
	"lineage/pkg/requestcontext"
)

// Store counts requests per key.
type Store interface {
	Allow(ctx context.Context, key string, limit models.Limit) (*models.Result, error)
}

type Middleware struct {
	store   Store
	limits  map[models.Class]models.Limit
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Middleware)

func WithMetrics(m *metrics.Metrics) Option {
	return func(mw *Middleware) {
		mw.metrics = m
	}
}

func New(store Store, limits map[models.Class]models.Limit, logger *slog.Logger, opts ...Option) *Middleware {
	m := &Middleware{store: store, limits: limits, logger: logger}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Limit enforces the budget of the request's class. Callers are keyed by
// user when authenticated, by client IP otherwise. Store failures let the
// request through.
func (m *Middleware) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		class := models.ClassOf(r)
		limit, ok := m.limits[class]
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		result, err := m.store.Allow(ctx, models.Key(class, caller(ctx)), limit)
		if err != nil {
			m.logger.ErrorContext(ctx, "rate limit check failed",
				"class", class,
				"error", err,
				"request_id", requestcontext.RequestID(ctx),
			)
			if m.metrics != nil {
				m.metrics.StoreErrors.Inc()
			}
			next.ServeHTTP(w, r)
			return
		}
		if m.metrics != nil {
			m.metrics.ObserveDecision(string(class), result.Allowed)
		}

		addHeaders(w, result)
		if !result.Allowed {
			m.logger.WarnContext(ctx, "rate limit exceeded",
				"class", class,
				"user_id", requestcontext.UserID(ctx),
			)
			writeExceeded(w, result)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func caller(ctx context.Context) string {
	if p := requestcontext.PrincipalFrom(ctx); p.Authenticated() {
		return "user:" + p.UserID.String()
	}
	return "ip:" + requestcontext.ClientIP(ctx)
}

func addHeaders(w http.ResponseWriter, result *models.Result) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}

func writeExceeded(w http.ResponseWriter, result *models.Result) {
	w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfter))
	httputil.WriteJSON(w, http.StatusTooManyRequests, &models.ExceededResponse{
		Error:      "rate_limit_exceeded",
		Message:    "You have exceeded your request quota for this operation.",
		Limit:      result.Limit,
		RetryAfter: result.RetryAfter,
		ResetAt:    result.ResetAt,
	})
}
