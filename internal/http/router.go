// Package httpapi assembles the public HTTP surface: middleware order,
// CORS, health, metrics and the domain handlers.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"

	"lineage/pkg/platform/httputil"
	"lineage/pkg/platform/middleware/admin"
	"lineage/pkg/platform/middleware/auth"
	"lineage/pkg/platform/middleware/metadata"
	"lineage/pkg/platform/middleware/request"
	"lineage/pkg/platform/middleware/requesttime"
)

// Registrar is a domain handler that mounts its own routes.
type Registrar interface {
	Register(r chi.Router)
}

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) error

// MetricsExporter instruments requests and serves the exposition format.
type MetricsExporter interface {
	Middleware(next http.Handler) http.Handler
	Handler() http.Handler
}

type Deps struct {
	Logger      *slog.Logger
	Validator   auth.TokenValidator
	Metrics     MetricsExporter
	AdminToken  string
	CORSOrigins []string
	Health      map[string]HealthCheck
	Handlers    []Registrar

	// RateLimit runs after authentication so budgets are per user.
	RateLimit func(http.Handler) http.Handler
}

// NewRouter wires every endpoint. Domain routes require a bearer token;
// /health is open and /metrics needs the admin token.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(request.Recovery(d.Logger))
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata)
	r.Use(request.Logger(d.Logger))
	if d.Metrics != nil {
		r.Use(d.Metrics.Middleware)
	}

	r.Get("/health", healthHandler(d.Health))
	if d.Metrics != nil {
		r.With(admin.RequireAdminToken(d.AdminToken, d.Logger)).Handle("/metrics", d.Metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(d.Validator, d.Logger))
		if d.RateLimit != nil {
			r.Use(d.RateLimit)
		}
		for _, h := range d.Handlers {
			h.Register(r)
		}
	})

	if len(d.CORSOrigins) == 0 {
		return r
	}
	return cors.New(cors.Options{
		AllowedOrigins:   d.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete},
		AllowedHeaders:   []string{"Authorization", "Content-Type", request.HeaderRequestID},
		ExposedHeaders:   []string{request.HeaderRequestID},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler(r)
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status, code := "ok", http.StatusOK
		results := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				results[name] = err.Error()
				status, code = "degraded", http.StatusServiceUnavailable
				continue
			}
			results[name] = "ok"
		}
		httputil.WriteJSON(w, code, map[string]any{"status": status, "checks": results})
	}
}
