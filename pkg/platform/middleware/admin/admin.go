package admin

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	dErrors "lineage/pkg/domain-errors"
	"lineage/pkg/platform/httputil"
	"lineage/pkg/requestcontext"
)

const HeaderAdminToken = "X-Admin-Token"

// RequireAdminToken guards operator endpoints such as /metrics with a shared
// token. An empty expected token closes them entirely.
func RequireAdminToken(expectedToken string, logger *slog.Logger) func(http.Handler) http.Handler {
	expected := []byte(expectedToken)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			got := []byte(r.Header.Get(HeaderAdminToken))
			if len(expected) == 0 || subtle.ConstantTimeCompare(got, expected) != 1 {
				logger.WarnContext(ctx, "operator endpoint rejected",
					"path", r.URL.Path,
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "admin token required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
