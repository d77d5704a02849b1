// Package requesttime pins a single "now" per HTTP request so timestamps
// written by one request (reviewed_at, audit records) agree.
package requesttime

import (
	"net/http"
	"time"

	"lineage/pkg/requestcontext"
)

func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now().UTC())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
