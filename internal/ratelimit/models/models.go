// Package models holds rate limit classes, decisions and response bodies.
package models

import (
	"net/http"
	"strings"
	"time"
)

// Class groups endpoints that share a budget.
type Class string

const (
	ClassRead  Class = "read"
	ClassWrite Class = "write"
	ClassScan  Class = "scan"
)

// ClassOf picks the budget for a request. Duplicate scans walk whole trees
// and get their own class.
func ClassOf(r *http.Request) Class {
	switch {
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/duplicates/scan"):
		return ClassScan
	case r.Method == http.MethodGet, r.Method == http.MethodHead:
		return ClassRead
	default:
		return ClassWrite
	}
}

// Limit is the number of requests allowed per window.
type Limit struct {
	Requests int
	Window   time.Duration
}

// Result is the outcome of one check against a key.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter int // seconds, set when denied
}

// Key is the bucket identifier for a caller and class.
func Key(class Class, caller string) string {
	return "rl:" + string(class) + ":" + caller
}

type ExceededResponse struct {
	Error      string    `json:"error"`
	Message    string    `json:"message"`
	Limit      int       `json:"limit"`
	RetryAfter int       `json:"retry_after"`
	ResetAt    time.Time `json:"reset_at"`
}
