package handler

import (
	"net/http"
	"strconv"
	"strings"

	"lineage/internal/duplicate/models"
	id "lineage/pkg/domain"
	dErrors "lineage/pkg/domain-errors"
)

const (
	defaultLimit  = 50
	maxLimit      = 500
	maxExportRows = 10000
)

// ListResponse pages candidates.
type ListResponse struct {
	Candidates []*models.Candidate `json:"candidates"`
	Limit      int                 `json:"limit"`
	Offset     int                 `json:"offset"`
}

// parseScope reads ?tree_id=&target_tree_id=&mode=&min_confidence=.
func parseScope(r *http.Request) (models.Scope, error) {
	q := r.URL.Query()
	var scope models.Scope
	var err error
	if scope.TreeID, err = id.ParseTreeID(q.Get("tree_id")); err != nil {
		return scope, dErrors.New(dErrors.CodeBadRequest, "invalid tree_id")
	}
	scope.TargetTreeID = scope.TreeID
	if v := q.Get("target_tree_id"); v != "" {
		if scope.TargetTreeID, err = id.ParseTreeID(v); err != nil {
			return scope, dErrors.New(dErrors.CodeBadRequest, "invalid target_tree_id")
		}
	}
	if v := strings.ToLower(q.Get("mode")); v != "" {
		mode := models.Mode(v)
		if !mode.IsValid() {
			return scope, dErrors.New(dErrors.CodeBadRequest, "unknown mode: "+v)
		}
		scope.Mode = &mode
	}
	var threshold *int
	if v := q.Get("min_confidence"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return scope, dErrors.New(dErrors.CodeBadRequest, "invalid min_confidence")
		}
		threshold = &n
	}
	if scope.MinConfidence, err = models.ParseConfidence(threshold); err != nil {
		return scope, err
	}
	return scope, nil
}

func parsePage(r *http.Request) (limit, offset int, err error) {
	q := r.URL.Query()
	limit = defaultLimit
	if v := q.Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit < 1 {
			return 0, 0, dErrors.New(dErrors.CodeBadRequest, "invalid limit")
		}
		limit = min(limit, maxLimit)
	}
	if v := q.Get("offset"); v != "" {
		if offset, err = strconv.Atoi(v); err != nil || offset < 0 {
			return 0, 0, dErrors.New(dErrors.CodeBadRequest, "invalid offset")
		}
	}
	return limit, offset, nil
}

func optionalStatus(r *http.Request) *models.Status {
	if v := r.URL.Query().Get("status"); v != "" {
		s := models.Status(strings.ToLower(v))
		return &s
	}
	return nil
}

func parsePair(r *http.Request) (a, b id.PersonID, err error) {
	q := r.URL.Query()
	if a, err = id.ParsePersonID(q.Get("person_a")); err != nil {
		return a, b, dErrors.New(dErrors.CodeBadRequest, "invalid person_a")
	}
	if b, err = id.ParsePersonID(q.Get("person_b")); err != nil {
		return a, b, dErrors.New(dErrors.CodeBadRequest, "invalid person_b")
	}
	return a, b, nil
}
