package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"lineage/internal/changes"
	"lineage/internal/suggestion/models"
	id "lineage/pkg/domain"
	dErrors "lineage/pkg/domain-errors"
)

func suggestionID(r *http.Request) (id.SuggestionID, error) {
	sid, err := id.ParseSuggestionID(chi.URLParam(r, "id"))
	if err != nil {
		return id.SuggestionID{}, dErrors.New(dErrors.CodeBadRequest, "invalid suggestion id")
	}
	return sid, nil
}

func parsePage(r *http.Request) (models.Page, error) {
	var p models.Page
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return p, dErrors.New(dErrors.CodeBadRequest, "invalid limit")
		}
		p.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return p, dErrors.New(dErrors.CodeBadRequest, "invalid offset")
		}
		p.Offset = n
	}
	return p.Normalize(), nil
}

func optionalStatus(r *http.Request) *models.Status {
	if v := r.URL.Query().Get("status"); v != "" {
		s := models.Status(v)
		return &s
	}
	return nil
}

func optionalType(r *http.Request) *changes.Kind {
	if v := r.URL.Query().Get("type"); v != "" {
		k := changes.Kind(v)
		return &k
	}
	return nil
}

func optionalTown(r *http.Request) (*id.TownID, error) {
	v := r.URL.Query().Get("town_id")
	if v == "" {
		return nil, nil
	}
	town, err := id.ParseTownID(v)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeBadRequest, "invalid town_id")
	}
	return &town, nil
}

// parseMineFilter reads ?status=&limit=&offset=.
func parseMineFilter(r *http.Request) (models.MineFilter, error) {
	page, err := parsePage(r)
	if err != nil {
		return models.MineFilter{}, err
	}
	return models.MineFilter{Status: optionalStatus(r), Page: page}, nil
}

// parseQueueFilter reads ?town_id=&status=&type=&limit=&offset=.
func parseQueueFilter(r *http.Request) (models.QueueFilter, error) {
	page, err := parsePage(r)
	if err != nil {
		return models.QueueFilter{}, err
	}
	town, err := optionalTown(r)
	if err != nil {
		return models.QueueFilter{}, err
	}
	return models.QueueFilter{TownID: town, Status: optionalStatus(r), Type: optionalType(r), Page: page}, nil
}

// parseDuplicateKey reads ?tree_id=&type=&target_person_id=&secondary_person_id=.
func parseDuplicateKey(r *http.Request) (models.DuplicateKey, error) {
	q := r.URL.Query()
	var key models.DuplicateKey
	var err error
	if key.TreeID, err = id.ParseTreeID(q.Get("tree_id")); err != nil {
		return key, dErrors.New(dErrors.CodeBadRequest, "invalid tree_id")
	}
	if key.TargetPersonID, err = id.ParsePersonID(q.Get("target_person_id")); err != nil {
		return key, dErrors.New(dErrors.CodeBadRequest, "invalid target_person_id")
	}
	if v := q.Get("secondary_person_id"); v != "" {
		p, err := id.ParsePersonID(v)
		if err != nil {
			return key, dErrors.New(dErrors.CodeBadRequest, "invalid secondary_person_id")
		}
		key.SecondaryPersonID = &p
	}
	key.Type = changes.Kind(q.Get("type"))
	return key, nil
}
