package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/quizrun-api/internal/domain"
	"github.com/phrazzld/quizrun-api/internal/store"
)

// getPathUUID extracts and parses a UUID path parameter.
func getPathUUID(r *http.Request, paramName string) (uuid.UUID, error) {
	pathParam := chi.URLParam(r, paramName)
	if pathParam == "" {
		return uuid.Nil, fmt.Errorf("%w: %s is required", domain.ErrInvalidID, paramName)
	}
	id, err := uuid.Parse(pathParam)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s has invalid format", domain.ErrInvalidID, paramName)
	}
	return id, nil
}

// parseTaskFilter reads type, status (comma separated) and limit query
// parameters.
func parseTaskFilter(r *http.Request) (store.TaskFilter, error) {
	q := r.URL.Query()
	var filter store.TaskFilter

	if t := q.Get("type"); t != "" {
		filter.Type = domain.TaskType(t)
		if !filter.Type.IsValid() {
			return filter, fmt.Errorf("%w: %q", domain.ErrUnknownTaskType, t)
		}
	}
	if s := q.Get("status"); s != "" {
		for _, part := range strings.Split(s, ",") {
			status := domain.TaskStatus(strings.TrimSpace(part))
			if !status.IsValid() {
				return filter, fmt.Errorf("%w: %q", domain.ErrInvalidTaskStatus, status)
			}
			filter.Statuses = append(filter.Statuses, status)
		}
	}
	if l := q.Get("limit"); l != "" {
		limit, err := strconv.Atoi(l)
		if err != nil || limit <= 0 || limit > store.DefaultTaskListLimit {
			return filter, fmt.Errorf("%w: limit must be between 1 and %d", domain.ErrValidation, store.DefaultTaskListLimit)
		}
		filter.Limit = limit
	}
	return filter, nil
}
