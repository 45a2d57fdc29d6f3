package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Harshitk-cp/junctree/internal/domain"
	"github.com/Harshitk-cp/junctree/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusOf maps service and inference errors to HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, service.ErrNetworkNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrNetworkExists):
		return http.StatusConflict
	case errors.Is(err, domain.ErrCliqueTooLarge),
		errors.Is(err, domain.ErrDisconnected),
		errors.Is(err, domain.ErrScopeNotCoverable),
		errors.Is(err, domain.ErrDegenerateConditioning),
		errors.Is(err, domain.ErrStaleModel):
		return http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrInvalidNetwork),
		errors.Is(err, domain.ErrUnknownVariable),
		errors.Is(err, domain.ErrDuplicateVariable),
		errors.Is(err, domain.ErrInvalidDomain),
		errors.Is(err, domain.ErrSelfLoop),
		errors.Is(err, domain.ErrCyclicGraph),
		errors.Is(err, domain.ErrDuplicateEdge),
		errors.Is(err, domain.ErrEdgeNotFound),
		errors.Is(err, domain.ErrScopeMismatch),
		errors.Is(err, domain.ErrInvalidDistribution),
		errors.Is(err, domain.ErrMissingDistribution),
		errors.Is(err, domain.ErrEmptyQuery),
		errors.Is(err, domain.ErrOverlappingQuery),
		errors.Is(err, domain.ErrInvalidValue):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// writeServiceError reports known errors with their message and hides the
// rest behind fallback.
func writeServiceError(w http.ResponseWriter, err error, fallback string) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		writeError(w, status, fallback)
		return
	}
	writeError(w, status, err.Error())
}

func networkID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid network id")
		return uuid.Nil, false
	}
	return id, true
}
