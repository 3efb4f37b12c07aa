package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"swipe-match-backend/internal/catalog"
	"swipe-match-backend/internal/services"

	"github.com/go-chi/chi/v5"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// respondError sends an error response
func respondError(w http.ResponseWriter, message string, statusCode int) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}

// respondJSON sends a JSON body with the given status
func respondJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

// statusFor maps service errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, services.ErrInvalidOperation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, services.ErrBudgetExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, services.ErrPersistence), errors.Is(err, catalog.ErrNoCandidates):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondServiceError writes the mapped status. Persistence and unexpected
// errors are not echoed to the client.
func respondServiceError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		message = http.StatusText(status)
	}
	respondError(w, message, status)
}

// sessionIDParam returns the normalized {id} path parameter
func sessionIDParam(r *http.Request) string {
	return normalizeSessionID(chi.URLParam(r, "id"))
}

// normalizeSessionID accepts ids typed by hand with stray case or spaces
func normalizeSessionID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}
