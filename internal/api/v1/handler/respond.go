package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"studyon/internal/billing"
	"studyon/internal/middleware"
	"studyon/internal/service"
	"studyon/internal/session"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps core errors onto HTTP statuses. Billing messages are only
// passed through for rejected requests. An unauthorized answer also drops the
// session cookie.
func writeError(w http.ResponseWriter, r *http.Request, logger zerolog.Logger, err error, action string) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, session.ErrSessionInvalid), errors.Is(err, billing.ErrUnauthorized):
		if cErr := middleware.ClearSession(w, r); cErr != nil {
			logger.Warn().Err(cErr).Msg("Failed to clear rejected session")
		}
		http.Error(w, billing.UserMessage(billing.ErrUnauthorized), http.StatusUnauthorized)
	case errors.Is(err, service.ErrAccessDenied):
		http.Error(w, "Forbidden: purchase or rent the course to view this lesson", http.StatusForbidden)
	case errors.Is(err, service.ErrCourseNotFound), errors.Is(err, service.ErrLessonNotFound), errors.Is(err, billing.ErrNotFound):
		http.Error(w, "Not found", http.StatusNotFound)
	case errors.Is(err, billing.ErrRejected):
		http.Error(w, billing.UserMessage(err), http.StatusConflict)
	case errors.Is(err, billing.ErrServiceUnavailable):
		logger.Error().Err(err).Msg(action)
		http.Error(w, billing.UserMessage(err), http.StatusServiceUnavailable)
	case errors.Is(err, billing.ErrInvalidResponse):
		logger.Error().Err(err).Msg(action)
		http.Error(w, billing.UserMessage(err), http.StatusBadGateway)
	default:
		logger.Error().Err(err).Msg(action)
		http.Error(w, action, http.StatusInternalServerError)
	}
}

// sessionOrUnauthorized returns the request session or writes 401.
func sessionOrUnauthorized(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	s, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized: no valid session", http.StatusUnauthorized)
		return nil, false
	}
	return s, true
}

// pathID parses a positive int64 path value.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "Invalid "+name, http.StatusBadRequest)
		return 0, false
	}
	return id, true
}
