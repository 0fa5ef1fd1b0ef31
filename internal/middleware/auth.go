package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"studyon/internal/billing"
	"studyon/internal/session"
)

// Injected key type to avoid context collisions
type contextKey string

const (
	SessionContextKey      = contextKey("session")
	sessionStoreContextKey = contextKey("session_store")
)

// SessionStore is implemented by session.Store.
type SessionStore interface {
	Load(r *http.Request) (*session.Session, error)
	Save(w http.ResponseWriter, r *http.Request, s *session.Session) error
	Clear(w http.ResponseWriter, r *http.Request) error
}

// SessionValidator is implemented by session.Manager.
type SessionValidator interface {
	EnsureValid(ctx context.Context, s *session.Session) (*session.Session, error)
}

// SessionFromContext returns the session stored by AuthMiddleware.
func SessionFromContext(ctx context.Context) (*session.Session, bool) {
	s, ok := ctx.Value(SessionContextKey).(*session.Session)
	return s, ok && s != nil
}

// WithSession returns ctx carrying s.
func WithSession(ctx context.Context, s *session.Session) context.Context {
	return context.WithValue(ctx, SessionContextKey, s)
}

// ClearSession drops the session cookie of a request that passed
// AuthMiddleware. Billing can revoke a token before it expires, so handlers
// clear it when billing answers with the unauthorized sentinel.
func ClearSession(w http.ResponseWriter, r *http.Request) error {
	store, ok := r.Context().Value(sessionStoreContextKey).(SessionStore)
	if !ok {
		return nil
	}
	return store.Clear(w, r)
}

// AuthMiddleware loads the session cookie and keeps its tokens valid. A
// refreshed token pair is written back to the cookie before the handler runs.
func AuthMiddleware(store SessionStore, manager SessionValidator, logger zerolog.Logger) func(http.Handler) http.Handler {
	logger = logger.With().Str("middleware", "Auth").Logger()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s, err := store.Load(r)
			if err != nil {
				if !errors.Is(err, session.ErrNoSession) {
					logger.Warn().Err(err).Msg("Discarding unreadable session")
					_ = store.Clear(w, r)
				}
				http.Error(w, "Unauthorized: no valid session", http.StatusUnauthorized)
				return
			}

			accessToken := s.AccessToken
			s, err = manager.EnsureValid(r.Context(), s)
			switch {
			case err == nil:
			case errors.Is(err, session.ErrSessionInvalid), errors.Is(err, billing.ErrUnauthorized):
				logger.Info().Err(err).Msg("Session rejected; re-authentication required")
				_ = store.Clear(w, r)
				http.Error(w, "Unauthorized: session expired", http.StatusUnauthorized)
				return
			default:
				logger.Error().Err(err).Msg("Failed to validate session")
				http.Error(w, "Billing service is temporarily unavailable", http.StatusServiceUnavailable)
				return
			}

			if s.AccessToken != accessToken {
				if err := store.Save(w, r, s); err != nil {
					logger.Error().Err(err).Msg("Failed to persist refreshed session")
				}
			}
			ctx := context.WithValue(WithSession(r.Context(), s), sessionStoreContextKey, store)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole refuses sessions that do not hold role. It must run after
// AuthMiddleware.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s, ok := SessionFromContext(r.Context())
			if !ok {
				http.Error(w, "Unauthorized: no valid session", http.StatusUnauthorized)
				return
			}
			if !s.IsAdmin(role) {
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
