package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studyon/internal/billing"
	"studyon/internal/session"
)

func mintToken(t *testing.T, exp time.Time, roles ...string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"username": "student@example.com",
		"roles":    roles,
		"exp":      exp.Unix(),
	}).SignedString([]byte("test"))
	require.NoError(t, err)
	return token
}

type fakeValidator struct {
	calls   int
	replace *session.Session
	err     error
}

func (f *fakeValidator) EnsureValid(_ context.Context, s *session.Session) (*session.Session, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.replace != nil {
		return f.replace, nil
	}
	return s, nil
}

func newStore() *session.Store {
	return session.NewStore([]byte("0123456789abcdef0123456789abcdef"), 3600, false)
}

// requestWithSession returns a request carrying the cookie written for s.
func requestWithSession(t *testing.T, store *session.Store, s *session.Session) *http.Request {
	t.Helper()
	rec := httptest.NewRecorder()
	require.NoError(t, store.Save(rec, httptest.NewRequest(http.MethodGet, "/", nil), s))
	req := httptest.NewRequest(http.MethodGet, "/courses", nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}
	return req
}

func okHandler(t *testing.T, want string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, ok := SessionFromContext(r.Context())
		require.True(t, ok)
		if want != "" {
			assert.Equal(t, want, s.AccessToken)
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestAuthMiddlewareNoCookie(t *testing.T) {
	v := &fakeValidator{}
	h := AuthMiddleware(newStore(), v, zerolog.Nop())(okHandler(t, ""))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/courses", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Zero(t, v.calls)
}

func TestAuthMiddlewareValidSession(t *testing.T) {
	store := newStore()
	s, err := session.New(mintToken(t, time.Now().Add(time.Hour)), "r1")
	require.NoError(t, err)

	v := &fakeValidator{}
	h := AuthMiddleware(store, v, zerolog.Nop())(okHandler(t, s.AccessToken))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, requestWithSession(t, store, s))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 1, v.calls)
	assert.Empty(t, rec.Result().Cookies(), "unchanged session is not rewritten")
}

func TestAuthMiddlewareWritesRefreshedTokens(t *testing.T) {
	store := newStore()
	old, err := session.New(mintToken(t, time.Now().Add(-time.Minute)), "r1")
	require.NoError(t, err)
	fresh, err := session.New(mintToken(t, time.Now().Add(time.Hour)), "r2")
	require.NoError(t, err)

	v := &fakeValidator{replace: fresh}
	h := AuthMiddleware(store, v, zerolog.Nop())(okHandler(t, fresh.AccessToken))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, requestWithSession(t, store, old))
	require.Equal(t, http.StatusNoContent, rec.Code)

	next := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rec.Result().Cookies() {
		next.AddCookie(c)
	}
	loaded, err := store.Load(next)
	require.NoError(t, err)
	assert.Equal(t, fresh.AccessToken, loaded.AccessToken)
	assert.Equal(t, "r2", loaded.RefreshToken)
}

func TestAuthMiddlewareInvalidSessionClearsCookie(t *testing.T) {
	store := newStore()
	s, err := session.New(mintToken(t, time.Now().Add(-time.Minute)), "r1")
	require.NoError(t, err)

	v := &fakeValidator{err: session.ErrSessionInvalid}
	h := AuthMiddleware(store, v, zerolog.Nop())(okHandler(t, ""))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, requestWithSession(t, store, s))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Negative(t, cookies[0].MaxAge)
}

func TestAuthMiddlewareBillingUnavailable(t *testing.T) {
	store := newStore()
	s, err := session.New(mintToken(t, time.Now().Add(-time.Minute)), "r1")
	require.NoError(t, err)

	v := &fakeValidator{err: &billing.Error{Op: "refresh_token", Kind: billing.KindUnavailable}}
	h := AuthMiddleware(store, v, zerolog.Nop())(okHandler(t, ""))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, requestWithSession(t, store, s))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Empty(t, rec.Result().Cookies(), "session survives a billing outage")
}

func TestRequireRole(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	h := RequireRole("ROLE_SUPER_ADMIN")(next)

	admin, err := session.New(mintToken(t, time.Now().Add(time.Hour), "ROLE_USER", "ROLE_SUPER_ADMIN"), "")
	require.NoError(t, err)
	user, err := session.New(mintToken(t, time.Now().Add(time.Hour), "ROLE_USER"), "")
	require.NoError(t, err)

	tests := []struct {
		name string
		s    *session.Session
		want int
	}{
		{"admin", admin, http.StatusNoContent},
		{"user", user, http.StatusForbidden},
		{"anonymous", nil, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/courses", nil)
			if tt.s != nil {
				req = req.WithContext(WithSession(req.Context(), tt.s))
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestLoggerMiddlewareSetsRequestID(t *testing.T) {
	h := LoggerMiddleware(zerolog.Nop())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(RequestIDHeader, "abc")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc", rec.Header().Get(RequestIDHeader))
}
