package catalogsync

import (
	"context"
	"errors"
	"sync"

	"studyon/internal/billing"
	"studyon/internal/session"
)

// TokenSource yields an admin access token for billing calls.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	// Invalidate drops the cached session after billing refused its token.
	Invalidate()
}

// SessionManager is implemented by session.Manager.
type SessionManager interface {
	Authenticate(ctx context.Context, creds billing.Credentials) (*session.Session, error)
	EnsureValid(ctx context.Context, s *session.Session) (*session.Session, error)
}

// ServiceAccount keeps one session for the configured billing service account
// and refreshes it like any user session.
type ServiceAccount struct {
	manager SessionManager
	creds   billing.Credentials

	mu      sync.Mutex
	current *session.Session
}

func NewServiceAccount(manager SessionManager, creds billing.Credentials) *ServiceAccount {
	return &ServiceAccount{manager: manager, creds: creds}
}

func (a *ServiceAccount) Token(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.current != nil {
		s, err := a.manager.EnsureValid(ctx, a.current)
		if err == nil {
			a.current = s
			return s.AccessToken, nil
		}
		if !errors.Is(err, session.ErrSessionInvalid) {
			return "", err
		}
		a.current = nil
	}

	s, err := a.manager.Authenticate(ctx, a.creds)
	if err != nil {
		return "", err
	}
	a.current = s
	return s.AccessToken, nil
}

func (a *ServiceAccount) Invalidate() {
	a.mu.Lock()
	a.current = nil
	a.mu.Unlock()
}
