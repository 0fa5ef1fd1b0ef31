package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"studyon/internal/billing"
)

// TokenIssuer is the part of billing.Gateway the manager needs.
type TokenIssuer interface {
	Authenticate(ctx context.Context, creds billing.Credentials) (*billing.Tokens, error)
	RefreshToken(ctx context.Context, refreshToken string) (*billing.Tokens, error)
}

// Manager authenticates users and refreshes expired access tokens.
type Manager struct {
	issuer  TokenIssuer
	metrics *Metrics
	logger  zerolog.Logger
	now     func() time.Time

	// Concurrent refreshes of the same refresh token share one billing call.
	refreshes singleflight.Group
}

func NewManager(issuer TokenIssuer, metrics *Metrics, logger zerolog.Logger) *Manager {
	return &Manager{
		issuer:  issuer,
		metrics: metrics,
		logger:  logger.With().Str("service", "SessionManager").Logger(),
		now:     time.Now,
	}
}

// Authenticate exchanges credentials for a new valid session. Bad
// credentials yield an error matching billing.ErrUnauthorized.
func (m *Manager) Authenticate(ctx context.Context, creds billing.Credentials) (*Session, error) {
	tokens, err := m.issuer.Authenticate(ctx, creds)
	if err != nil {
		return nil, fmt.Errorf("authenticating: %w", err)
	}
	s, err := New(tokens.Token, tokens.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("decoding issued token: %w", err)
	}
	m.logger.Info().Str("username", s.Claims.Username).Msg("User authenticated")
	return s, nil
}

// EnsureValid returns s unchanged while its access token is unexpired,
// without any network call. An expired token is refreshed once; when
// billing refuses the refresh token the session becomes invalid and
// ErrSessionInvalid is returned. Transport failures are returned as is and
// leave s untouched.
func (m *Manager) EnsureValid(ctx context.Context, s *Session) (*Session, error) {
	if s == nil || s.State == StateInvalid {
		return nil, ErrSessionInvalid
	}

	claims, err := DecodeClaims(s.AccessToken)
	if err != nil {
		s.State = StateInvalid
		return nil, fmt.Errorf("%w: %w", ErrSessionInvalid, err)
	}
	s.Claims = claims

	now := m.now()
	if !s.ExpiredAt(now) {
		s.State = StateValid
		return s, nil
	}

	if s.RefreshToken == "" {
		s.State = StateInvalid
		return nil, fmt.Errorf("%w: no refresh token", ErrSessionInvalid)
	}

	tokens, err := m.refresh(ctx, s.RefreshToken)
	if err != nil {
		if errors.Is(err, billing.ErrUnauthorized) {
			s.State = StateInvalid
			m.metrics.refreshed("invalid")
			m.logger.Info().Str("username", s.Claims.Username).Msg("Refresh token rejected, session invalidated")
			return nil, fmt.Errorf("%w: %w", ErrSessionInvalid, err)
		}
		m.metrics.refreshed("error")
		return nil, fmt.Errorf("refreshing token: %w", err)
	}

	fresh, err := DecodeClaims(tokens.Token)
	if err != nil {
		m.metrics.refreshed("error")
		return nil, fmt.Errorf("decoding refreshed token: %w", err)
	}
	if !s.apply(tokens.Token, tokens.RefreshToken, fresh) {
		m.logger.Warn().Str("username", s.Claims.Username).Msg("Discarded refreshed token not newer than the held one")
	}
	if s.ExpiredAt(now) {
		s.State = StateInvalid
		m.metrics.refreshed("invalid")
		return nil, fmt.Errorf("%w: refreshed token already expired", ErrSessionInvalid)
	}

	m.metrics.refreshed("ok")
	m.logger.Debug().Str("username", s.Claims.Username).Time("exp", s.Claims.ExpiresAt).Msg("Access token refreshed")
	return s, nil
}

func (m *Manager) refresh(ctx context.Context, refreshToken string) (*billing.Tokens, error) {
	// The shared call outlives the caller that started it.
	ch := m.refreshes.DoChan(refreshToken, func() (any, error) {
		return m.issuer.RefreshToken(context.WithoutCancel(ctx), refreshToken)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Shared {
			m.metrics.refreshed("coalesced")
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*billing.Tokens), nil
	}
}
