// Package session owns the billing token pair of an authenticated user and
// keeps it usable across requests.
package session

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"studyon/internal/billing"
)

var (
	// ErrSessionInvalid means the user must authenticate again. It matches
	// billing.ErrUnauthorized as well.
	ErrSessionInvalid = fmt.Errorf("session invalid: %w", billing.ErrUnauthorized)
	// ErrMalformedToken is returned when an access token cannot be decoded.
	ErrMalformedToken = errors.New("malformed access token")
	// ErrNoSession is returned by the store when the request carries no session.
	ErrNoSession = errors.New("no session")
)

// State of a Session.
type State int

const (
	StateValid State = iota
	StateExpired
	StateInvalid
)

func (s State) String() string {
	switch s {
	case StateValid:
		return "valid"
	case StateExpired:
		return "expired"
	case StateInvalid:
		return "invalid"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Claims are the access token fields the application relies on.
type Claims struct {
	Username  string
	Roles     []string
	ExpiresAt time.Time
}

// HasRole reports whether the claims grant role.
func (c Claims) HasRole(role string) bool {
	return role != "" && slices.Contains(c.Roles, role)
}

// Session is an explicit per-principal value passed into every core call.
// Only Manager mutates it.
type Session struct {
	AccessToken  string
	RefreshToken string
	Claims       Claims
	State        State
}

// New builds a session from a token pair, decoding the access token claims.
func New(accessToken, refreshToken string) (*Session, error) {
	claims, err := DecodeClaims(accessToken)
	if err != nil {
		return nil, err
	}
	return &Session{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		Claims:       claims,
		State:        StateValid,
	}, nil
}

// ExpiredAt reports whether the access token is expired at now.
func (s *Session) ExpiredAt(now time.Time) bool {
	return !s.Claims.ExpiresAt.After(now)
}

// IsAdmin reports whether the session holds role.
func (s *Session) IsAdmin(role string) bool {
	return s != nil && s.Claims.HasRole(role)
}

// apply replaces the token pair when claims expire later than the held ones.
func (s *Session) apply(accessToken, refreshToken string, claims Claims) bool {
	if !claims.ExpiresAt.After(s.Claims.ExpiresAt) {
		return false
	}
	s.AccessToken = accessToken
	if refreshToken != "" {
		s.RefreshToken = refreshToken
	}
	s.Claims = claims
	s.State = StateValid
	return true
}
