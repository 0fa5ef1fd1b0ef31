package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"studyon/internal/billing"
	"studyon/internal/session"
)

// Accounts is the part of billing.Gateway that manages user accounts.
type Accounts interface {
	Register(ctx context.Context, reg billing.Registration) (*billing.Tokens, error)
	CurrentUser(ctx context.Context, token string) (*billing.Profile, error)
}

// Authenticator is implemented by session.Manager.
type Authenticator interface {
	Authenticate(ctx context.Context, creds billing.Credentials) (*session.Session, error)
}

// UserService covers the account operations that billing owns.
type UserService interface {
	Login(ctx context.Context, username, password string) (*session.Session, error)
	// Register creates the billing account and returns its first session.
	Register(ctx context.Context, email, password string) (*session.Session, error)
	Profile(ctx context.Context, s *session.Session) (*billing.Profile, error)
}

type userService struct {
	accounts Accounts
	auth     Authenticator
	logger   zerolog.Logger
}

func NewUserService(accounts Accounts, auth Authenticator, logger zerolog.Logger) UserService {
	return &userService{
		accounts: accounts,
		auth:     auth,
		logger:   logger.With().Str("service", "UserService").Logger(),
	}
}

func (u *userService) Login(ctx context.Context, username, password string) (*session.Session, error) {
	return u.auth.Authenticate(ctx, billing.Credentials{Username: username, Password: password})
}

func (u *userService) Register(ctx context.Context, email, password string) (*session.Session, error) {
	tokens, err := u.accounts.Register(ctx, billing.Registration{Email: email, Password: password})
	if err != nil {
		return nil, fmt.Errorf("registering %s: %w", email, err)
	}
	u.logger.Info().Str("username", email).Msg("User registered")

	if tokens.Token != "" {
		s, err := session.New(tokens.Token, tokens.RefreshToken)
		if err == nil {
			return s, nil
		}
		u.logger.Warn().Err(err).Msg("Registration returned an unreadable token, authenticating instead")
	}
	return u.auth.Authenticate(ctx, billing.Credentials{Username: email, Password: password})
}

func (u *userService) Profile(ctx context.Context, s *session.Session) (*billing.Profile, error) {
	if s == nil {
		return nil, session.ErrSessionInvalid
	}
	profile, err := u.accounts.CurrentUser(ctx, s.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("loading profile: %w", err)
	}
	return profile, nil
}
