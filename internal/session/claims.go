package session

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

type tokenClaims struct {
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
	jwt.RegisteredClaims
}

// DecodeClaims reads username, roles and exp from the token payload. The
// signature is not verified: the billing service issued the token and stays
// the trust root for every call made with it.
func DecodeClaims(token string) (Claims, error) {
	if token == "" {
		return Claims{}, fmt.Errorf("%w: empty token", ErrMalformedToken)
	}

	var tc tokenClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &tc); err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	if tc.ExpiresAt == nil {
		return Claims{}, fmt.Errorf("%w: missing exp", ErrMalformedToken)
	}

	username := tc.Username
	if username == "" {
		username = tc.Subject
	}
	return Claims{
		Username:  username,
		Roles:     tc.Roles,
		ExpiresAt: tc.ExpiresAt.Time,
	}, nil
}
