package session

import (
	"fmt"
	"net/http"

	"github.com/gorilla/sessions"
)

const (
	cookieName      = "studyon_session"
	keyAccessToken  = "access_token"
	keyRefreshToken = "refresh_token"
)

// Store persists the token pair between requests in a signed cookie.
type Store struct {
	cookies *sessions.CookieStore
}

func NewStore(key []byte, maxAgeSec int, secure bool) *Store {
	cookies := sessions.NewCookieStore(key)
	cookies.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   maxAgeSec,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	return &Store{cookies: cookies}
}

// Load returns the session carried by r, or ErrNoSession. Claims are
// decoded from the access token, never read from the cookie.
func (st *Store) Load(r *http.Request) (*Session, error) {
	cookie, err := st.cookies.Get(r, cookieName)
	if err != nil {
		return nil, ErrNoSession
	}
	access, _ := cookie.Values[keyAccessToken].(string)
	refresh, _ := cookie.Values[keyRefreshToken].(string)
	if access == "" {
		return nil, ErrNoSession
	}
	return New(access, refresh)
}

// Save writes the token pair of s to the response.
func (st *Store) Save(w http.ResponseWriter, r *http.Request, s *Session) error {
	cookie, _ := st.cookies.Get(r, cookieName)
	cookie.Values[keyAccessToken] = s.AccessToken
	cookie.Values[keyRefreshToken] = s.RefreshToken
	if err := cookie.Save(r, w); err != nil {
		return fmt.Errorf("saving session cookie: %w", err)
	}
	return nil
}

// Clear expires the session cookie.
func (st *Store) Clear(w http.ResponseWriter, r *http.Request) error {
	cookie, _ := st.cookies.Get(r, cookieName)
	cookie.Values = map[any]any{}
	cookie.Options.MaxAge = -1
	if err := cookie.Save(r, w); err != nil {
		return fmt.Errorf("clearing session cookie: %w", err)
	}
	return nil
}
