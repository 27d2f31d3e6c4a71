package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/securecookie"
)

// SessionCookieName carries the signed wizard session id.
const SessionCookieName = "wizard_session"

// SessionHeader is accepted in place of the cookie by non-browser clients.
// Its value must be a signed token produced by SessionCookies.Encode.
const SessionHeader = "X-Wizard-Session"

// SessionCookies signs and optionally encrypts the wizard session id.
type SessionCookies struct {
	sc     *securecookie.SecureCookie
	secure bool
	maxAge time.Duration
}

// NewSessionCookies creates the codec. An empty hashKey generates an
// ephemeral key, so cookies do not survive a restart. blockKey may be empty
// to disable encryption.
func NewSessionCookies(hashKey, blockKey []byte, secure bool, maxAge time.Duration) *SessionCookies {
	if len(hashKey) == 0 {
		hashKey = securecookie.GenerateRandomKey(32)
	}
	if len(blockKey) == 0 {
		blockKey = nil
	}
	sc := securecookie.New(hashKey, blockKey)
	if maxAge > 0 {
		sc.MaxAge(int(maxAge.Seconds()))
	}
	return &SessionCookies{sc: sc, secure: secure, maxAge: maxAge}
}

// Encode returns the signed token for sessionID.
func (s *SessionCookies) Encode(sessionID string) (string, error) {
	return s.sc.Encode(SessionCookieName, map[string]string{"sid": sessionID})
}

// Decode verifies a token and returns the session id.
func (s *SessionCookies) Decode(token string) (string, bool) {
	value := map[string]string{}
	if err := s.sc.Decode(SessionCookieName, token, &value); err != nil {
		return "", false
	}
	sid := strings.TrimSpace(value["sid"])
	return sid, sid != ""
}

// Set writes the session cookie and returns the token it carries.
func (s *SessionCookies) Set(w http.ResponseWriter, sessionID string) (string, error) {
	token, err := s.Encode(sessionID)
	if err != nil {
		return "", err
	}
	cookie := &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	}
	if s.maxAge > 0 {
		cookie.MaxAge = int(s.maxAge.Seconds())
	}
	http.SetCookie(w, cookie)
	return token, nil
}

// Clear expires the session cookie.
func (s *SessionCookies) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name: SessionCookieName, Value: "", Path: "/", MaxAge: -1,
		HttpOnly: true, Secure: s.secure, SameSite: http.SameSiteLaxMode,
	})
}

// SessionID reads the session id from the cookie or the session header.
func (s *SessionCookies) SessionID(r *http.Request) (string, bool) {
	if c, err := r.Cookie(SessionCookieName); err == nil {
		if sid, ok := s.Decode(c.Value); ok {
			return sid, true
		}
	}
	if token := strings.TrimSpace(r.Header.Get(SessionHeader)); token != "" {
		return s.Decode(token)
	}
	return "", false
}

type sessionIDKey struct{}

// WithSessionID stores a session id in ctx.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey{}, sessionID)
}

// SessionIDFromContext returns the session id stored by RequireSession.
func SessionIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(sessionIDKey{}).(string)
	return id
}

// RequireSession rejects requests without a valid session with 401.
func RequireSession(cookies *SessionCookies) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sid, ok := cookies.SessionID(r)
			if !ok {
				writeJSONError(w, http.StatusUnauthorized, "Your booking session has expired. Please start again.")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithSessionID(r.Context(), sid)))
		})
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
