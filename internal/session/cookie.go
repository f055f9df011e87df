package session

import (
	"errors"
	"net/http"
	"strings"
	"time"
)

const (
	AccessCookie   = "sb-access-token"
	RefreshCookie  = "sb-refresh-token"
	VerifierCookie = "marks-code-verifier"

	verifierPath = "/auth"
	verifierTTL  = 10 * time.Minute
)

// CookieOptions defines how session cookies are issued.
type CookieOptions struct {
	Domain   string
	Secure   bool
	SameSite http.SameSite
	MaxAge   time.Duration
}

// normalize applies safe defaults without breaking callers
func (o CookieOptions) normalize() CookieOptions {
	if o.SameSite == 0 {
		o.SameSite = http.SameSiteLaxMode
	}
	if o.MaxAge <= 0 {
		o.MaxAge = 7 * 24 * time.Hour
	}
	return o
}

// CookieStore reads and writes the session cookie set.
type CookieStore struct {
	opts   CookieOptions
	parser *ClaimsParser
}

func NewCookieStore(opts CookieOptions, parser *ClaimsParser) *CookieStore {
	if parser == nil {
		parser = NewClaimsParser("")
	}
	return &CookieStore{opts: opts.normalize(), parser: parser}
}

// Load returns the session carried by r.
//
// ErrNoSession: no refresh cookie. ErrInvalidToken: a refresh cookie exists
// but the access token is missing or unreadable; the returned Session then
// carries only the refresh token so the caller may still refresh it.
func (s *CookieStore) Load(r *http.Request) (*Session, error) {
	refresh := cookieValue(r, RefreshCookie)
	if refresh == "" {
		return nil, ErrNoSession
	}

	access := cookieValue(r, AccessCookie)
	if access == "" {
		return &Session{RefreshToken: refresh}, ErrInvalidToken
	}

	sess, err := s.parser.Parse(access)
	if err != nil {
		return &Session{RefreshToken: refresh}, err
	}
	sess.RefreshToken = refresh
	return sess, nil
}

// Save writes both session cookies. Callers must call it before the response
// status is written.
func (s *CookieStore) Save(w http.ResponseWriter, sess *Session) error {
	if sess == nil || sess.AccessToken == "" || sess.RefreshToken == "" {
		return errors.New("session: refusing to save an incomplete session")
	}
	s.set(w, AccessCookie, sess.AccessToken, "/", s.opts.MaxAge)
	s.set(w, RefreshCookie, sess.RefreshToken, "/", s.opts.MaxAge)
	return nil
}

// Clear expires both session cookies.
func (s *CookieStore) Clear(w http.ResponseWriter) {
	s.set(w, AccessCookie, "", "/", -1)
	s.set(w, RefreshCookie, "", "/", -1)
}

// SetVerifier stores the PKCE code verifier for the callback.
func (s *CookieStore) SetVerifier(w http.ResponseWriter, verifier string) {
	s.set(w, VerifierCookie, verifier, verifierPath, verifierTTL)
}

// Verifier returns the PKCE code verifier, empty when absent.
func (s *CookieStore) Verifier(r *http.Request) string {
	return cookieValue(r, VerifierCookie)
}

// ClearVerifier expires the PKCE cookie.
func (s *CookieStore) ClearVerifier(w http.ResponseWriter) {
	s.set(w, VerifierCookie, "", verifierPath, -1)
}

// Parser exposes the claims parser used by Load.
func (s *CookieStore) Parser() *ClaimsParser { return s.parser }

func (s *CookieStore) set(w http.ResponseWriter, name, value, path string, maxAge time.Duration) {
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		Domain:   s.opts.Domain,
		HttpOnly: true,
		Secure:   s.opts.Secure,
		SameSite: s.opts.SameSite,
	}
	if maxAge < 0 {
		c.MaxAge = -1
	} else {
		c.MaxAge = int(maxAge.Seconds())
	}
	replaceCookie(w.Header(), c)
}

// replaceCookie sets c, dropping any Set-Cookie already queued for the same
// name so one response never carries contradictory values.
func replaceCookie(h http.Header, c *http.Cookie) {
	v := c.String()
	if v == "" {
		return
	}
	prefix := c.Name + "="
	kept := make([]string, 0, len(h["Set-Cookie"])+1)
	for _, line := range h["Set-Cookie"] {
		if !strings.HasPrefix(line, prefix) {
			kept = append(kept, line)
		}
	}
	h["Set-Cookie"] = append(kept, v)
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}
