// Package session keeps the provider session (access + refresh token pair)
// in HttpOnly cookies and refreshes it silently when the access token expires.
package session

import (
	"errors"
	"time"

	"github.com/MrSnakeDoc/marks/internal/domain"
)

var (
	// ErrNoSession is returned when the request carries no usable session.
	ErrNoSession = domain.ErrNoSession
	// ErrInvalidToken is returned when the access token cannot be parsed or verified.
	ErrInvalidToken = errors.New("invalid access token")
)

// Session is the credential pair bound to one account.
type Session struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	UserID       string
	Email        string
}

// User returns the account the session is bound to.
func (s *Session) User() domain.User {
	return domain.User{ID: s.UserID, Email: s.Email}
}

// ExpiresWithin reports whether the access token is expired or will be within d.
// A zero ExpiresAt counts as expired.
func (s *Session) ExpiresWithin(now time.Time, d time.Duration) bool {
	if s.ExpiresAt.IsZero() {
		return true
	}
	return !now.Add(d).Before(s.ExpiresAt)
}
