package session

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/MrSnakeDoc/marks/internal/logger"
)

// DefaultLeeway refreshes tokens slightly before they expire.
const DefaultLeeway = 30 * time.Second

// Refresher trades a refresh token for a new session.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*Session, error)
}

// Revocations records access tokens that were signed out before expiry.
type Revocations interface {
	RevokeToken(ctx context.Context, accessToken string, ttl time.Duration) error
	IsRevoked(ctx context.Context, accessToken string) (bool, error)
}

// Manager resolves the session of a request, refreshing it when needed.
type Manager struct {
	store     *CookieStore
	refresher Refresher
	revoked   Revocations
	log       logger.Logger
	leeway    time.Duration
	now       func() time.Time
}

type Option func(*Manager)

func WithRevocations(r Revocations) Option  { return func(m *Manager) { m.revoked = r } }
func WithClock(now func() time.Time) Option { return func(m *Manager) { m.now = now } }
func WithLeeway(d time.Duration) Option     { return func(m *Manager) { m.leeway = d } }

func NewManager(store *CookieStore, refresher Refresher, log logger.Logger, opts ...Option) *Manager {
	m := &Manager{
		store:     store,
		refresher: refresher,
		log:       log,
		leeway:    DefaultLeeway,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Store returns the underlying cookie store.
func (m *Manager) Store() *CookieStore { return m.store }

// Resolve returns the session of r. Expired or unreadable access tokens are
// refreshed once and the new cookies are written to w; a failed refresh clears
// the cookies and yields ErrNoSession.
func (m *Manager) Resolve(w http.ResponseWriter, r *http.Request) (*Session, error) {
	ctx := r.Context()

	sess, err := m.store.Load(r)
	switch {
	case errors.Is(err, ErrNoSession):
		return nil, ErrNoSession
	case errors.Is(err, ErrInvalidToken):
		m.log.Debug("access token unusable, refreshing", logger.Error(err))
		return m.refresh(ctx, w, sess.RefreshToken)
	case err != nil:
		return nil, err
	}

	if sess.ExpiresWithin(m.now(), m.leeway) {
		return m.refresh(ctx, w, sess.RefreshToken)
	}

	if m.isRevoked(ctx, sess) {
		m.store.Clear(w)
		return nil, ErrNoSession
	}

	return sess, nil
}

// isRevoked reports whether sess was signed out elsewhere. Lookup failures
// accept the session.
func (m *Manager) isRevoked(ctx context.Context, sess *Session) bool {
	if m.revoked == nil {
		return false
	}
	revoked, err := m.revoked.IsRevoked(ctx, sess.AccessToken)
	if err != nil {
		m.log.Warn("revocation check failed, accepting session",
			logger.String("user_id", sess.UserID),
			logger.Error(err))
		return false
	}
	return revoked
}

// Refresh forces a refresh of sess, used by long-lived streams whose cookies
// can no longer be rewritten. w may be nil.
func (m *Manager) Refresh(ctx context.Context, w http.ResponseWriter, sess *Session) (*Session, error) {
	if sess == nil || sess.RefreshToken == "" {
		return nil, ErrNoSession
	}
	return m.refresh(ctx, w, sess.RefreshToken)
}

// Expiring reports whether sess should be refreshed now.
func (m *Manager) Expiring(sess *Session) bool {
	return sess.ExpiresWithin(m.now(), m.leeway)
}

// End forgets sess: cookies are cleared when w is set, and the access token is
// revoked until it expires so copies of it stop working here too.
func (m *Manager) End(ctx context.Context, w http.ResponseWriter, sess *Session) {
	if w != nil {
		m.store.Clear(w)
	}
	if m.revoked == nil || sess == nil || sess.AccessToken == "" {
		return
	}
	ttl := m.store.Parser().Remaining(sess.AccessToken, m.now())
	if err := m.revoked.RevokeToken(ctx, sess.AccessToken, ttl); err != nil {
		m.log.Warn("failed to revoke access token",
			logger.String("user_id", sess.UserID),
			logger.Error(err))
	}
}

func (m *Manager) refresh(ctx context.Context, w http.ResponseWriter, refreshToken string) (*Session, error) {
	fresh, err := m.refresher.Refresh(ctx, refreshToken)
	if err != nil {
		m.log.Warn("session refresh failed", logger.Error(err))
		if w != nil {
			m.store.Clear(w)
		}
		return nil, ErrNoSession
	}
	if w != nil {
		if err := m.store.Save(w, fresh); err != nil {
			return nil, err
		}
	}
	m.log.Debug("session refreshed", logger.String("user_id", fresh.UserID))
	return fresh, nil
}
