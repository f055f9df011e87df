package session

import (
	"context"
	"net/http"
	"sync"
)

// RequestSource resolves the session of one HTTP request, at most once.
type RequestSource struct {
	m *Manager
	w http.ResponseWriter
	r *http.Request

	once sync.Once
	sess *Session
	err  error
}

func (m *Manager) ForRequest(w http.ResponseWriter, r *http.Request) *RequestSource {
	return &RequestSource{m: m, w: w, r: r}
}

// Current returns the request's session, refreshing it if needed. Refreshed
// cookies are written to the response.
func (s *RequestSource) Current(context.Context) (*Session, error) {
	s.once.Do(func() {
		s.sess, s.err = s.m.Resolve(s.w, s.r)
	})
	return s.sess, s.err
}

// End clears the cookies and revokes the token.
func (s *RequestSource) End(ctx context.Context, sess *Session) {
	s.m.End(ctx, s.w, sess)
}

// StreamSource keeps a session alive for a connection that outlives its
// access token. Its cookies can no longer be rewritten, so refreshed tokens
// only live in memory.
type StreamSource struct {
	m *Manager

	mu   sync.Mutex
	sess *Session
}

func (m *Manager) ForStream(sess *Session) *StreamSource {
	return &StreamSource{m: m, sess: sess}
}

// Current returns the session, refreshing it shortly before it expires. A
// failed refresh or a revocation ends the stream's session for good.
func (s *StreamSource) Current(ctx context.Context) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sess == nil {
		return nil, ErrNoSession
	}
	if !s.m.Expiring(s.sess) {
		if s.m.isRevoked(ctx, s.sess) {
			s.sess = nil
			return nil, ErrNoSession
		}
		return s.sess, nil
	}

	fresh, err := s.m.Refresh(ctx, nil, s.sess)
	if err != nil {
		s.sess = nil
		return nil, err
	}
	s.sess = fresh
	return fresh, nil
}

// End revokes the token and forgets the session.
func (s *StreamSource) End(ctx context.Context, sess *Session) {
	s.mu.Lock()
	s.sess = nil
	s.mu.Unlock()
	s.m.End(ctx, nil, sess)
}
