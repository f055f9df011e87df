package supabase

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/marks/internal/domain"
	"github.com/MrSnakeDoc/marks/internal/logger"
	"github.com/MrSnakeDoc/marks/internal/session"
	"github.com/MrSnakeDoc/marks/internal/supabase/supabasetest"
)

func newTestClient(t *testing.T) (*Client, *supabasetest.Server) {
	t.Helper()
	srv := supabasetest.New(t)
	c, err := New(Options{URL: srv.URL, AnonKey: supabasetest.AnonKey},
		session.NewClaimsParser(supabasetest.JWTSecret), logger.Nop())
	require.NoError(t, err)
	return c, srv
}

func TestNewRequiresURLAndKey(t *testing.T) {
	_, err := New(Options{URL: "http://localhost:54321"}, nil, logger.Nop())
	assert.Error(t, err)
}

func TestAuthorizeURL(t *testing.T) {
	c, _ := newTestClient(t)

	raw, err := c.AuthorizeURL("", "https://marks.example.com/auth/callback?next=%2F", "challenge-1")
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "/auth/v1/authorize", u.Path)
	q := u.Query()
	assert.Equal(t, "google", q.Get("provider"))
	assert.Equal(t, "https://marks.example.com/auth/callback?next=%2F", q.Get("redirect_to"))
	assert.Equal(t, "challenge-1", q.Get("code_challenge"))
	assert.Equal(t, "s256", q.Get("code_challenge_method"))

	_, err = c.AuthorizeURL("github", "", "challenge-1")
	assert.Error(t, err)
}

func TestExchangeCode(t *testing.T) {
	c, srv := newTestClient(t)
	userID := srv.AddUser("ada@example.com")
	code := srv.IssueCode(userID, "verifier-1")

	sess, err := c.ExchangeCode(context.Background(), code, "verifier-1")
	require.NoError(t, err)
	assert.Equal(t, userID, sess.UserID)
	assert.Equal(t, "ada@example.com", sess.Email)
	assert.NotEmpty(t, sess.AccessToken)
	assert.NotEmpty(t, sess.RefreshToken)
	assert.True(t, sess.ExpiresAt.After(time.Now()))

	t.Run("codes are single use", func(t *testing.T) {
		_, err := c.ExchangeCode(context.Background(), code, "verifier-1")
		assert.Error(t, err)
	})

	t.Run("wrong verifier", func(t *testing.T) {
		other := srv.IssueCode(userID, "verifier-2")
		_, err := c.ExchangeCode(context.Background(), other, "verifier-1")
		assert.Error(t, err)
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := c.ExchangeCode(ctx, srv.IssueCode(userID, "v"), "v")
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestRefreshRotatesTokens(t *testing.T) {
	c, srv := newTestClient(t)
	userID := srv.AddUser("ada@example.com")
	_, refresh := srv.Login(userID)

	sess, err := c.Refresh(context.Background(), refresh)
	require.NoError(t, err)
	assert.Equal(t, userID, sess.UserID)
	assert.NotEqual(t, refresh, sess.RefreshToken)

	_, err = c.Refresh(context.Background(), refresh)
	assert.Error(t, err, "old refresh token must be rejected after rotation")
}

func TestSignOutRevokesRefreshTokens(t *testing.T) {
	c, srv := newTestClient(t)
	userID := srv.AddUser("ada@example.com")
	access, refresh := srv.Login(userID)

	require.NoError(t, c.SignOut(context.Background(), access))
	_, err := c.Refresh(context.Background(), refresh)
	assert.Error(t, err)

	assert.ErrorIs(t, c.SignOut(context.Background(), ""), session.ErrNoSession)
}

func TestListBookmarks(t *testing.T) {
	c, srv := newTestClient(t)
	ada := srv.AddUser("ada@example.com")
	bob := srv.AddUser("bob@example.com")
	first := srv.Seed(ada, "https://a.example", "first")
	srv.Seed(bob, "https://b.example", "not yours")
	second := srv.Seed(ada, "https://c.example", "second")

	access, _ := srv.Login(ada)
	rows, err := c.ListBookmarks(context.Background(), access, ada)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, second.ID, rows[0].ID, "newest first")
	assert.Equal(t, first.ID, rows[1].ID)
	assert.Equal(t, ada, rows[0].UserID)

	t.Run("empty list is not nil", func(t *testing.T) {
		carol := srv.AddUser("carol@example.com")
		token, _ := srv.Login(carol)
		rows, err := c.ListBookmarks(context.Background(), token, carol)
		require.NoError(t, err)
		assert.NotNil(t, rows)
		assert.Empty(t, rows)
	})

	t.Run("no token", func(t *testing.T) {
		_, err := c.ListBookmarks(context.Background(), "", ada)
		assert.ErrorIs(t, err, session.ErrNoSession)
	})

	t.Run("backend failure", func(t *testing.T) {
		srv.FailLists(true)
		defer srv.FailLists(false)
		_, err := c.ListBookmarks(context.Background(), access, ada)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database is unavailable")
	})
}

func TestInsertBookmark(t *testing.T) {
	c, srv := newTestClient(t)
	ada := srv.AddUser("ada@example.com")
	bob := srv.AddUser("bob@example.com")
	access, _ := srv.Login(ada)

	row, err := c.InsertBookmark(context.Background(), access,
		domain.BookmarkInput{URL: "https://go.dev", Title: "Go", UserID: ada})
	require.NoError(t, err)
	assert.NotEmpty(t, row.ID)
	assert.Equal(t, "https://go.dev", row.URL)
	assert.Equal(t, ada, row.UserID)
	assert.False(t, row.CreatedAt.IsZero())

	_, err = c.InsertBookmark(context.Background(), access,
		domain.BookmarkInput{URL: "https://evil.example", Title: "x", UserID: bob})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row-level security")
	assert.Len(t, srv.Rows(), 1)
}

func TestDeleteBookmark(t *testing.T) {
	c, srv := newTestClient(t)
	ada := srv.AddUser("ada@example.com")
	bob := srv.AddUser("bob@example.com")
	mine := srv.Seed(ada, "https://a.example", "mine")
	theirs := srv.Seed(bob, "https://b.example", "theirs")
	access, _ := srv.Login(ada)

	require.NoError(t, c.DeleteBookmark(context.Background(), access, mine.ID))

	err := c.DeleteBookmark(context.Background(), access, theirs.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	err = c.DeleteBookmark(context.Background(), access, mine.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound, "already gone")

	rows := srv.Rows()
	require.Len(t, rows, 1)
	assert.Equal(t, theirs.ID, rows[0].ID)
}

func TestRealtimeURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://abc.supabase.co", "wss://abc.supabase.co/realtime/v1/websocket"},
		{"http://127.0.0.1:54321", "ws://127.0.0.1:54321/realtime/v1/websocket"},
	}
	for _, tt := range tests {
		c, err := New(Options{URL: tt.in, AnonKey: "k"}, nil, logger.Nop())
		require.NoError(t, err)
		assert.Equal(t, tt.want, c.RealtimeURL())
	}
}

func TestPingWithoutServiceKey(t *testing.T) {
	c, srv := newTestClient(t)
	require.NoError(t, c.Ping(context.Background()))
	assert.Zero(t, srv.Hits("GET /rest/v1/bookmarks"))
}

func TestBackendCallsAreBounded(t *testing.T) {
	release := make(chan struct{})
	hung := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(hung.Close)
	t.Cleanup(func() { close(release) })

	c, err := New(Options{URL: hung.URL, AnonKey: supabasetest.AnonKey, Timeout: 50 * time.Millisecond}, nil, logger.Nop())
	require.NoError(t, err)

	start := time.Now()
	_, err = c.ListBookmarks(context.Background(), "token", "user-1")
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)

	start = time.Now()
	_, err = c.Refresh(context.Background(), "refresh-1")
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}
