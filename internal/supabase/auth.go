package supabase

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/supabase-community/gotrue-go/types"

	"github.com/MrSnakeDoc/marks/internal/session"
)

const (
	grantPKCE    = "pkce"
	grantRefresh = "refresh_token"
)

// AuthorizeURL builds the provider redirect for a PKCE sign-in. The browser
// comes back to redirectTo with ?code=... once the provider is done.
func (c *Client) AuthorizeURL(provider, redirectTo, codeChallenge string) (string, error) {
	if provider == "" {
		provider = string(types.ProviderGoogle)
	}
	if redirectTo == "" || codeChallenge == "" {
		return "", fmt.Errorf("authorize: redirect target and code challenge are required")
	}

	u, err := url.Parse(c.url + authPath + "/authorize")
	if err != nil {
		return "", fmt.Errorf("authorize: %w", err)
	}
	q := url.Values{}
	q.Set("provider", provider)
	q.Set("redirect_to", redirectTo)
	q.Set("code_challenge", codeChallenge)
	q.Set("code_challenge_method", "s256")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ExchangeCode trades a one-time authorization code for a session.
// Codes are single use: a replayed code fails.
func (c *Client) ExchangeCode(ctx context.Context, code, verifier string) (*session.Session, error) {
	resp, err := call(ctx, func() (*types.TokenResponse, error) {
		return c.base.Auth.Token(types.TokenRequest{
			GrantType:    grantPKCE,
			Code:         code,
			CodeVerifier: verifier,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("code exchange failed: %w", err)
	}
	return c.toSession(resp)
}

// Refresh implements session.Refresher.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*session.Session, error) {
	resp, err := call(ctx, func() (*types.TokenResponse, error) {
		return c.base.Auth.Token(types.TokenRequest{
			GrantType:    grantRefresh,
			RefreshToken: refreshToken,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("token refresh failed: %w", err)
	}
	return c.toSession(resp)
}

// SignOut revokes the refresh tokens of the session on the provider side.
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	if accessToken == "" {
		return session.ErrNoSession
	}
	_, err := call(ctx, func() (struct{}, error) {
		return struct{}{}, c.base.Auth.WithToken(accessToken).Logout()
	})
	if err != nil {
		return fmt.Errorf("sign out failed: %w", err)
	}
	return nil
}

func (c *Client) toSession(resp *types.TokenResponse) (*session.Session, error) {
	if resp == nil || resp.AccessToken == "" || resp.RefreshToken == "" {
		return nil, fmt.Errorf("provider returned an incomplete session")
	}

	sess := &session.Session{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		Email:        resp.User.Email,
	}
	if resp.User.ID != uuid.Nil {
		sess.UserID = resp.User.ID.String()
	}

	switch {
	case resp.ExpiresAt > 0:
		sess.ExpiresAt = time.Unix(resp.ExpiresAt, 0)
	case resp.ExpiresIn > 0:
		sess.ExpiresAt = time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	}

	// Older GoTrue versions omit the user or the expiry; the token has both.
	if sess.UserID == "" || sess.ExpiresAt.IsZero() {
		claims, err := c.parser.Parse(resp.AccessToken)
		if err != nil {
			return nil, fmt.Errorf("provider returned an unreadable access token: %w", err)
		}
		if sess.UserID == "" {
			sess.UserID = claims.UserID
		}
		if sess.Email == "" {
			sess.Email = claims.Email
		}
		if sess.ExpiresAt.IsZero() {
			sess.ExpiresAt = claims.ExpiresAt
		}
	}

	return sess, nil
}

// RealtimeURL returns the websocket endpoint of the project's Realtime server.
func (c *Client) RealtimeURL() string {
	u := c.url
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + realtimePath
}
