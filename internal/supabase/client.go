// Package supabase adapts the Supabase project (GoTrue auth + PostgREST data)
// to the session and bookmark types of this service.
package supabase

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/supabase-community/postgrest-go"
	supa "github.com/supabase-community/supabase-go"

	"github.com/MrSnakeDoc/marks/internal/logger"
	"github.com/MrSnakeDoc/marks/internal/session"
)

const (
	authPath         = "/auth/v1"
	restPath         = "/rest/v1"
	realtimePath     = "/realtime/v1/websocket"
	bookmarksTable   = "bookmarks"
	bookmarksColumns = "id,url,title,user_id,created_at"

	defaultTimeout = 10 * time.Second
)

// Options configures the adapter.
type Options struct {
	URL            string // project URL, no trailing slash
	AnonKey        string
	ServiceRoleKey string        // optional
	Timeout        time.Duration // per backend call, defaults to 10s
}

// Client talks to one Supabase project. Data calls build a client per access
// token so every request is evaluated by the row-level policy as that user.
type Client struct {
	url       string
	anonKey   string
	base      *supa.Client
	service   *postgrest.Client
	transport http.RoundTripper
	parser    *session.ClaimsParser
	log       logger.Logger
}

func New(opts Options, parser *session.ClaimsParser, log logger.Logger) (*Client, error) {
	base, err := supa.NewClient(opts.URL, opts.AnonKey, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create supabase client: %w", err)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	transport := newBoundedTransport(timeout)
	base.Auth = base.Auth.WithClient(http.Client{Timeout: timeout, Transport: transport})

	c := &Client{
		url:       opts.URL,
		anonKey:   opts.AnonKey,
		base:      base,
		transport: transport,
		parser:    parser,
		log:       log,
	}
	if c.parser == nil {
		c.parser = session.NewClaimsParser("")
	}

	if opts.ServiceRoleKey != "" {
		svc, err := c.rest(opts.ServiceRoleKey, opts.ServiceRoleKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create supabase service client: %w", err)
		}
		c.service = svc
	}

	return c, nil
}

// URL returns the project URL.
func (c *Client) URL() string { return c.url }

// AnonKey returns the public API key.
func (c *Client) AnonKey() string { return c.anonKey }

func (c *Client) forUser(accessToken string) (*postgrest.Client, error) {
	if accessToken == "" {
		return nil, session.ErrNoSession
	}
	cl, err := c.rest(c.anonKey, accessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create supabase client: %w", err)
	}
	return cl, nil
}

// rest builds a PostgREST client acting with bearer and sending every
// request through the bounded transport.
func (c *Client) rest(apiKey, bearer string) (*postgrest.Client, error) {
	cl := postgrest.NewClient(c.url+restPath, "public", map[string]string{
		"apikey":        apiKey,
		"Authorization": "Bearer " + bearer,
	})
	if cl.ClientError != nil {
		return nil, cl.ClientError
	}
	cl.Transport.Parent = c.transport
	return cl, nil
}

// Ping checks that PostgREST answers for the bookmarks table. It needs the
// service role key; without it the probe is skipped.
func (c *Client) Ping(ctx context.Context) error {
	if c.service == nil {
		return nil
	}
	_, err := call(ctx, func() ([]byte, error) {
		body, _, err := c.service.From(bookmarksTable).
			Select("id", "", false).
			Limit(1, "").
			Execute()
		return body, err
	})
	if err != nil {
		return fmt.Errorf("supabase ping failed: %w", err)
	}
	return nil
}

// call runs a blocking client call and stops waiting when ctx ends. The
// underlying libraries take no context, so the call itself finishes in the
// background, bounded by the transport timeout.
func call[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn()
		ch <- result{v: v, err: err}
	}()

	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
