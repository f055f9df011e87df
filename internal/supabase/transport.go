package supabase

import (
	"context"
	"io"
	"net/http"
	"time"
)

// boundedTransport puts a deadline on every request. The client libraries
// build requests without a context, so this is the only place a hung
// backend can be cut off. The deadline stays armed until the body is closed.
type boundedTransport struct {
	base    http.RoundTripper
	timeout time.Duration
}

func newBoundedTransport(timeout time.Duration) *boundedTransport {
	base := http.DefaultTransport.(*http.Transport).Clone()
	base.ResponseHeaderTimeout = timeout
	return &boundedTransport{base: base, timeout: timeout}
}

func (t *boundedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx, cancel := context.WithTimeout(req.Context(), t.timeout)
	resp, err := t.base.RoundTrip(req.WithContext(ctx))
	if err != nil {
		cancel()
		return nil, err
	}
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
