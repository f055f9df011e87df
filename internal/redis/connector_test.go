package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/marks/internal/logger"
)

func testOptions(addr string) ConnectOptions {
	return ConnectOptions{
		Addr:           addr,
		DialTimeout:    100 * time.Millisecond,
		ReadTimeout:    100 * time.Millisecond,
		WriteTimeout:   100 * time.Millisecond,
		PoolSize:       2,
		ConnectTimeout: 300 * time.Millisecond,
		RetryInterval:  20 * time.Millisecond,
		MaxWait:        50 * time.Millisecond,
		PingTimeout:    100 * time.Millisecond,
		WarnThreshold:  1,
	}
}

func TestNewConnects(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := New(context.Background(), testOptions(mr.Addr()), logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	assert.NoError(t, Healthy(context.Background(), client, time.Second))
}

func TestNewGivesUpAfterTimeout(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	start := time.Now()
	client, err := New(context.Background(), testOptions(addr), logger.Nop())

	require.Error(t, err)
	assert.Nil(t, client)
	assert.Contains(t, err.Error(), "redis unavailable at "+addr)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestNewHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	opts := testOptions("127.0.0.1:1")
	opts.ConnectTimeout = time.Minute

	_, err := New(ctx, opts, logger.Nop())
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := testOptions("localhost:6379")

	tests := []struct {
		name   string
		mutate func(*ConnectOptions)
	}{
		{name: "empty addr", mutate: func(o *ConnectOptions) { o.Addr = "" }},
		{name: "connect timeout", mutate: func(o *ConnectOptions) { o.ConnectTimeout = 0 }},
		{name: "retry interval", mutate: func(o *ConnectOptions) { o.RetryInterval = -1 }},
		{name: "max wait", mutate: func(o *ConnectOptions) { o.MaxWait = 0 }},
		{name: "ping timeout", mutate: func(o *ConnectOptions) { o.PingTimeout = 0 }},
		{name: "warn threshold", mutate: func(o *ConnectOptions) { o.WarnThreshold = -1 }},
	}

	require.NoError(t, base.Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := base
			tt.mutate(&opts)
			assert.Error(t, opts.Validate())
		})
	}
}

func TestHealthyNilClient(t *testing.T) {
	assert.Error(t, Healthy(context.Background(), nil, time.Second))
}
