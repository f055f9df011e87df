package redis

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/marks/internal/domain"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewStore(client), mr
}

func TestKeysHideSecrets(t *testing.T) {
	assert.True(t, strings.HasPrefix(CodeKey("abc"), KeyPrefixCode))
	assert.NotContains(t, CodeKey("abc"), "abc")
	assert.NotContains(t, RevokedKey("eyJhbGciOi.token"), "eyJhbGciOi")
	assert.Equal(t, CodeKey("abc"), CodeKey("abc"))
	assert.Equal(t, "marks:changes:user-1", ChangesChannel("user-1"))
}

func TestClaimCode(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	ok, err := s.ClaimCode(ctx, "code-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.ClaimCode(ctx, "code-1")
	require.NoError(t, err)
	assert.False(t, ok, "replayed code must not be claimable")

	ok, err = s.ClaimCode(ctx, "code-2")
	require.NoError(t, err)
	assert.True(t, ok)

	mr.FastForward(DefaultCodeTTL + time.Second)
	ok, err = s.ClaimCode(ctx, "code-1")
	require.NoError(t, err)
	assert.True(t, ok, "claims expire")
}

func TestRevokeToken(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	revoked, err := s.IsRevoked(ctx, "token-1")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, s.RevokeToken(ctx, "token-1", time.Minute))
	revoked, err = s.IsRevoked(ctx, "token-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	mr.FastForward(2 * time.Minute)
	revoked, err = s.IsRevoked(ctx, "token-1")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, s.RevokeToken(ctx, "token-2", 0))
	assert.Equal(t, DefaultRevocationTTL, mr.TTL(RevokedKey("token-2")))
}

func TestIsRevokedReportsRedisErrors(t *testing.T) {
	s, mr := newTestStore(t)
	mr.Close()

	_, err := s.IsRevoked(context.Background(), "token-1")
	assert.Error(t, err)
}

func TestPublishSubscribe(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	got := make(chan domain.ChangeEvent, 4)
	sub, err := s.Subscribe(ctx, "user-1", "", func(ev domain.ChangeEvent) { got <- ev })
	require.NoError(t, err)

	require.NoError(t, s.Publish(ctx, domain.ChangeEvent{Type: domain.ChangeInsert, Table: "bookmarks", UserID: "user-2"}))
	require.NoError(t, s.Publish(ctx, domain.ChangeEvent{Type: domain.ChangeInsert, Table: "bookmarks", UserID: "user-1"}))

	select {
	case ev := <-got:
		assert.Equal(t, "user-1", ev.UserID)
		assert.Equal(t, domain.ChangeInsert, ev.Type)
		assert.False(t, ev.At.IsZero())
	case <-time.After(2 * time.Second):
		t.Fatal("no change event delivered")
	}

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close(), "close is idempotent")

	require.NoError(t, s.Publish(ctx, domain.ChangeEvent{Type: domain.ChangeDelete, UserID: "user-1"}))
	select {
	case ev := <-got:
		t.Fatalf("event after close: %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestPublishRequiresUser(t *testing.T) {
	s, _ := newTestStore(t)
	assert.Error(t, s.Publish(context.Background(), domain.ChangeEvent{Type: domain.ChangeInsert}))

	_, err := s.Subscribe(context.Background(), "", "", func(domain.ChangeEvent) {})
	assert.Error(t, err)
}
