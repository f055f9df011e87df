package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultCodeTTL is how long an exchanged code stays claimed (10 minutes)
	DefaultCodeTTL = 10 * time.Minute
	// DefaultRevocationTTL applies when a token's expiry is unknown (1 hour)
	DefaultRevocationTTL = time.Hour
)

// Store handles Redis operations for auth bookkeeping and change signals
type Store struct {
	client *redis.Client
}

// NewStore creates a new Redis store
func NewStore(client *redis.Client) *Store {
	return &Store{
		client: client,
	}
}

// ClaimCode records that code is being exchanged. It returns false when the
// code was already claimed, which means the callback was replayed.
func (s *Store) ClaimCode(ctx context.Context, code string) (bool, error) {
	ok, err := s.client.SetNX(ctx, CodeKey(code), 1, DefaultCodeTTL).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim code: %w", err)
	}
	return ok, nil
}

// RevokeToken denies accessToken until ttl elapses
func (s *Store) RevokeToken(ctx context.Context, accessToken string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultRevocationTTL
	}
	if err := s.client.Set(ctx, RevokedKey(accessToken), 1, ttl).Err(); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}

// IsRevoked implements session.RevocationChecker
func (s *Store) IsRevoked(ctx context.Context, accessToken string) (bool, error) {
	err := s.client.Get(ctx, RevokedKey(accessToken)).Err()
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, redis.Nil):
		return false, nil
	default:
		return false, fmt.Errorf("failed to check revocation: %w", err)
	}
}
