package redis

import (
	"crypto/sha256"
	"encoding/hex"
)

const (
	// KeyPrefixCode marks authorization codes that were already exchanged
	KeyPrefixCode = "marks:code:"
	// KeyPrefixRevoked marks access tokens signed out before their expiry
	KeyPrefixRevoked = "marks:revoked:"
	// ChannelPrefixChanges is the pub/sub channel prefix for per-user change signals
	ChannelPrefixChanges = "marks:changes:"
)

// CodeKey returns the Redis key for an authorization code
func CodeKey(code string) string {
	return KeyPrefixCode + digest(code)
}

// RevokedKey returns the Redis key for a revoked access token
func RevokedKey(accessToken string) string {
	return KeyPrefixRevoked + digest(accessToken)
}

// ChangesChannel returns the pub/sub channel of one user
func ChangesChannel(userID string) string {
	return ChannelPrefixChanges + userID
}

// Credentials never reach Redis in clear.
func digest(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}
