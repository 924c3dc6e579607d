// Package revocation keeps a TTL-bounded record of revoked tokens. An
// entry lives no longer than the token it invalidates would have, so the
// store needs no sweeping.
package revocation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Store records revoked tokens until their natural expiry.
//
// IsRevoked answers the store lookup directly: absence of a record,
// including a backing-store failure, means the token is not revoked. A
// token that was never recorded is unusable anyway once expired, so
// Revoke with a non-positive ttl is a deliberate no-op.
type Store interface {
	Revoke(ctx context.Context, tokenValue string, ttl time.Duration) error
	IsRevoked(ctx context.Context, tokenValue string) bool
	Close() error
}

// fingerprint derives the storage key for a token value. Hashing keeps
// keys bounded and avoids persisting raw credentials.
func fingerprint(tokenValue string) string {
	sum := sha256.Sum256([]byte(tokenValue))
	return hex.EncodeToString(sum[:])
}
