// Package session tracks outstanding refresh tokens in an external
// TTL key-value store. The cache is the authoritative revocation
// source: a refresh token whose jti is absent here is treated as
// revoked no matter what its signature says.
package session

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound covers never-issued, expired and revoked entries alike
// so that callers cannot distinguish the three cases.
var ErrNotFound = errors.New("session entry not found")

// Entry is the server-side record of one outstanding refresh token.
type Entry struct {
	UserID    uint      `json:"user_id"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Cache is the refresh-session store. Implementations must make
// Consume atomic: of two concurrent calls with the same jti exactly
// one receives the entry, the other gets ErrNotFound.
type Cache interface {
	// Register stores an entry under jti, overwriting any existing one.
	Register(ctx context.Context, jti string, e Entry, ttl time.Duration) error
	// Consume removes and returns the entry in a single step. This is
	// the validate-and-revoke half of refresh token rotation.
	Consume(ctx context.Context, jti string) (*Entry, error)
	// Revoke deletes the entry. Revoking an absent jti is not an error.
	Revoke(ctx context.Context, jti string) error
	// Epoch returns the user's current revocation epoch, 0 if never bumped.
	Epoch(ctx context.Context, userID uint) (int64, error)
	// BumpEpoch invalidates every refresh token issued under previous
	// epochs in a single operation.
	BumpEpoch(ctx context.Context, userID uint) (int64, error)
}
