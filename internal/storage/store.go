package storage

import (
	"context"
	"time"
)

// SessionStore holds issued auth tokens.
// Implementations: redis.Client, memory.Client (for -dev without Redis).
type SessionStore interface {
	SetSession(ctx context.Context, token, userID string, ttl time.Duration) error
	// GetSession returns the user id for a token, or "" if unknown/expired.
	GetSession(ctx context.Context, token string) (string, error)
	DeleteSession(ctx context.Context, token string) error
	Close() error
}
