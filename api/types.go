package api

import (
	"context"
	"time"
)

// Authenticator is implemented by types able to verify bearer session tokens.
type Authenticator interface {
	Verify(token []byte) (Claims, error)
}

// Deduper rejects replays of mutating requests carrying an Idempotency-Key.
type Deduper interface {
	// Add records the idempotency key and returns true if it was newly added.
	Add(ctx context.Context, scope, key string) (bool, error)
	// Remove deletes a previously added key, used when the request failed.
	Remove(ctx context.Context, scope, key string) error
}

// Revoker remembers signed-out sessions until their credentials expire.
type Revoker interface {
	Revoke(ctx context.Context, key string, until time.Time) error
	Revoked(ctx context.Context, key string) (bool, error)
}
