package docstore

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("docstore: not found")

// Store is a key-value store with per-key expiry.
// Implementations must be safe for concurrent use by multiple goroutines.
type Store interface {
	// Put stores value under key. ttl <= 0 means no expiry.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Get returns ErrNotFound for missing or expired keys.
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}
