package cache

import (
	"context"
	"time"
)

// Cache is the read-through cache consumed by services. Implementations must
// be safe for concurrent use; per-key operations are independent and no
// cross-key locking is required.
type Cache interface {
	// Get retrieves a value; the second return is false on miss.
	Get(ctx context.Context, key string) (interface{}, bool)

	// Set stores a value with the given TTL; zero selects the backend default.
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration)

	// Delete removes a single key.
	Delete(ctx context.Context, key string)

	// DeleteByPrefix removes every key under the given prefix.
	DeleteByPrefix(ctx context.Context, prefix string)
}
