package driven

import (
	"context"
	"time"
)

// Cache is a short-TTL key/value store shielding upstream APIs from
// repeated identical calls.
//
// GetOrCompute guarantees at most one concurrent compute per key within a
// process: duplicate concurrent requests await the single in-flight
// computation (single-flight). A failed compute is not cached, so the next
// request retries upstream. Cancelling one caller's context must not cancel
// a computation other callers are waiting on.
type Cache interface {
	// GetOrCompute returns the cached value for key if fresh, otherwise
	// runs compute, stores the result for ttl, and returns it.
	GetOrCompute(ctx context.Context, key string, ttl time.Duration, compute func(ctx context.Context) (any, error)) (any, error)

	// Invalidate removes a key immediately.
	Invalidate(key string)

	// Len returns the number of live (unexpired) entries.
	Len() int
}
