// Package memory provides an in-process TTL cache with single-flight
// computation.
package memory

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/theotherzach/project-brain-bot/internal/core/ports/driven"
)

// Ensure Cache implements the interface.
var _ driven.Cache = (*Cache)(nil)

// DefaultComputeTimeout bounds a detached computation. Computations outlive
// the caller that started them, so they need their own deadline.
const DefaultComputeTimeout = 30 * time.Second

// entry is one cached value with its expiry.
type entry struct {
	value     any
	expiresAt time.Time
}

// Cache is a TTL key/value store with a single-flight guarantee: concurrent
// requests for the same key share one in-flight computation. Eviction is
// TTL-based; an expired entry is never served. Failed computations are not
// cached.
type Cache struct {
	mu             sync.RWMutex
	entries        map[string]entry
	group          singleflight.Group
	computeTimeout time.Duration
	now            func() time.Time
}

// Option configures the cache.
type Option func(*Cache)

// WithComputeTimeout sets the deadline applied to detached computations.
func WithComputeTimeout(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.computeTimeout = d
		}
	}
}

// WithClock overrides the time source. Useful for testing expiry.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// New creates an empty cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		entries:        make(map[string]entry),
		computeTimeout: DefaultComputeTimeout,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetOrCompute returns the cached value for key if fresh, otherwise runs
// compute once (no matter how many callers arrive concurrently), stores the
// result for ttl, and returns it.
//
// The computation runs on a context detached from the caller, so cancelling
// one waiter never cancels work other waiters share. A waiter whose own
// context expires returns early; the computation continues and its result is
// cached for later requests.
func (c *Cache) GetOrCompute(
	ctx context.Context, key string, ttl time.Duration, compute func(ctx context.Context) (any, error),
) (any, error) {
	if v, ok := c.get(key); ok {
		return v, nil
	}

	ch := c.group.DoChan(key, func() (any, error) {
		// Another caller may have populated the entry while we waited
		// for the flight slot.
		if v, ok := c.get(key); ok {
			return v, nil
		}

		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.computeTimeout)
		defer cancel()

		v, err := compute(cctx)
		if err != nil {
			return nil, err
		}
		c.set(key, v, ttl)
		return v, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val, nil
	}
}

// Invalidate removes a key immediately.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Len returns the number of live entries, dropping expired ones.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for k, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, k)
		}
	}
	return len(c.entries)
}

// get returns a fresh value for key, if any.
func (c *Cache) get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok || !c.now().Before(e.expiresAt) {
		return nil, false
	}
	return e.value, true
}

// set stores a value with its expiry.
func (c *Cache) set(key string, value any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{value: value, expiresAt: c.now().Add(ttl)}
}
