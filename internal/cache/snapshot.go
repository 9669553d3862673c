package cache

import (
	"sync"
	"time"
)

// Snapshot is a single-slot cache with TTL. Writers tag each value with the
// generation they observed before loading it; Invalidate bumps the
// generation so a load that raced an invalidation can never be stored.
type Snapshot[T any] struct {
	mu  sync.Mutex
	ttl time.Duration
	now func() time.Time

	gen      uint64
	value    T
	has      bool
	fresh    bool
	storedAt time.Time
}

// NewSnapshot creates a cache whose entries expire after ttl. now defaults to
// time.Now; tests inject their own.
func NewSnapshot[T any](ttl time.Duration, now func() time.Time) *Snapshot[T] {
	if now == nil {
		now = time.Now
	}
	return &Snapshot[T]{ttl: ttl, now: now}
}

// Get returns the cached value only while it is fresh.
func (c *Snapshot[T]) Get() (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	if !c.has || !c.fresh {
		return zero, false
	}
	if !c.now().Before(c.storedAt.Add(c.ttl)) {
		c.fresh = false
		return zero, false
	}
	return c.value, true
}

// Last returns the most recent value even after it expired or was
// invalidated, with the time it was stored.
func (c *Snapshot[T]) Last() (T, time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value, c.storedAt, c.has
}

// Generation returns the token a loader passes back to Set.
func (c *Snapshot[T]) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// Set stores v if no invalidation happened since gen was read. It reports
// whether the value was stored.
func (c *Snapshot[T]) Set(gen uint64, v T) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen {
		return false
	}
	c.value = v
	c.has = true
	c.fresh = true
	c.storedAt = c.now()
	return true
}

// Invalidate marks the current value stale. The value stays reachable
// through Last.
func (c *Snapshot[T]) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.fresh = false
}

// Age reports how long ago the current value was stored.
func (c *Snapshot[T]) Age() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.has {
		return 0
	}
	return c.now().Sub(c.storedAt)
}

// TTL returns the configured time-to-live.
func (c *Snapshot[T]) TTL() time.Duration {
	return c.ttl
}
