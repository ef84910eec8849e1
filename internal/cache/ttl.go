// Package cache provides a small TTL cache owned by the component using it.
package cache

import (
	"sync"
	"time"
)

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// TTL maps keys to values that expire a fixed duration after being written.
// Expired entries are evicted lazily on read and by Purge.
type TTL[K comparable, V any] struct {
	ttl        time.Duration
	maxEntries int
	now        func() time.Time

	mu      sync.Mutex
	entries map[K]entry[V]
}

// Option customises a TTL cache.
type Option func(*options)

type options struct {
	now        func() time.Time
	maxEntries int
}

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithMaxEntries bounds the cache; the entry closest to expiry is evicted first.
func WithMaxEntries(n int) Option {
	return func(o *options) { o.maxEntries = n }
}

// NewTTL builds a cache whose entries live for ttl.
func NewTTL[K comparable, V any](ttl time.Duration, opts ...Option) *TTL[K, V] {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &TTL[K, V]{
		ttl:        ttl,
		maxEntries: o.maxEntries,
		now:        o.now,
		entries:    map[K]entry[V]{},
	}
}

// Get returns the cached value if present and fresh.
func (c *TTL[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	if !c.now().Before(e.expiresAt) {
		delete(c.entries, key)
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set stores value under key for the cache's TTL.
func (c *TTL[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
		c.evictOldestLocked()
	}
	c.entries[key] = entry[V]{value: value, expiresAt: c.now().Add(c.ttl)}
}

// GetOrLoad returns the cached value or calls load and caches a successful result.
func (c *TTL[K, V]) GetOrLoad(key K, load func() (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err := load()
	if err != nil {
		return v, err
	}
	c.Set(key, v)
	return v, nil
}

// Purge drops every expired entry and returns how many were removed.
func (c *TTL[K, V]) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for k, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// Len reports the number of stored entries, including expired ones not yet purged.
func (c *TTL[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *TTL[K, V]) evictOldestLocked() {
	var (
		victim K
		oldest time.Time
		found  bool
	)
	for k, e := range c.entries {
		if !found || e.expiresAt.Before(oldest) {
			victim, oldest, found = k, e.expiresAt, true
		}
	}
	if found {
		delete(c.entries, victim)
	}
}
