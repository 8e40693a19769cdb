// Package cache provides the engine's shared result cache: TTL-evicted
// entries keyed by (operation, snapshot version), with concurrent misses
// for the same key coalesced onto a single in-flight computation.
package cache

import (
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Cache is a compute-once-per-key TTL cache. The clock is injectable so
// expiry is deterministic in tests. Failed computations are never stored.
type Cache struct {
	ttl   time.Duration
	clock func() time.Time
	group singleflight.Group

	mu      sync.Mutex
	entries map[string]entry
}

type entry struct {
	value     interface{}
	expiresAt time.Time
}

// New creates a cache with the given TTL. A nil clock defaults to
// time.Now.
func New(ttl time.Duration, clock func() time.Time) *Cache {
	if clock == nil {
		clock = time.Now
	}
	return &Cache{
		ttl:     ttl,
		clock:   clock,
		entries: make(map[string]entry),
	}
}

// Do returns the cached value for key, or runs compute exactly once for
// all concurrent callers of the same key and stores the result. Callers
// for different keys never block each other. The second return reports
// whether the value came from the cache.
func (c *Cache) Do(key string, compute func() (interface{}, error)) (interface{}, bool, error) {
	if value, ok := c.get(key); ok {
		return value, true, nil
	}

	value, err, _ := c.group.Do(key, func() (interface{}, error) {
		// A concurrent caller may have stored the value between our
		// lookup and entering the group.
		if value, ok := c.get(key); ok {
			return value, nil
		}

		value, err := compute()
		if err != nil {
			return nil, err
		}
		c.set(key, value)
		return value, nil
	})
	if err != nil {
		return nil, false, err
	}
	return value, false, nil
}

// Invalidate removes a single key.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Purge removes every entry.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry)
}

func (c *Cache) get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.clock().After(e.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}
	return e.value, true
}

func (c *Cache) set(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{
		value:     value,
		expiresAt: c.clock().Add(c.ttl),
	}
}
