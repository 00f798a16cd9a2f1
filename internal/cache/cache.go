// Package cache provides an in-process TTL cache used to avoid redundant
// backend round trips for user, session and store data.
package cache

import (
	"sync"
	"time"
)

// DefaultTTL applies when a caller does not override the entry lifetime.
const DefaultTTL = 5 * time.Minute

// DefaultSweepInterval is how often the application schedules Cleanup.
const DefaultSweepInterval = 5 * time.Minute

type entry[V any] struct {
	value    V
	storedAt time.Time
	ttl      time.Duration
}

func (e entry[V]) expired(now time.Time) bool {
	return now.Sub(e.storedAt) > e.ttl
}

// Cache is a thread-safe key/value store with per-entry expiry. Expired
// entries are evicted lazily on read and eagerly by Cleanup.
type Cache[V any] struct {
	mu         sync.RWMutex
	entries    map[string]entry[V]
	defaultTTL time.Duration

	// now is swappable so tests can advance time without sleeping.
	now func() time.Time

	onEvict func(key string)
	onHit   func()
	onMiss  func()
}

// Option customises cache construction.
type Option[V any] func(*Cache[V])

// WithDefaultTTL overrides the default entry lifetime.
func WithDefaultTTL[V any](ttl time.Duration) Option[V] {
	return func(c *Cache[V]) { c.defaultTTL = ttl }
}

// WithClock substitutes the time source.
func WithClock[V any](now func() time.Time) Option[V] {
	return func(c *Cache[V]) { c.now = now }
}

// WithCallbacks registers observability hooks. Any of the three may be nil.
func WithCallbacks[V any](onHit, onMiss func(), onEvict func(key string)) Option[V] {
	return func(c *Cache[V]) {
		c.onHit = onHit
		c.onMiss = onMiss
		c.onEvict = onEvict
	}
}

// New creates an empty cache.
func New[V any](opts ...Option[V]) *Cache[V] {
	c := &Cache[V]{
		entries:    make(map[string]entry[V]),
		defaultTTL: DefaultTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Set stores value under key with the default TTL.
func (c *Cache[V]) Set(key string, value V) {
	c.SetTTL(key, value, c.defaultTTL)
}

// SetTTL stores value under key with an explicit TTL. A non-positive ttl
// falls back to the default.
func (c *Cache[V]) SetTTL(key string, value V, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	c.mu.Lock()
	c.entries[key] = entry[V]{value: value, storedAt: c.now(), ttl: ttl}
	c.mu.Unlock()
}

// Get returns the value for key. An entry past its TTL is treated as absent
// and evicted as a side effect.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		c.miss()
		var zero V
		return zero, false
	}

	if e.expired(c.now()) {
		c.evict(key)
		c.miss()
		var zero V
		return zero, false
	}

	c.hit()
	return e.value, true
}

// Has reports whether key holds a live entry, evicting it if expired.
func (c *Cache[V]) Has(key string) bool {
	_, ok := c.Get(key)
	return ok
}

// Delete removes key regardless of expiry.
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Clear removes every entry.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]entry[V])
	c.mu.Unlock()
}

// Cleanup sweeps the whole table, evicting expired entries. Returns the
// number evicted.
func (c *Cache[V]) Cleanup() int {
	now := c.now()

	c.mu.Lock()
	var expired []string
	for k, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, k)
			expired = append(expired, k)
		}
	}
	c.mu.Unlock()

	if c.onEvict != nil {
		for _, k := range expired {
			c.onEvict(k)
		}
	}
	return len(expired)
}

// Len returns the number of entries, including any not yet swept.
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache[V]) evict(key string) {
	c.mu.Lock()
	// Re-check under the write lock: a concurrent SetTTL may have refreshed
	// the entry between our read and now.
	if e, ok := c.entries[key]; ok && e.expired(c.now()) {
		delete(c.entries, key)
		c.mu.Unlock()
		if c.onEvict != nil {
			c.onEvict(key)
		}
		return
	}
	c.mu.Unlock()
}

func (c *Cache[V]) hit() {
	if c.onHit != nil {
		c.onHit()
	}
}

func (c *Cache[V]) miss() {
	if c.onMiss != nil {
		c.onMiss()
	}
}
