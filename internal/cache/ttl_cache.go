// Package cache holds short-lived lookups such as verified bearer tokens.
// Credit balances are never cached.
package cache

import (
	"sync"
	"time"

	"github.com/natidev-sh/natiweb/internal/clock"
)

const DefaultMaxEntries = 10000

type Cache[K comparable, V any] interface {
	Get(key K) (V, bool)
	Set(key K, value V, ttl time.Duration)
	Delete(key K)
}

type cacheEntry[V any] struct {
	value     V
	expiresAt time.Time
}

// TTLCache is a bounded in-memory cache with per-entry expiry. When full,
// expired entries are dropped first; if none are expired the write evicts
// the entry closest to expiry.
type TTLCache[K comparable, V any] struct {
	mu         sync.Mutex
	items      map[K]cacheEntry[V]
	maxEntries int
	clock      clock.Clock
}

type Option[K comparable, V any] func(*TTLCache[K, V])

func WithClock[K comparable, V any](c clock.Clock) Option[K, V] {
	return func(t *TTLCache[K, V]) { t.clock = c }
}

func WithMaxEntries[K comparable, V any](n int) Option[K, V] {
	return func(t *TTLCache[K, V]) {
		if n > 0 {
			t.maxEntries = n
		}
	}
}

func NewTTLCache[K comparable, V any](opts ...Option[K, V]) *TTLCache[K, V] {
	c := &TTLCache[K, V]{
		items:      make(map[K]cacheEntry[V]),
		maxEntries: DefaultMaxEntries,
		clock:      clock.SystemClock{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *TTLCache[K, V]) Get(key K) (V, bool) {
	var zero V
	if c == nil {
		return zero, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.items[key]
	if !ok {
		return zero, false
	}
	if !c.clock.Now().Before(entry.expiresAt) {
		delete(c.items, key)
		return zero, false
	}
	return entry.value, true
}

// Set stores value until now+ttl. A non-positive ttl is a no-op.
func (c *TTLCache[K, V]) Set(key K, value V, ttl time.Duration) {
	if c == nil || ttl <= 0 {
		return
	}
	now := c.clock.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.items[key]; !exists && len(c.items) >= c.maxEntries {
		c.evictLocked(now)
	}
	c.items[key] = cacheEntry[V]{value: value, expiresAt: now.Add(ttl)}
}

func (c *TTLCache[K, V]) Delete(key K) {
	if c == nil {
		return
	}
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
}

func (c *TTLCache[K, V]) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *TTLCache[K, V]) evictLocked(now time.Time) {
	var (
		oldestKey K
		oldestAt  time.Time
		found     bool
	)
	for key, entry := range c.items {
		if !now.Before(entry.expiresAt) {
			delete(c.items, key)
			continue
		}
		if !found || entry.expiresAt.Before(oldestAt) {
			oldestKey, oldestAt, found = key, entry.expiresAt, true
		}
	}
	if len(c.items) >= c.maxEntries && found {
		delete(c.items, oldestKey)
	}
}
