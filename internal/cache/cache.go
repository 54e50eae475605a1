// Package cache provides the TTL-bounded tool result cache that shields
// rate-limited tools from redundant calls.
package cache

import (
	"sync"
	"time"
)

// Cache is a concurrent-safe key→value store with per-entry expiry.
// Writes are last-writer-wins per key; a read after expiry is a miss and
// the stale value is never returned.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry

	stop chan struct{}
	once sync.Once
}

type entry struct {
	value     any
	expiresAt time.Time
}

// New creates a cache and starts a background sweep that removes expired
// entries every sweepInterval. A zero interval disables the sweep; expired
// entries are then dropped lazily on read.
func New(sweepInterval time.Duration) *Cache {
	c := &Cache{
		entries: make(map[string]entry),
		stop:    make(chan struct{}),
	}
	if sweepInterval > 0 {
		go c.sweepLoop(sweepInterval)
	}
	return c
}

// Get returns the value for key if present and unexpired.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}
	if time.Now().After(e.expiresAt) {
		c.mu.Lock()
		// Re-check under the write lock; a fresh Put may have raced us.
		if cur, ok := c.entries[key]; ok && time.Now().After(cur.expiresAt) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, false
	}
	return e.value, true
}

// Put stores value under key for ttl. Non-positive TTLs are ignored.
func (c *Cache) Put(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.mu.Lock()
	c.entries[key] = entry{value: value, expiresAt: time.Now().Add(ttl)}
	c.mu.Unlock()
}

// Len returns the number of stored entries, including any not yet swept.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Close stops the background sweep.
func (c *Cache) Close() {
	c.once.Do(func() { close(c.stop) })
}

func (c *Cache) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			now := time.Now()
			c.mu.Lock()
			for k, e := range c.entries {
				if now.After(e.expiresAt) {
					delete(c.entries, k)
				}
			}
			c.mu.Unlock()
		case <-c.stop:
			return
		}
	}
}
