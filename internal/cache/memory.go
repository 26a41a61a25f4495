package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryProvider is a process-local Provider with per-entry TTL. Expired entries are dropped
// lazily on read and in bulk by CleanupExpired.
type MemoryProvider struct {
	mu   sync.RWMutex
	data map[string]entry
	now  func() time.Time
}

type entry struct {
	value     []byte
	expiresAt time.Time
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// NewMemoryProvider creates an empty in-memory cache.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{data: make(map[string]entry), now: time.Now}
}

// Get returns a copy of the cached bytes or ErrCacheMiss.
func (c *MemoryProvider) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.RLock()
	it, ok := c.data[key]
	c.mu.RUnlock()
	if !ok {
		return nil, ErrCacheMiss
	}
	if it.expired(c.now()) {
		c.mu.Lock()
		if cur, ok := c.data[key]; ok && cur.expired(c.now()) {
			delete(c.data, key)
		}
		c.mu.Unlock()
		return nil, ErrCacheMiss
	}
	return append([]byte(nil), it.value...), nil
}

// Set stores a copy of value; ttl <= 0 never expires.
func (c *MemoryProvider) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	var expires time.Time
	if ttl > 0 {
		expires = c.now().Add(ttl)
	}
	c.mu.Lock()
	c.data[key] = entry{value: append([]byte(nil), value...), expiresAt: expires}
	c.mu.Unlock()
	return nil
}

// Delete removes an entry.
func (c *MemoryProvider) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.data, key)
	c.mu.Unlock()
	return nil
}

// Clear drops every entry.
func (c *MemoryProvider) Clear(context.Context) error {
	c.mu.Lock()
	c.data = make(map[string]entry)
	c.mu.Unlock()
	return nil
}

// CleanupExpired removes expired entries and returns how many were dropped.
func (c *MemoryProvider) CleanupExpired() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for key, it := range c.data {
		if it.expired(now) {
			delete(c.data, key)
			removed++
		}
	}
	return removed
}

// Len reports the number of stored entries, expired or not.
func (c *MemoryProvider) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

// Close is a no-op.
func (c *MemoryProvider) Close() error { return nil }

// StartJanitor runs CleanupExpired every interval until ctx is done.
func (c *MemoryProvider) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.CleanupExpired()
			}
		}
	}()
}
