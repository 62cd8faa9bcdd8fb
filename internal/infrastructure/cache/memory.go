package cache

import (
	"context"
	"sync"
	"time"

	"github.com/creatorpulse/backend/internal/domain"
)

// DefaultMaxEntries bounds the in-process search cache when no limit is configured
const DefaultMaxEntries = 10000

type entry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryCache is a bounded in-process domain.CacheRepository for catalog responses.
// When full, the entry closest to expiry is evicted to make room.
type MemoryCache struct {
	mu         sync.RWMutex
	entries    map[string]entry
	maxEntries int
	now        func() time.Time

	stop chan struct{}
	once sync.Once
}

// NewMemoryCache creates the cache and starts a janitor that drops expired entries every
// cleanupInterval. Call Close to stop it.
func NewMemoryCache(cleanupInterval time.Duration, maxEntries int) *MemoryCache {
	if cleanupInterval <= 0 {
		cleanupInterval = 10 * time.Minute
	}
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	c := &MemoryCache{
		entries:    make(map[string]entry),
		maxEntries: maxEntries,
		now:        time.Now,
		stop:       make(chan struct{}),
	}
	go c.janitor(cleanupInterval)
	return c
}

// Get returns a copy of the cached bytes or domain.ErrCacheMiss
func (c *MemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok || !c.now().Before(e.expiresAt) {
		return nil, domain.ErrCacheMiss
	}
	return append([]byte(nil), e.value...), nil
}

// Set stores a copy of value for ttl. A non-positive ttl deletes the key.
func (c *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ttl <= 0 {
		delete(c.entries, key)
		return nil
	}
	now := c.now()
	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.makeRoom(now)
	}
	c.entries[key] = entry{
		value:     append([]byte(nil), value...),
		expiresAt: now.Add(ttl),
	}
	return nil
}

func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

// Exists reports whether key holds an unexpired value
func (c *MemoryCache) Exists(ctx context.Context, key string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	return ok && c.now().Before(e.expiresAt), nil
}

// Len returns the number of stored entries, expired ones included until the next sweep
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Close stops the janitor. It is safe to call more than once.
func (c *MemoryCache) Close() error {
	c.once.Do(func() { close(c.stop) })
	return nil
}

// makeRoom drops expired entries, or the one expiring soonest when none has expired.
// Caller holds the write lock.
func (c *MemoryCache) makeRoom(now time.Time) {
	if c.sweep(now) > 0 {
		return
	}
	var (
		victim string
		soon   time.Time
	)
	for k, e := range c.entries {
		if victim == "" || e.expiresAt.Before(soon) {
			victim, soon = k, e.expiresAt
		}
	}
	delete(c.entries, victim)
}

// sweep deletes expired entries and returns how many it removed. Caller holds the write lock.
func (c *MemoryCache) sweep(now time.Time) int {
	n := 0
	for k, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

func (c *MemoryCache) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.mu.Lock()
			c.sweep(c.now())
			c.mu.Unlock()
		}
	}
}
