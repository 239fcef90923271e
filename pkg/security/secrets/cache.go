package secrets

import (
	"sync"
	"time"
)

// CacheConfig configures the secret cache.
type CacheConfig struct {
	Enabled bool
	TTL     time.Duration
	MaxSize int
}

type cacheEntry struct {
	value    string
	storedAt time.Time
}

// Cache is a small TTL cache for resolved secrets. When full, expired
// entries are dropped first, then the oldest one.
type Cache struct {
	cfg CacheConfig
	now func() time.Time

	mu      sync.Mutex
	entries map[string]cacheEntry
}

// NewCache creates a cache with cfg.
func NewCache(cfg CacheConfig) *Cache {
	return &Cache{
		cfg:     cfg,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

// Get returns the cached value for key if present and fresh.
func (c *Cache) Get(key string) (string, bool) {
	if !c.cfg.Enabled {
		return "", false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return "", false
	}
	if c.expired(e) {
		delete(c.entries, key)
		return "", false
	}
	return e.value, true
}

// Set stores value under key.
func (c *Cache) Set(key, value string) {
	if !c.cfg.Enabled {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && c.cfg.MaxSize > 0 && len(c.entries) >= c.cfg.MaxSize {
		c.evict()
	}
	c.entries[key] = cacheEntry{value: value, storedAt: c.now()}
}

// Clear removes every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry)
	c.mu.Unlock()
}

// Len returns the number of entries, fresh or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) expired(e cacheEntry) bool {
	return c.cfg.TTL > 0 && c.now().Sub(e.storedAt) >= c.cfg.TTL
}

// evict must be called with mu held.
func (c *Cache) evict() {
	var oldestKey string
	var oldest time.Time
	for k, e := range c.entries {
		if c.expired(e) {
			delete(c.entries, k)
			continue
		}
		if oldestKey == "" || e.storedAt.Before(oldest) {
			oldestKey, oldest = k, e.storedAt
		}
	}
	if len(c.entries) >= c.cfg.MaxSize && oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}
