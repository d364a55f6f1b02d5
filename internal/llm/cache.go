package llm

import (
	"crypto/md5"
	"fmt"
	"sync"
	"time"
)

// Cache keeps generated explanations in memory so re-ranking the same pair
// does not call the provider again.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	ttl     time.Duration
	now     func() time.Time
}

type cacheEntry struct {
	text      string
	timestamp time.Time
}

func NewCache(ttl time.Duration) *Cache {
	return &Cache{
		entries: make(map[string]*cacheEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns a cached explanation if present and not expired.
func (c *Cache) Get(resume, job string, score float64) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[cacheKey(resume, job, score)]
	if !ok {
		return "", false
	}
	if c.now().Sub(entry.timestamp) > c.ttl {
		return "", false
	}
	return entry.text, true
}

func (c *Cache) Set(resume, job string, score float64, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[cacheKey(resume, job, score)] = &cacheEntry{text: text, timestamp: c.now()}
}

// CleanExpired removes expired entries and reports how many were dropped.
func (c *Cache) CleanExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, entry := range c.entries {
		if now.Sub(entry.timestamp) > c.ttl {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func cacheKey(resume, job string, score float64) string {
	hash := md5.Sum([]byte(fmt.Sprintf("%s|%s|%.4f", resume, job, score)))
	return fmt.Sprintf("%x", hash)
}
