package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"ragserver/internal/cache"
	"ragserver/internal/domain"
)

// Cache is a process-local TTL cache, used in tests and single-node
// development setups where Redis is not available. Expired entries are
// dropped lazily on the next read.
type Cache struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

type entry struct {
	answer    domain.Answer
	expiresAt time.Time
}

func NewCache() *Cache {
	return &Cache{entries: make(map[string]entry), now: time.Now}
}

func (c *Cache) Get(ctx context.Context, sessionID, query string) (domain.Answer, bool) {
	key := cache.Key(sessionID, query)
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return domain.Answer{}, false
	}
	if !e.expiresAt.IsZero() && c.now().After(e.expiresAt) {
		delete(c.entries, key)
		return domain.Answer{}, false
	}
	return e.answer, true
}

func (c *Cache) Set(ctx context.Context, sessionID, query string, answer domain.Answer, ttl time.Duration) error {
	e := entry{answer: answer}
	if ttl > 0 {
		e.expiresAt = c.now().Add(ttl)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cache.Key(sessionID, query)] = e
	return nil
}

func (c *Cache) Invalidate(ctx context.Context, sessionID string) error {
	prefix := cache.SessionPrefix(sessionID)
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
	return nil
}
