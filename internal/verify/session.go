package verify

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// sessionCache maps short uuid handles to the product a user picked in
// the dropdown, so modal custom ids stay within Discord's length
// limit. Entries expire after ttl; expired entries are swept on every
// insert so the map stays bounded.
type sessionCache struct {
	mu      sync.Mutex
	entries map[string]sessionEntry
	ttl     time.Duration
}

type sessionEntry struct {
	product string
	expires time.Time
}

func newSessionCache(ttl time.Duration) *sessionCache {
	return &sessionCache{
		entries: make(map[string]sessionEntry),
		ttl:     ttl,
	}
}

func (c *sessionCache) put(product string) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for id, e := range c.entries {
		if e.expires.Before(now) {
			delete(c.entries, id)
		}
	}

	id := uuid.NewString()
	c.entries[id] = sessionEntry{product: product, expires: now.Add(c.ttl)}
	return id
}

// take resolves and consumes a session handle.
func (c *sessionCache) take(id string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[id]
	if !ok {
		return "", false
	}
	delete(c.entries, id)
	if e.expires.Before(time.Now()) {
		return "", false
	}
	return e.product, true
}

func (c *sessionCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
