package ticket

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// cooldown throttles ticket creation per user with one token-bucket
// per user id. Buckets are process-local; a restart clears them.
// Idle buckets are evicted opportunistically so the map stays bounded.
type cooldown struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	every   time.Duration
	ttl     time.Duration
	calls   uint64
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newCooldown(every time.Duration) *cooldown {
	return &cooldown{
		buckets: make(map[string]*bucket),
		every:   every,
		ttl:     10 * time.Minute,
	}
}

// reserve takes a creation token for the user. When throttled it
// returns the wait until the next token and false, leaving the bucket
// untouched.
func (c *cooldown) reserve(userId string) (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls++
	if c.calls%64 == 0 {
		c.evict()
	}

	b, ok := c.buckets[userId]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rate.Every(c.every), 1)}
		c.buckets[userId] = b
	}
	b.lastSeen = time.Now()

	r := b.limiter.Reserve()
	if delay := r.Delay(); delay > 0 {
		r.Cancel()
		return delay, false
	}
	return 0, true
}

// evict drops buckets idle longer than ttl. Caller holds the lock.
func (c *cooldown) evict() {
	cutoff := time.Now().Add(-c.ttl)
	for id, b := range c.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(c.buckets, id)
		}
	}
}

func (c *cooldown) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buckets)
}
