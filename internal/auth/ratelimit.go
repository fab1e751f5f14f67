package auth

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ClientLimiter tracks one rate.Limiter per source client key (the HTTP
// middleware keys it by remote IP), evicting limiters idle for more than
// idleTTL on each access — the same opportunistic-eviction style as the
// nonce and session maps.
type ClientLimiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	idleTTL time.Duration
	entries map[string]*limiterEntry
}

type limiterEntry struct {
	limiter    *rate.Limiter
	lastSeen   time.Time
}

// NewClientLimiter builds a limiter allowing perMinute events per minute,
// per client key, with a burst equal to perMinute.
func NewClientLimiter(perMinute int) *ClientLimiter {
	return &ClientLimiter{
		limit:   rate.Every(time.Minute / time.Duration(perMinute)),
		burst:   perMinute,
		idleTTL: 10 * time.Minute,
		entries: make(map[string]*limiterEntry),
	}
}

// Allow reports whether an event for key is allowed right now, and
// advances that key's bucket.
func (c *ClientLimiter) Allow(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for k, e := range c.entries {
		if now.Sub(e.lastSeen) > c.idleTTL {
			delete(c.entries, k)
		}
	}

	e, ok := c.entries[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(c.limit, c.burst)}
		c.entries[key] = e
	}
	e.lastSeen = now
	return e.limiter.Allow()
}
