package scorer

import (
	"sync"
	"time"
)

// cacheEntry represents one cached score.
type cacheEntry struct {
	expiry   time.Time
	response ScoreResponse
}

// scoreCache provides thread-safe TTL caching for scoring responses, keyed
// by (expense ID, receipt name, storage ref). The storage ref keeps a
// superseded same-named upload from reusing the old file's score.
type scoreCache struct {
	entries map[string]cacheEntry
	ttl     time.Duration
	mu      sync.RWMutex
}

// newScoreCache creates a cache with the specified TTL.
func newScoreCache(ttl time.Duration) *scoreCache {
	if ttl == 0 {
		ttl = 15 * time.Minute
	}
	return &scoreCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
	}
}

// get retrieves a response from the cache if it exists and hasn't expired.
func (c *scoreCache) get(key string) (ScoreResponse, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.entries[key]
	if !exists {
		return ScoreResponse{}, false
	}
	if time.Now().After(entry.expiry) {
		return ScoreResponse{}, false
	}
	return entry.response, true
}

// set stores a response in the cache.
func (c *scoreCache) set(key string, response ScoreResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = cacheEntry{
		response: response,
		expiry:   time.Now().Add(c.ttl),
	}
}
