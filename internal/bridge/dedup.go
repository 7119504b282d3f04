package bridge

import (
	"fmt"
	"sync"
	"time"
)

// Dedup cache defaults. The mesh can flood the same reading through
// several peers within seconds; ten minutes of memory is plenty.
const (
	DefaultDedupTTL     = 10 * time.Minute
	DefaultDedupMaxKeys = 100000
)

// DedupCache drops readings that were already seen recently. Keyed on
// (device_id, reading_type, timestamp): the same measurement arriving via
// different mesh paths has identical key fields.
type DedupCache struct {
	ttl time.Duration
	max int
	now func() time.Time

	mu   sync.Mutex
	seen map[string]time.Time
}

// NewDedupCache creates a cache with the given TTL and key cap. Zero
// values take the defaults.
func NewDedupCache(ttl time.Duration, max int) *DedupCache {
	if ttl <= 0 {
		ttl = DefaultDedupTTL
	}
	if max <= 0 {
		max = DefaultDedupMaxKeys
	}
	return &DedupCache{
		ttl:  ttl,
		max:  max,
		now:  time.Now,
		seen: make(map[string]time.Time),
	}
}

// IsDuplicate reports whether the reading was seen within the TTL, and
// records it if not.
func (c *DedupCache) IsDuplicate(deviceID, readingType string, timestamp float64) bool {
	key := fmt.Sprintf("%s|%s|%.3f", deviceID, readingType, timestamp)
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if seen, ok := c.seen[key]; ok && now.Sub(seen) < c.ttl {
		return true
	}

	if len(c.seen) >= c.max {
		c.prune(now)
	}
	c.seen[key] = now
	return false
}

// Len returns the number of tracked keys.
func (c *DedupCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

// prune drops expired keys. Caller holds the lock.
func (c *DedupCache) prune(now time.Time) {
	for key, seen := range c.seen {
		if now.Sub(seen) >= c.ttl {
			delete(c.seen, key)
		}
	}
}
