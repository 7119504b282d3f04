package bridge

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDedupCache(t *testing.T) {
	c := NewDedupCache(time.Minute, 100)

	assert.False(t, c.IsDuplicate("dev-1", "temperature", 1700000000.5))
	assert.True(t, c.IsDuplicate("dev-1", "temperature", 1700000000.5))

	// Any differing key field is a distinct reading.
	assert.False(t, c.IsDuplicate("dev-2", "temperature", 1700000000.5))
	assert.False(t, c.IsDuplicate("dev-1", "humidity", 1700000000.5))
	assert.False(t, c.IsDuplicate("dev-1", "temperature", 1700000001.5))
}

func TestDedupCacheTTLExpiry(t *testing.T) {
	c := NewDedupCache(time.Minute, 100)
	now := time.Now()
	c.now = func() time.Time { return now }

	assert.False(t, c.IsDuplicate("dev-1", "temperature", 1))
	assert.True(t, c.IsDuplicate("dev-1", "temperature", 1))

	now = now.Add(2 * time.Minute)
	assert.False(t, c.IsDuplicate("dev-1", "temperature", 1), "expired entry is no longer a duplicate")
}

func TestDedupCachePruneAtCap(t *testing.T) {
	c := NewDedupCache(time.Minute, 10)
	now := time.Now()
	c.now = func() time.Time { return now }

	for i := 0; i < 10; i++ {
		c.IsDuplicate(fmt.Sprintf("dev-%d", i), "temperature", 1)
	}
	assert.Equal(t, 10, c.Len())

	// All entries expire; the next insert prunes them.
	now = now.Add(2 * time.Minute)
	c.IsDuplicate("dev-new", "temperature", 1)
	assert.Equal(t, 1, c.Len())
}
