package queue

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"queuesync/model"
)

// Cache is the process-local queue view cache. Entries are evicted by LRU
// pressure at capacity and treated as absent once the TTL elapses; both
// policies apply independently. The cache is never the source of truth —
// entries are whole immutable views, replaced rather than mutated in place.
type Cache struct {
	entries *expirable.LRU[string, *model.QueueView]
}

// NewCache creates a cache holding at most size entries for at most ttl.
func NewCache(size int, ttl time.Duration) *Cache {
	return &Cache{
		entries: expirable.NewLRU[string, *model.QueueView](size, nil, ttl),
	}
}

// Get returns the cached view for a user and refreshes its recency.
func (c *Cache) Get(did string) (*model.QueueView, bool) {
	return c.entries.Get(did)
}

// Put inserts or replaces the view for a user.
func (c *Cache) Put(did string, view *model.QueueView) {
	c.entries.Add(did, view)
}

// Invalidate removes a single user's entry. Used after local writes and on
// received change notifications.
func (c *Cache) Invalidate(did string) {
	c.entries.Remove(did)
}

// Clear removes all entries. Used on shutdown and test reset.
func (c *Cache) Clear() {
	c.entries.Purge()
}

// Len reports the number of live entries.
func (c *Cache) Len() int {
	return c.entries.Len()
}
