// Package dedup provides a bounded recency set of message ids.
package dedup

import (
	"slices"
	"sync"
	"time"
)

// DefaultCapacity is the size above which the oldest half is evicted.
const DefaultCapacity = 1000

// Cache remembers recently seen ids in insertion order. Safe for concurrent use.
type Cache struct {
	mu       sync.Mutex
	capacity int
	seen     map[string]time.Time
	order    []string
	now      func() time.Time
}

// New creates a cache. A non-positive capacity selects DefaultCapacity.
func New(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache{
		capacity: capacity,
		seen:     make(map[string]time.Time, capacity+1),
		order:    make([]string, 0, capacity+1),
		now:      time.Now,
	}
}

// Seen reports whether id was already recorded. If not, it records id and
// evicts the oldest half once the size exceeds the capacity.
func (c *Cache) Seen(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.seen[id]; ok {
		return true
	}
	c.seen[id] = c.now()
	c.order = append(c.order, id)

	if len(c.order) > c.capacity {
		half := max(1, c.capacity/2)
		for _, old := range c.order[:half] {
			delete(c.seen, old)
		}
		c.order = append(c.order[:0], c.order[half:]...)
	}
	return false
}

// Forget drops id so its next delivery is processed again.
func (c *Cache) Forget(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.seen[id]; !ok {
		return
	}
	delete(c.seen, id)
	if i := slices.Index(c.order, id); i >= 0 {
		c.order = slices.Delete(c.order, i, i+1)
	}
}

// FirstSeen returns when id was first recorded.
func (c *Cache) FirstSeen(id string) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ts, ok := c.seen[id]
	return ts, ok
}

// Len returns the number of ids currently remembered.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.order)
}
