// Package dedup implements a bounded seen-set for inbound webhook update
// IDs. The webhook transport may redeliver an update; redelivery after
// eviction is accepted as rare, tolerable re-processing since commands are
// idempotent.
package dedup

import "sync"

// DefaultCapacity matches the webhook redelivery window observed in
// production.
const DefaultCapacity = 100

// Cache is an insertion-ordered seen-set with a hard capacity. When full,
// the single oldest entry is evicted, regardless of lookup recency.
type Cache struct {
	mu       sync.Mutex
	capacity int
	seen     map[int64]struct{}
	order    []int64
	head     int
}

// NewCache creates a cache holding at most capacity IDs. A non-positive
// capacity falls back to DefaultCapacity.
func NewCache(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache{
		capacity: capacity,
		seen:     make(map[int64]struct{}, capacity),
		order:    make([]int64, 0, capacity),
	}
}

// Seen reports whether id was already recorded. A new id is recorded and
// false is returned; recording evicts the oldest entry once the cache is at
// capacity.
func (c *Cache) Seen(id int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.seen[id]; ok {
		return true
	}

	if len(c.order) < c.capacity {
		c.order = append(c.order, id)
	} else {
		delete(c.seen, c.order[c.head])
		c.order[c.head] = id
		c.head = (c.head + 1) % c.capacity
	}
	c.seen[id] = struct{}{}
	return false
}

// Len returns the number of recorded IDs.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}
