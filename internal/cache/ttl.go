package cache

import (
	"container/list"
	"sync"
	"time"
)

// TTL is a fixed-capacity cache whose entries expire after a fixed
// time-to-live. Expired entries are dropped lazily on Get/Has. Capacity
// eviction is insertion-ordered, not recency-ordered: when full, the
// oldest-inserted entry goes regardless of how recently it was read.
// Safe for concurrent use.
type TTL[K comparable, V any] struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	ll       *list.List
	items    map[K]*list.Element
	now      func() time.Time
}

type ttlEntry[K comparable, V any] struct {
	key       K
	value     V
	expiresAt time.Time
}

func NewTTL[K comparable, V any](capacity int, ttl time.Duration) *TTL[K, V] {
	if capacity <= 0 {
		capacity = 1
	}
	return &TTL[K, V]{
		capacity: capacity,
		ttl:      ttl,
		ll:       list.New(),
		items:    make(map[K]*list.Element),
		now:      time.Now,
	}
}

func (c *TTL[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	element, ok := c.items[key]
	if !ok {
		return zero, false
	}

	entry := element.Value.(*ttlEntry[K, V])
	if c.now().After(entry.expiresAt) {
		c.removeElement(element)
		return zero, false
	}

	return entry.value, true
}

func (c *TTL[K, V]) Has(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	element, ok := c.items[key]
	if !ok {
		return false
	}

	if c.now().After(element.Value.(*ttlEntry[K, V]).expiresAt) {
		c.removeElement(element)
		return false
	}

	return true
}

// Set stores a value with a fresh expiry. Re-setting an existing key counts
// as a new insertion for capacity-eviction order.
func (c *TTL[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if element, ok := c.items[key]; ok {
		c.removeElement(element)
	}

	element := c.ll.PushBack(&ttlEntry[K, V]{
		key:       key,
		value:     value,
		expiresAt: c.now().Add(c.ttl),
	})
	c.items[key] = element

	if c.ll.Len() > c.capacity {
		oldest := c.ll.Front()
		if oldest != nil {
			c.removeElement(oldest)
		}
	}
}

func (c *TTL[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if element, ok := c.items[key]; ok {
		c.removeElement(element)
	}
}

func (c *TTL[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

func (c *TTL[K, V]) removeElement(element *list.Element) {
	c.ll.Remove(element)
	delete(c.items, element.Value.(*ttlEntry[K, V]).key)
}
