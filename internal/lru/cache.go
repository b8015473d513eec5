package lru

import (
	"container/list"
	"sync"
)

type listEntry[K comparable, V any] struct {
	key   K
	value V
}

// Cache is a thread-safe, size-bounded cache that evicts the least
// recently used entry. A cache with capacity zero stores nothing.
type Cache[K comparable, V any] struct {
	capacity int
	mu       sync.Mutex
	order    *list.List
	index    map[K]*list.Element
}

func NewCache[K comparable, V any](capacity int) *Cache[K, V] {
	return &Cache[K, V]{
		capacity: capacity,
		order:    list.New(),
		index:    make(map[K]*list.Element),
	}
}

func (c *Cache[K, V]) Add(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.capacity <= 0 {
		return
	}

	if element, ok := c.index[key]; ok {
		element.Value.(*listEntry[K, V]).value = value
		c.order.MoveToFront(element)
		return
	}

	if c.order.Len() >= c.capacity {
		c.evictUnsafe()
	}

	c.index[key] = c.order.PushFront(&listEntry[K, V]{key: key, value: value})
}

func (c *Cache[K, V]) evictUnsafe() {
	element := c.order.Back()
	if element != nil {
		c.order.Remove(element)
		delete(c.index, element.Value.(*listEntry[K, V]).key)
	}
}

func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	element, ok := c.index[key]
	if !ok {
		var zero V
		return zero, false
	}
	c.order.MoveToFront(element)
	return element.Value.(*listEntry[K, V]).value, true
}

func (c *Cache[K, V]) Delete(key K) (present bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	element, ok := c.index[key]
	if !ok {
		return false
	}
	c.order.Remove(element)
	delete(c.index, key)
	return true
}

func (c *Cache[K, V]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *Cache[K, V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order.Init()
	c.index = make(map[K]*list.Element)
}
