package workitems

import (
	"container/list"
	"sync"

	"mason-engine/internal/models"
)

// itemCache is a thread-safe LRU cache of work items. Items are
// immutable once approved, so cached copies stay valid.
type itemCache struct {
	capacity int
	cache    map[string]*list.Element
	lru      *list.List
	mu       sync.RWMutex
}

// cacheEntry represents one cached item keyed by its id
type cacheEntry struct {
	key  string
	item *models.WorkItem
}

// newItemCache creates a new LRU cache with the specified capacity
func newItemCache(capacity int) *itemCache {
	return &itemCache{
		capacity: capacity,
		cache:    make(map[string]*list.Element),
		lru:      list.New(),
	}
}

// Get retrieves an item from the cache
// Returns the item and true if found, nil and false otherwise
func (c *itemCache) Get(key string) (*models.WorkItem, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, exists := c.cache[key]; exists {
		// Move to front (most recently used)
		c.lru.MoveToFront(elem)
		return elem.Value.(*cacheEntry).item, true
	}
	return nil, false
}

// Put adds or updates an item in the cache
func (c *itemCache) Put(key string, item *models.WorkItem) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// If key exists, update and move to front
	if elem, exists := c.cache[key]; exists {
		c.lru.MoveToFront(elem)
		elem.Value.(*cacheEntry).item = item
		return
	}

	// Evict oldest if at capacity
	if c.lru.Len() >= c.capacity {
		oldest := c.lru.Back()
		if oldest != nil {
			c.lru.Remove(oldest)
			delete(c.cache, oldest.Value.(*cacheEntry).key)
		}
	}

	// Add new entry
	entry := &cacheEntry{key: key, item: item}
	elem := c.lru.PushFront(entry)
	c.cache[key] = elem
}

// Len returns the current number of items in the cache
func (c *itemCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lru.Len()
}

// Remove drops a single key from the cache
func (c *itemCache) Remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, exists := c.cache[key]; exists {
		c.lru.Remove(elem)
		delete(c.cache, key)
	}
}

// Clear removes all items from the cache
func (c *itemCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = make(map[string]*list.Element)
	c.lru = list.New()
}
