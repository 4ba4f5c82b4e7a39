// Package cache implements the facade's fixed-capacity stat/readdir
// caches: most-recently-used promotion on Get, least-recently-used
// eviction past capacity, and prefix removal for subtree invalidation.
package cache

import (
	"container/list"
	"strings"
	"sync"

	"github.com/objectfs/vfscore/pkg/types"
)

// LRU is a thread-safe, entry-count-bounded cache keyed by path. Used by
// the facade for both the stat cache (values are types.FileInfo) and the
// readdir cache (values are []types.DirEntry).
type LRU struct {
	mu        sync.Mutex
	capacity  int
	items     map[string]*cacheItem
	evictList *list.List
	stats     types.CacheStats
}

// cacheItem represents an item in the cache
type cacheItem struct {
	key     string
	value   any
	element *list.Element
}

// New returns an LRU bounded to capacity entries.
func New(capacity int) *LRU {
	return &LRU{
		capacity:  capacity,
		items:     make(map[string]*cacheItem),
		evictList: list.New(),
		stats:     types.CacheStats{Capacity: capacity},
	}
}

// Get retrieves the value stored at key. A hit promotes the entry to
// most-recently-used.
func (c *LRU) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, exists := c.items[key]
	if !exists {
		c.stats.Misses++
		c.updateHitRate()
		return nil, false
	}

	c.evictList.MoveToFront(item.element)
	c.stats.Hits++
	c.updateHitRate()
	return item.value, true
}

// Put inserts value at key as most-recently-used, evicting the
// least-recently-used entry if the cache is over capacity.
func (c *LRU) Put(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if item, exists := c.items[key]; exists {
		item.value = value
		c.evictList.MoveToFront(item.element)
		return
	}

	newItem := &cacheItem{key: key, value: value}
	newItem.element = c.evictList.PushFront(newItem)
	c.items[key] = newItem

	c.evictIfNeeded()
}

// Remove deletes key, if present.
func (c *LRU) Remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeItem(key)
}

// RemoveByPrefix deletes every key equal to prefix or nested under it
// (key == prefix or key starting with prefix + "/"), for subtree
// invalidation on unmount or a recursive delete/move.
func (c *LRU) RemoveByPrefix(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var keysToDelete []string
	for key := range c.items {
		if c.keyMatches(key, prefix) {
			keysToDelete = append(keysToDelete, key)
		}
	}
	for _, key := range keysToDelete {
		c.removeItem(key)
	}
}

// Stats returns a point-in-time snapshot of cache counters.
func (c *LRU) Stats() types.CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := c.stats
	stats.Size = len(c.items)
	return stats
}

func (c *LRU) keyMatches(key, prefix string) bool {
	return key == prefix || strings.HasPrefix(key, prefix+"/")
}

func (c *LRU) removeItem(key string) {
	item, exists := c.items[key]
	if !exists {
		return
	}

	c.evictList.Remove(item.element)
	delete(c.items, key)
	c.stats.Evictions++
}

func (c *LRU) evictIfNeeded() {
	if c.capacity <= 0 {
		return
	}
	for len(c.items) > c.capacity {
		c.evictOldest()
	}
}

func (c *LRU) evictOldest() {
	element := c.evictList.Back()
	if element == nil {
		return
	}

	item := element.Value.(*cacheItem)
	c.removeItem(item.key)
}

func (c *LRU) updateHitRate() {
	total := c.stats.Hits + c.stats.Misses
	if total > 0 {
		c.stats.HitRate = float64(c.stats.Hits) / float64(total)
	}
}
