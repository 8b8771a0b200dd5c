package dataset

import (
	"container/list"
	"fmt"
	"sync"

	"github.com/tsawler/go-latent/tensor"
)

// CachedDataset keeps the most recently used decoded samples of a parent
// dataset in memory. Returned tensors are shared and must not be modified.
type CachedDataset struct {
	parent Dataset

	mu       sync.Mutex
	entries  map[int]*list.Element
	lru      *list.List
	maxItems int

	hits   int64
	misses int64
}

type cacheEntry struct {
	idx   int
	image *tensor.Tensor
	label int
}

// CacheStats holds cache statistics
type CacheStats struct {
	Size    int
	MaxSize int
	Hits    int64
	Misses  int64
	HitRate float64
}

// String returns a string representation of cache stats
func (cs CacheStats) String() string {
	return fmt.Sprintf("Cache: %d/%d items, Hits: %d, Misses: %d, Hit Rate: %.1f%%",
		cs.Size, cs.MaxSize, cs.Hits, cs.Misses, cs.HitRate)
}

// NewCachedDataset wraps parent with an LRU of at most maxItems samples
func NewCachedDataset(parent Dataset, maxItems int) *CachedDataset {
	if maxItems < 1 {
		maxItems = 1
	}
	return &CachedDataset{
		parent:   parent,
		entries:  make(map[int]*list.Element),
		lru:      list.New(),
		maxItems: maxItems,
	}
}

// Len returns the parent's length
func (c *CachedDataset) Len() int {
	return c.parent.Len()
}

// Get serves idx from the cache, loading it from the parent on a miss.
// Concurrent misses on the same index may both load it.
func (c *CachedDataset) Get(idx int) (*tensor.Tensor, int, error) {
	c.mu.Lock()
	if elem, ok := c.entries[idx]; ok {
		c.lru.MoveToFront(elem)
		c.hits++
		e := elem.Value.(*cacheEntry)
		c.mu.Unlock()
		return e.image, e.label, nil
	}
	c.misses++
	c.mu.Unlock()

	img, label, err := c.parent.Get(idx)
	if err != nil {
		return nil, 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[idx]; !ok {
		c.entries[idx] = c.lru.PushFront(&cacheEntry{idx: idx, image: img, label: label})
		for c.lru.Len() > c.maxItems {
			oldest := c.lru.Back()
			c.lru.Remove(oldest)
			delete(c.entries, oldest.Value.(*cacheEntry).idx)
		}
	}
	return img, label, nil
}

// Stats returns cache statistics
func (c *CachedDataset) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := CacheStats{
		Size:    c.lru.Len(),
		MaxSize: c.maxItems,
		Hits:    c.hits,
		Misses:  c.misses,
	}
	if total := c.hits + c.misses; total > 0 {
		stats.HitRate = float64(c.hits) / float64(total) * 100
	}
	return stats
}

// Clear drops every cached sample. Statistics stay cumulative.
func (c *CachedDataset) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[int]*list.Element)
	c.lru.Init()
}
