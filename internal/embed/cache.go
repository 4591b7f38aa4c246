package embed

import (
	"container/list"
	"sync"
	"time"

	"github.com/concept-agent/backend/pkg/utils"
)

type cacheEntry struct {
	key       string
	embedding []float32
	storedAt  time.Time
}

// lruCache is a bounded in-memory embedding cache with TTL expiry and
// least-recently-used eviction. Keys are a digest of the exact query text.
// Safe for concurrent use.
type lruCache struct {
	mu         sync.Mutex
	ttl        time.Duration
	maxEntries int
	entries    map[string]*list.Element
	order      *list.List // front = most recently used

	now func() time.Time
}

func newLRUCache(ttl time.Duration, maxEntries int) *lruCache {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	return &lruCache{
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[string]*list.Element),
		order:      list.New(),
		now:        time.Now,
	}
}

func (c *lruCache) get(text string) ([]float32, bool) {
	key := utils.HashString(text)

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		return nil, false
	}

	entry := elem.Value.(*cacheEntry)
	if c.ttl > 0 && c.now().Sub(entry.storedAt) > c.ttl {
		c.order.Remove(elem)
		delete(c.entries, key)
		return nil, false
	}

	c.order.MoveToFront(elem)
	return entry.embedding, true
}

func (c *lruCache) put(text string, embedding []float32) {
	key := utils.HashString(text)

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		entry := elem.Value.(*cacheEntry)
		entry.embedding = embedding
		entry.storedAt = c.now()
		c.order.MoveToFront(elem)
		return
	}

	for len(c.entries) >= c.maxEntries {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
	}

	c.entries[key] = c.order.PushFront(&cacheEntry{
		key:       key,
		embedding: embedding,
		storedAt:  c.now(),
	})
}

func (c *lruCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *lruCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*list.Element)
	c.order.Init()
}
