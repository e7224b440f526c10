package embedding

import (
	"container/list"
	"context"
	"sync"
)

// EmbeddingCache is an LRU cache for embeddings keyed by text.
type EmbeddingCache struct {
	capacity int
	cache    map[string]*list.Element
	lru      *list.List
	mu       sync.Mutex
}

type cacheEntry struct {
	key   string
	value []float32
}

// NewEmbeddingCache creates a new cache with the given capacity.
func NewEmbeddingCache(capacity int) *EmbeddingCache {
	return &EmbeddingCache{
		capacity: capacity,
		cache:    make(map[string]*list.Element),
		lru:      list.New(),
	}
}

// Get returns the cached embedding for key if present.
func (c *EmbeddingCache) Get(key string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.cache[key]; ok {
		c.lru.MoveToFront(elem)
		return elem.Value.(*cacheEntry).value, true
	}
	return nil, false
}

// Set stores the embedding for key, evicting the oldest entry if at capacity.
func (c *EmbeddingCache) Set(key string, value []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.cache[key]; ok {
		c.lru.MoveToFront(elem)
		elem.Value.(*cacheEntry).value = value
		return
	}

	entry := &cacheEntry{key: key, value: value}
	elem := c.lru.PushFront(entry)
	c.cache[key] = elem

	if c.lru.Len() > c.capacity {
		oldest := c.lru.Back()
		if oldest != nil {
			c.lru.Remove(oldest)
			delete(c.cache, oldest.Value.(*cacheEntry).key)
		}
	}
}

// Len returns the number of cached entries.
func (c *EmbeddingCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// EmbedBatchCached embeds texts through cache: texts already cached, or repeated within
// the batch, are sent to e only once. Results are in input order. A nil cache embeds directly.
func EmbedBatchCached(ctx context.Context, e Embedder, cache *EmbeddingCache, texts []string) ([][]float32, error) {
	if cache == nil {
		return e.EmbedBatch(ctx, texts)
	}
	out := make([][]float32, len(texts))
	var missing []string
	pending := make(map[string][]int)
	for i, text := range texts {
		if v, ok := cache.Get(text); ok {
			out[i] = v
			continue
		}
		if _, seen := pending[text]; !seen {
			missing = append(missing, text)
		}
		pending[text] = append(pending[text], i)
	}
	if len(missing) == 0 {
		return out, nil
	}
	embedded, err := e.EmbedBatch(ctx, missing)
	if err != nil {
		return nil, err
	}
	for j, text := range missing {
		cache.Set(text, embedded[j])
		for _, i := range pending[text] {
			out[i] = embedded[j]
		}
	}
	return out, nil
}
