package memorycache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/eddy-backend/eddy/pkg/cache"
)

// entryOverhead approximates the bytes used by one entry besides its key
const entryOverhead = 100

type entry[V any] struct {
	key       string
	value     V
	expiresAt time.Time
	size      int64
}

// Cache is a size-bounded LRU cache with TTL expiry.
// It is safe for concurrent use.
type Cache[V any] struct {
	mu sync.Mutex

	items     map[string]*list.Element
	evictList *list.List // front = most recently used

	maxSize     int64
	defaultTTL  time.Duration
	currentSize int64

	metrics *cache.Metrics // nil when metrics are disabled
	now     func() time.Time
}

var _ cache.Cache[int] = (*Cache[int])(nil)

// Config holds configuration for the memory cache.
type Config struct {
	// MaxSizeBytes bounds the approximate size of all entries. Least recently
	// used entries are evicted past it.
	MaxSizeBytes int64

	// DefaultTTL applies when Set is called without a TTL.
	DefaultTTL time.Duration

	EnableMetrics bool
}

// New creates a new memory cache with the given configuration.
func New[V any](config *Config) *Cache[V] {
	c := &Cache[V]{
		items:      make(map[string]*list.Element),
		evictList:  list.New(),
		maxSize:    config.MaxSizeBytes,
		defaultTTL: config.DefaultTTL,
		now:        time.Now,
	}
	if config.EnableMetrics {
		c.metrics = &cache.Metrics{}
	}
	return c
}

// Get retrieves a value and marks it as recently used.
func (c *Cache[V]) Get(ctx context.Context, key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	elem, ok := c.items[key]
	if !ok {
		c.miss()
		return zero, false
	}

	ent := elem.Value.(*entry[V])
	if !c.now().Before(ent.expiresAt) {
		c.removeElement(elem)
		c.miss()
		return zero, false
	}

	c.evictList.MoveToFront(elem)
	if c.metrics != nil {
		c.metrics.Hits++
	}
	return ent.value, true
}

// Set stores a value, evicting least recently used entries when over capacity.
func (c *Cache[V]) Set(ctx context.Context, key string, value V, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	size := int64(entryOverhead + len(key))

	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := c.now().Add(ttl)
	if elem, ok := c.items[key]; ok {
		ent := elem.Value.(*entry[V])
		c.currentSize += size - ent.size
		ent.value = value
		ent.expiresAt = expiresAt
		ent.size = size
		c.evictList.MoveToFront(elem)
		return nil
	}

	c.items[key] = c.evictList.PushFront(&entry[V]{key: key, value: value, expiresAt: expiresAt, size: size})
	c.currentSize += size
	if c.metrics != nil {
		c.metrics.KeysAdded++
	}

	for c.currentSize > c.maxSize && c.evictList.Len() > 1 {
		c.removeElement(c.evictList.Back())
		if c.metrics != nil {
			c.metrics.KeysEvicted++
		}
	}
	return nil
}

// Delete removes a value.
func (c *Cache[V]) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.removeElement(elem)
	}
	return nil
}

// Clear removes all entries.
func (c *Cache[V]) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*list.Element)
	c.evictList.Init()
	c.currentSize = 0
	return nil
}

// Close is a no-op for the memory cache.
func (c *Cache[V]) Close() error {
	return nil
}

// Metrics returns a snapshot of cache statistics.
func (c *Cache[V]) Metrics() *cache.Metrics {
	c.mu.Lock()
	defer c.mu.Unlock()

	m := &cache.Metrics{}
	if c.metrics != nil {
		*m = *c.metrics
	}
	m.Size = c.currentSize
	m.Entries = c.evictList.Len()
	return m
}

// Len returns the current number of entries, expired ones included until they are touched.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evictList.Len()
}

func (c *Cache[V]) miss() {
	if c.metrics != nil {
		c.metrics.Misses++
	}
}

// removeElement must be called with the lock held.
func (c *Cache[V]) removeElement(elem *list.Element) {
	c.evictList.Remove(elem)
	ent := elem.Value.(*entry[V])
	delete(c.items, ent.key)
	c.currentSize -= ent.size
}
