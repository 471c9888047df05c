package cache

import (
	"context"
	"time"
)

// Cache is a keyed store of values with per-entry expiry.
type Cache[V any] interface {
	// Get returns the value and true if present and not expired.
	Get(ctx context.Context, key string) (V, bool)

	// Set stores a value. A ttl of zero or less uses the cache's default TTL.
	Set(ctx context.Context, key string, value V, ttl time.Duration) error

	// Delete removes a value. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Clear removes all entries.
	Clear(ctx context.Context) error

	// Close releases resources held by the cache.
	Close() error

	// Metrics returns cache statistics.
	Metrics() *Metrics
}

// Metrics holds cache performance statistics.
type Metrics struct {
	Hits        uint64
	Misses      uint64
	KeysAdded   uint64
	KeysEvicted uint64
	Size        int64 // Approximate bytes held
	Entries     int
}

// HitRate returns the cache hit rate (0.0 to 1.0).
func (m *Metrics) HitRate() float64 {
	total := m.Hits + m.Misses
	if total == 0 {
		return 0.0
	}
	return float64(m.Hits) / float64(total)
}
