package metrics

import (
	"path"
	"sync"
	"sync/atomic"

	"github.com/eddy-backend/eddy/pkg/cache"
)

// CacheStats is the part of a cache the collector reads
type CacheStats interface {
	Metrics() *cache.Metrics
}

// Collector aggregates operation and principal cache metrics in process.
type Collector struct {
	requests sync.Map // operation -> *uint64
	errors   sync.Map // operation -> *uint64
	codes    sync.Map // grpc code name -> *uint64
	duration sync.Map // operation -> *durationValue

	cache CacheStats
}

type durationValue struct {
	mu           sync.Mutex
	totalSeconds float64
}

// CacheMetrics holds principal cache metrics.
type CacheMetrics struct {
	Hits        uint64
	Misses      uint64
	HitRate     float64
	KeysCurrent int64
	MemoryBytes int64
	Evictions   uint64
}

// OperationMetrics holds per-operation request metrics.
type OperationMetrics struct {
	RequestCounts        map[string]uint64
	ErrorCounts          map[string]uint64
	ErrorCodeCounts      map[string]uint64
	TotalDurationSeconds map[string]float64
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{}
}

// SetCache sets the cache whose statistics are reported.
func (c *Collector) SetCache(stats CacheStats) {
	c.cache = stats
}

// OperationName returns the operation part of a full gRPC method name
// ("/eddy.v1.Operations/getProject" -> "getProject").
func OperationName(fullMethod string) string {
	return path.Base(fullMethod)
}

// RecordRequest records an operation request.
func (c *Collector) RecordRequest(operation string) {
	atomic.AddUint64(counter(&c.requests, operation), 1)
}

// RecordError records a failed operation and its status code.
func (c *Collector) RecordError(operation, code string) {
	atomic.AddUint64(counter(&c.errors, operation), 1)
	atomic.AddUint64(counter(&c.codes, code), 1)
}

// RecordDuration records the duration of an operation in seconds.
func (c *Collector) RecordDuration(operation string, durationSeconds float64) {
	val, _ := c.duration.LoadOrStore(operation, &durationValue{})
	dv := val.(*durationValue)

	dv.mu.Lock()
	dv.totalSeconds += durationSeconds
	dv.mu.Unlock()
}

// GetCacheMetrics returns current principal cache metrics.
func (c *Collector) GetCacheMetrics() *CacheMetrics {
	if c.cache == nil {
		return &CacheMetrics{}
	}
	m := c.cache.Metrics()
	if m == nil {
		return &CacheMetrics{}
	}
	return &CacheMetrics{
		Hits:        m.Hits,
		Misses:      m.Misses,
		HitRate:     m.HitRate(),
		KeysCurrent: int64(m.Entries),
		MemoryBytes: m.Size,
		Evictions:   m.KeysEvicted,
	}
}

// GetOperationMetrics returns a snapshot of operation metrics.
func (c *Collector) GetOperationMetrics() *OperationMetrics {
	result := &OperationMetrics{
		RequestCounts:        snapshot(&c.requests),
		ErrorCounts:          snapshot(&c.errors),
		ErrorCodeCounts:      snapshot(&c.codes),
		TotalDurationSeconds: make(map[string]float64),
	}

	c.duration.Range(func(key, value interface{}) bool {
		dv := value.(*durationValue)
		dv.mu.Lock()
		result.TotalDurationSeconds[key.(string)] = dv.totalSeconds
		dv.mu.Unlock()
		return true
	})
	return result
}

func counter(m *sync.Map, key string) *uint64 {
	val, _ := m.LoadOrStore(key, new(uint64))
	return val.(*uint64)
}

func snapshot(m *sync.Map) map[string]uint64 {
	out := make(map[string]uint64)
	m.Range(func(key, value interface{}) bool {
		out[key.(string)] = atomic.LoadUint64(value.(*uint64))
		return true
	})
	return out
}
