// Package cache provides a bounded, time-expiring LRU cache for request results.
package cache

import (
	"container/list"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// DefaultCapacity is the maximum number of entries held before LRU eviction.
	DefaultCapacity = 100
	// DefaultTTL is the absolute age after which an entry is dropped on read.
	DefaultTTL = 24 * time.Hour
)

// Entry is a single cached value.
type Entry[T any] struct {
	Key      string
	Value    T
	StoredAt time.Time
}

// Stats contains cache performance statistics.
type Stats struct {
	Entries  int     `json:"entries"`
	Capacity int     `json:"capacity"`
	Hits     int64   `json:"hits"`
	Misses   int64   `json:"misses"`
	Evicted  int64   `json:"evicted"`
	HitRate  float64 `json:"hit_rate"`
}

// ResultCache is an LRU cache with absolute TTL expiration. Reads promote an
// entry to most-recently-used without refreshing its age.
type ResultCache[T any] struct {
	mu       sync.Mutex
	entries  map[string]*list.Element
	order    *list.List // front=most recent, back=least recent
	capacity int
	ttl      time.Duration
	nowFunc  func() time.Time

	hits    atomic.Int64
	misses  atomic.Int64
	evicted atomic.Int64
}

// Option configures a ResultCache.
type Option func(*options)

type options struct {
	capacity int
	ttl      time.Duration
	now      func() time.Time
}

// WithCapacity overrides DefaultCapacity.
func WithCapacity(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.capacity = n
		}
	}
}

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(o *options) {
		if ttl > 0 {
			o.ttl = ttl
		}
	}
}

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// New creates a ResultCache.
func New[T any](opts ...Option) *ResultCache[T] {
	o := options{capacity: DefaultCapacity, ttl: DefaultTTL, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &ResultCache[T]{
		entries:  make(map[string]*list.Element),
		order:    list.New(),
		capacity: o.capacity,
		ttl:      o.ttl,
		nowFunc:  o.now,
	}
}

// Get returns the cached value for key. An entry older than the TTL is
// removed and reported as a miss.
func (c *ResultCache[T]) Get(key string) (T, bool) {
	var zero T

	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		c.misses.Add(1)
		return zero, false
	}

	entry := el.Value.(*Entry[T])
	if c.nowFunc().Sub(entry.StoredAt) > c.ttl {
		c.order.Remove(el)
		delete(c.entries, key)
		c.misses.Add(1)
		return zero, false
	}

	c.order.MoveToFront(el)
	c.hits.Add(1)
	return entry.Value, true
}

// Set stores value under key. At capacity, the least-recently-used entry is
// evicted first.
func (c *ResultCache[T]) Set(key string, value T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.nowFunc()
	if el, ok := c.entries[key]; ok {
		el.Value = &Entry[T]{Key: key, Value: value, StoredAt: now}
		c.order.MoveToFront(el)
		return
	}

	if len(c.entries) >= c.capacity {
		if oldest := c.order.Back(); oldest != nil {
			c.order.Remove(oldest)
			delete(c.entries, oldest.Value.(*Entry[T]).Key)
			c.evicted.Add(1)
		}
	}

	c.entries[key] = c.order.PushFront(&Entry[T]{Key: key, Value: value, StoredAt: now})
}

// Clear removes all entries. Counters are kept.
func (c *ResultCache[T]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*list.Element)
	c.order.Init()
}

// Len returns the number of entries, including ones that expired but have
// not been read since.
func (c *ResultCache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns a snapshot of cache statistics.
func (c *ResultCache[T]) Stats() Stats {
	hits := c.hits.Load()
	misses := c.misses.Load()
	var rate float64
	if total := hits + misses; total > 0 {
		rate = float64(hits) / float64(total)
	}
	return Stats{
		Entries:  c.Len(),
		Capacity: c.capacity,
		Hits:     hits,
		Misses:   misses,
		Evicted:  c.evicted.Load(),
		HitRate:  rate,
	}
}
