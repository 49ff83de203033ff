// Package cache holds generated answers keyed by normalised question text.
package cache

import (
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/fyrsmithlabs/ragchat/internal/metrics"
)

// Defaults.
const (
	DefaultTTL        = time.Hour
	DefaultMaxEntries = 10000
)

// Entry is one cached value with its creation time.
type Entry[V any] struct {
	Value     V
	CreatedAt time.Time
}

// Options configures a ResponseCache.
type Options struct {
	TTL        time.Duration
	MaxEntries int
	Metrics    *metrics.Metrics
	Clock      func() time.Time
}

// ResponseCache is a bounded LRU whose entries expire lazily: an entry at
// least TTL old is treated as absent and removed when read.
type ResponseCache[V any] struct {
	mu      sync.Mutex
	lru     *lru.Cache[string, Entry[V]]
	ttl     time.Duration
	metrics *metrics.Metrics
	now     func() time.Time
}

// New creates a ResponseCache.
func New[V any](opts Options) (*ResponseCache[V], error) {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = DefaultMaxEntries
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	l, err := lru.New[string, Entry[V]](opts.MaxEntries)
	if err != nil {
		return nil, err
	}
	return &ResponseCache[V]{
		lru:     l,
		ttl:     opts.TTL,
		metrics: opts.Metrics,
		now:     opts.Clock,
	}, nil
}

// Key normalises a question into a cache key.
func Key(question string) string {
	return strings.ToLower(strings.TrimSpace(question))
}

// Get returns the value cached for question if it is younger than the TTL.
func (c *ResponseCache[V]) Get(question string) (V, bool) {
	key := Key(question)

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lru.Get(key)
	if ok && c.now().Sub(e.CreatedAt) >= c.ttl {
		c.lru.Remove(key)
		c.metrics.CacheSize.Set(float64(c.lru.Len()))
		ok = false
	}
	if !ok {
		c.metrics.CacheMisses.Inc()
		var zero V
		return zero, false
	}
	c.metrics.CacheHits.Inc()
	return e.Value, true
}

// Put stores value for question, stamped with the current time.
func (c *ResponseCache[V]) Put(question string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(Key(question), Entry[V]{Value: value, CreatedAt: c.now()})
	c.metrics.CacheSize.Set(float64(c.lru.Len()))
}

// Len returns the number of entries, including expired ones not yet read.
func (c *ResponseCache[V]) Len() int {
	return c.lru.Len()
}

// Purge removes every entry.
func (c *ResponseCache[V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
	c.metrics.CacheSize.Set(0)
}

// TTL returns the entry lifetime.
func (c *ResponseCache[V]) TTL() time.Duration { return c.ttl }
