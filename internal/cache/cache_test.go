package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/ragchat/internal/metrics"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "làm sao thêm sinh viên?", Key("  Làm sao THÊM sinh viên?\n"))
}

func TestResponseCache_GetPut(t *testing.T) {
	c, err := New[string](Options{Clock: (&clock{now: time.Unix(0, 0)}).Now})
	require.NoError(t, err)

	_, ok := c.Get("q")
	assert.False(t, ok)

	c.Put(" Question ", "answer")
	v, ok := c.Get("question")
	require.True(t, ok)
	assert.Equal(t, "answer", v)
	assert.Equal(t, 1, c.Len())
}

func TestResponseCache_ExpiresAtTTL(t *testing.T) {
	clk := &clock{now: time.Unix(0, 0)}
	m := metrics.NewNop()
	c, err := New[string](Options{TTL: time.Hour, Clock: clk.Now, Metrics: m})
	require.NoError(t, err)

	c.Put("q", "a")
	clk.Advance(59 * time.Minute)
	_, ok := c.Get("q")
	assert.True(t, ok)

	clk.Advance(time.Minute)
	_, ok = c.Get("q")
	assert.False(t, ok, "an entry exactly one TTL old is absent")
	assert.Equal(t, 0, c.Len(), "expired entries are removed on read")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheHits))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheMisses))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.CacheSize))
}

func TestResponseCache_Bounded(t *testing.T) {
	c, err := New[int](Options{MaxEntries: 2})
	require.NoError(t, err)

	c.Put("a", 1)
	c.Put("b", 2)
	c.Put("c", 3)
	assert.Equal(t, 2, c.Len())
	_, ok := c.Get("a")
	assert.False(t, ok, "least recently used entry is evicted")
}

func TestResponseCache_Purge(t *testing.T) {
	c, err := New[int](Options{})
	require.NoError(t, err)
	c.Put("a", 1)
	c.Purge()
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, DefaultTTL, c.TTL())
}

func TestResponseCache_Concurrent(t *testing.T) {
	c, err := New[int](Options{MaxEntries: 100})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.Put("k", i)
			_, _ = c.Get("k")
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, c.Len())
}
