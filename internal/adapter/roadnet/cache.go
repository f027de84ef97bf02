package roadnet

import (
	"context"
	"fmt"
	"sync"

	"github.com/couchcryptid/road-event-etl/internal/domain"
	"github.com/couchcryptid/road-event-etl/internal/observability"
)

// CachedNetwork wraps a RoadNetwork with an in-memory LRU cache keyed by
// route and envelope rounded to two decimals.
type CachedNetwork struct {
	inner   domain.RoadNetwork
	cache   *lruCache[[]domain.Segment]
	metrics *observability.Metrics
}

// NewCachedNetwork creates a cache decorator around a road network.
func NewCachedNetwork(inner domain.RoadNetwork, maxEntries int, metrics *observability.Metrics) *CachedNetwork {
	return &CachedNetwork{
		inner:   inner,
		cache:   newLRUCache[[]domain.Segment](maxEntries),
		metrics: metrics,
	}
}

// Name returns the wrapped network's name.
func (c *CachedNetwork) Name() string { return c.inner.Name() }

func (c *CachedNetwork) Segments(ctx context.Context, q domain.SegmentQuery) ([]domain.Segment, error) {
	key := cacheKey(q)
	if segs, ok := c.cache.get(key); ok {
		c.metrics.RoadnetCache.WithLabelValues("hit").Inc()
		return segs, nil
	}
	c.metrics.RoadnetCache.WithLabelValues("miss").Inc()

	segs, err := c.inner.Segments(ctx, q)
	if err != nil {
		return nil, err
	}
	// Only cache non-empty results so a layer outage or a gap can be retried.
	if len(segs) > 0 {
		c.cache.put(key, segs)
	}
	return segs, nil
}

func cacheKey(q domain.SegmentQuery) string {
	b := q.BBox
	return fmt.Sprintf("%s|%.2f,%.2f,%.2f,%.2f", q.Route, b.MinLon, b.MinLat, b.MaxLon, b.MaxLat)
}

// lruCache is a simple thread-safe LRU cache.
type lruCache[V any] struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry[V]
	head       *entry[V] // most recently used
	tail       *entry[V] // least recently used
}

type entry[V any] struct {
	key   string
	value V
	prev  *entry[V]
	next  *entry[V]
}

func newLRUCache[V any](maxEntries int) *lruCache[V] {
	if maxEntries < 1 {
		maxEntries = 1
	}
	return &lruCache[V]{
		maxEntries: maxEntries,
		entries:    make(map[string]*entry[V]),
	}
}

func (c *lruCache[V]) get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache[V]) put(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		c.moveToFront(e)
		return
	}

	e := &entry[V]{key: key, value: value}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache[V]) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *lruCache[V]) moveToFront(e *entry[V]) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *lruCache[V]) addToFront(e *entry[V]) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache[V]) remove(e *entry[V]) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *lruCache[V]) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}
