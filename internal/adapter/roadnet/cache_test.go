package roadnet

import (
	"context"
	"errors"
	"testing"

	"github.com/couchcryptid/road-event-etl/internal/domain"
	"github.com/couchcryptid/road-event-etl/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mock for cache tests ---

type countingNetwork struct {
	calls int
	segs  []domain.Segment
	err   error
}

func (m *countingNetwork) Name() string { return "Test DOT" }

func (m *countingNetwork) Segments(_ context.Context, _ domain.SegmentQuery) ([]domain.Segment, error) {
	m.calls++
	return m.segs, m.err
}

func oneSegment() []domain.Segment {
	return []domain.Segment{{ID: "1", Line: domain.Line{{Lat: 41.6, Lon: -93.6}, {Lat: 41.6, Lon: -93.5}}}}
}

// --- CachedNetwork tests ---

func TestCachedNetwork_CacheHit(t *testing.T) {
	inner := &countingNetwork{segs: oneSegment()}
	cached := NewCachedNetwork(inner, 10, observability.NewMetricsForTesting())

	s1, err := cached.Segments(context.Background(), i80Query())
	require.NoError(t, err)
	s2, err := cached.Segments(context.Background(), i80Query())
	require.NoError(t, err)

	assert.Equal(t, s1, s2)
	assert.Equal(t, 1, inner.calls, "should only call inner once")
	assert.Equal(t, "Test DOT", cached.Name())
}

func TestCachedNetwork_NearbyBBoxSharesKey(t *testing.T) {
	inner := &countingNetwork{segs: oneSegment()}
	cached := NewCachedNetwork(inner, 10, observability.NewMetricsForTesting())

	q := i80Query()
	_, _ = cached.Segments(context.Background(), q)
	q.BBox.MinLon += 0.001
	_, _ = cached.Segments(context.Background(), q)

	assert.Equal(t, 1, inner.calls)
}

func TestCachedNetwork_DifferentRoutesMiss(t *testing.T) {
	inner := &countingNetwork{segs: oneSegment()}
	cached := NewCachedNetwork(inner, 10, observability.NewMetricsForTesting())

	q := i80Query()
	_, _ = cached.Segments(context.Background(), q)
	q.Route = domain.Route{Prefix: domain.PrefixInterstate, Number: "35"}
	_, _ = cached.Segments(context.Background(), q)

	assert.Equal(t, 2, inner.calls)
}

func TestCachedNetwork_EmptyNotCached(t *testing.T) {
	inner := &countingNetwork{}
	cached := NewCachedNetwork(inner, 10, observability.NewMetricsForTesting())

	_, _ = cached.Segments(context.Background(), i80Query())
	_, _ = cached.Segments(context.Background(), i80Query())

	assert.Equal(t, 2, inner.calls)
}

func TestCachedNetwork_ErrorNotCached(t *testing.T) {
	inner := &countingNetwork{err: errors.New("timeout")}
	cached := NewCachedNetwork(inner, 10, observability.NewMetricsForTesting())

	_, err := cached.Segments(context.Background(), i80Query())
	require.Error(t, err)

	inner.err = nil
	inner.segs = oneSegment()
	segs, err := cached.Segments(context.Background(), i80Query())
	require.NoError(t, err)
	assert.Len(t, segs, 1)
	assert.Equal(t, 2, inner.calls)
}

// --- LRU cache unit tests ---

func TestLRUCache_BasicGetPut(t *testing.T) {
	c := newLRUCache[string](3)

	c.put("a", "A")
	c.put("b", "B")

	v, ok := c.get("a")
	assert.True(t, ok)
	assert.Equal(t, "A", v)

	_, ok = c.get("missing")
	assert.False(t, ok)
}

func TestLRUCache_Eviction(t *testing.T) {
	c := newLRUCache[string](2)

	c.put("a", "A")
	c.put("b", "B")
	c.put("c", "C") // evicts "a"

	_, ok := c.get("a")
	assert.False(t, ok, "a should have been evicted")

	v, ok := c.get("b")
	assert.True(t, ok)
	assert.Equal(t, "B", v)

	v, ok = c.get("c")
	assert.True(t, ok)
	assert.Equal(t, "C", v)
	assert.Equal(t, 2, c.len())
}

func TestLRUCache_AccessPromotesEntry(t *testing.T) {
	c := newLRUCache[string](2)

	c.put("a", "A")
	c.put("b", "B")

	c.get("a")

	// "b" is now least recently used.
	c.put("c", "C")

	_, ok := c.get("a")
	assert.True(t, ok, "a was accessed recently, should not be evicted")

	_, ok = c.get("b")
	assert.False(t, ok, "b should have been evicted")
}

func TestLRUCache_UpdateExisting(t *testing.T) {
	c := newLRUCache[string](2)

	c.put("a", "A1")
	c.put("a", "A2")

	v, ok := c.get("a")
	assert.True(t, ok)
	assert.Equal(t, "A2", v)
	assert.Equal(t, 1, c.len())
}
