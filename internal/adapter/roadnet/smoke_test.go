//go:build roadnet

package roadnet

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/couchcryptid/road-event-etl/internal/domain"
	"github.com/couchcryptid/road-event-etl/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests hit a live feature service layer and require ROADNET_URL.
// Run with: go test -tags=roadnet ./internal/adapter/roadnet/ -v -count=1

func smokeClient(t *testing.T) *Client {
	t.Helper()
	layer := os.Getenv("ROADNET_URL")
	if layer == "" {
		t.Fatal("ROADNET_URL must be set to run smoke tests")
	}
	fields := DefaultFieldMap()
	if v := os.Getenv("ROADNET_ROUTE_NUMBER_FIELD"); v != "" {
		fields.RouteNumber = v
	}
	if v := os.Getenv("ROADNET_ROUTE_PREFIX_FIELD"); v != "" {
		fields.RoutePrefix = v
	}
	return &Client{
		name:       "Smoke",
		baseURL:    layer,
		fields:     fields,
		httpClient: &http.Client{Timeout: 20 * time.Second},
		metrics:    observability.NewMetricsForTesting(),
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// I-80 east of Des Moines.
func smokeQuery() domain.SegmentQuery {
	return domain.SegmentQuery{
		Route: domain.Route{Prefix: domain.PrefixInterstate, Number: "80"},
		BBox:  domain.PaddedBBox(0.15, domain.LatLon{Lat: 41.65, Lon: -93.55}, domain.LatLon{Lat: 41.66, Lon: -93.40}),
	}
}

func TestSmoke_Segments(t *testing.T) {
	c := smokeClient(t)

	segs, err := c.Segments(context.Background(), smokeQuery())
	require.NoError(t, err)
	require.NotEmpty(t, segs)
	for _, s := range segs {
		assert.GreaterOrEqual(t, len(s.Line), 2)
	}
}

func TestSmoke_CachedNetwork(t *testing.T) {
	c := smokeClient(t)
	cached := NewCachedNetwork(c, 10, observability.NewMetricsForTesting())

	// First call: cache miss → real API call.
	s1, err := cached.Segments(context.Background(), smokeQuery())
	require.NoError(t, err)

	// Second call: cache hit → no API call.
	s2, err := cached.Segments(context.Background(), smokeQuery())
	require.NoError(t, err)
	assert.Equal(t, s1, s2)
}
