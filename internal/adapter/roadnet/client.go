package roadnet

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/road-event-etl/internal/domain"
	"github.com/couchcryptid/road-event-etl/internal/observability"
)

// FieldMap names the attribute columns of the road network layer.
type FieldMap struct {
	RouteNumber string
	RoutePrefix string // empty when the layer has no prefix column
	Direction   string // empty when segments are undirected
	Ramp        string // empty when ramps are not flagged
}

// DefaultFieldMap returns the column names used by most state DOT route layers.
func DefaultFieldMap() FieldMap {
	return FieldMap{
		RouteNumber: "ROUTE_NUMBER",
		RoutePrefix: "ROUTE_PREFIX",
		Direction:   "DIRECTION",
		Ramp:        "IS_RAMP",
	}
}

// Client implements domain.RoadNetwork against an ArcGIS-style feature
// service layer.
type Client struct {
	name       string
	baseURL    string // layer URL, e.g. https://gis.example.gov/arcgis/rest/services/Roads/FeatureServer/0
	fields     FieldMap
	httpClient *http.Client
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a road network client for the layer at baseURL.
func NewClient(name, baseURL string, fields FieldMap, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		fields:  fields,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		metrics: metrics,
		logger:  logger,
	}
}

// Name returns the network label used in geometry provenance.
func (c *Client) Name() string { return c.name }

// Segments queries the layer for lines of q.Route intersecting q.BBox.
func (c *Client) Segments(ctx context.Context, q domain.SegmentQuery) ([]domain.Segment, error) {
	params := url.Values{
		"where":        {c.whereClause(q.Route)},
		"geometry":     {envelope(q.BBox)},
		"geometryType": {"esriGeometryEnvelope"},
		"spatialRel":   {"esriSpatialRelIntersects"},
		"inSR":         {"4326"},
		"outSR":        {"4326"},
		"outFields":    {"*"},
		"f":            {"geojson"},
	}

	start := time.Now()
	segs, err := c.doRequest(ctx, c.baseURL+"/query?"+params.Encode())
	c.metrics.RoadnetAPIDuration.Observe(time.Since(start).Seconds())

	switch {
	case err != nil:
		c.metrics.RoadnetRequests.WithLabelValues("error").Inc()
		return nil, err
	case len(segs) == 0:
		c.metrics.RoadnetRequests.WithLabelValues("empty").Inc()
	default:
		c.metrics.RoadnetRequests.WithLabelValues("success").Inc()
	}
	c.logger.Debug("road network query",
		"route", q.Route.String(),
		"segments", len(segs),
		"duration", time.Since(start),
	)
	return segs, nil
}

func (c *Client) whereClause(r domain.Route) string {
	clause := fmt.Sprintf("%s = '%s'", c.fields.RouteNumber, sqlQuote(r.Number))
	if c.fields.RoutePrefix == "" {
		return clause
	}
	// State routes carry the state's own prefix, so only I and US are pinned.
	switch r.Prefix {
	case domain.PrefixInterstate, domain.PrefixUS:
		clause += fmt.Sprintf(" AND %s = '%s'", c.fields.RoutePrefix, r.Prefix)
	default:
		clause += fmt.Sprintf(" AND %s NOT IN ('%s', '%s')", c.fields.RoutePrefix, domain.PrefixInterstate, domain.PrefixUS)
	}
	return clause
}

func (c *Client) doRequest(ctx context.Context, fullURL string) ([]domain.Segment, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("road network request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("road network API error: status %d: %s", resp.StatusCode, body)
	}

	var fc featureCollection
	if err := json.NewDecoder(resp.Body).Decode(&fc); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	// ArcGIS reports query errors with a 200 status.
	if fc.Error != nil {
		return nil, fmt.Errorf("road network API error: code %d: %s", fc.Error.Code, fc.Error.Message)
	}

	var segs []domain.Segment
	for i, f := range fc.Features {
		segs = append(segs, c.toSegments(i, f)...)
	}
	return segs, nil
}

// toSegments turns one feature into one segment per line.
func (c *Client) toSegments(index int, f feature) []domain.Segment {
	g := domain.ExtractGeometry(f.Geometry)
	if g == nil {
		return nil
	}
	id := featureID(index, f)
	base := domain.Segment{
		RouteName: stringProp(f.Properties, "ROUTE_NAME"),
		Ramp:      parseRamp(f.Properties[c.fields.Ramp]),
	}
	if c.fields.Direction != "" {
		if d, ok := domain.ParseDirection(f.Properties[c.fields.Direction]); ok && d.Compass() {
			base.Direction = d
		}
	}

	out := make([]domain.Segment, 0, len(g.Lines))
	for n, l := range g.Lines {
		s := base
		s.Line = l
		s.ID = id
		if len(g.Lines) > 1 {
			s.ID = id + "/" + strconv.Itoa(n)
		}
		out = append(out, s)
	}
	return out
}

func featureID(index int, f feature) string {
	if f.ID != nil {
		switch v := f.ID.(type) {
		case string:
			return v
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	for _, key := range []string{"OBJECTID", "FID"} {
		if s := stringProp(f.Properties, key); s != "" {
			return s
		}
	}
	return strconv.Itoa(index)
}

func stringProp(props map[string]any, key string) string {
	switch v := props[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return ""
}

// parseRamp accepts the flag encodings seen in DOT layers: booleans, 0/1,
// and Y/N or yes/no text.
func parseRamp(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "y", "yes", "true", "1", "ramp":
			return true
		}
	}
	return false
}

func envelope(b domain.BBox) string {
	return fmt.Sprintf("%.6f,%.6f,%.6f,%.6f", b.MinLon, b.MinLat, b.MaxLon, b.MaxLat)
}

func sqlQuote(s string) string { return strings.ReplaceAll(s, "'", "''") }

// Feature service response types.

type featureCollection struct {
	Features []feature `json:"features"`
	Error    *apiError `json:"error"`
}

type feature struct {
	ID         any            `json:"id"`
	Geometry   map[string]any `json:"geometry"`
	Properties map[string]any `json:"properties"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}
