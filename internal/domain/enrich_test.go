package domain

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- fakes ---

type fakeNetwork struct {
	segs []Segment
	err  error

	mu      sync.Mutex
	queries []SegmentQuery
}

func (f *fakeNetwork) Name() string { return "Test Network" }

func (f *fakeNetwork) Segments(_ context.Context, q SegmentQuery) ([]Segment, error) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	f.mu.Unlock()
	return f.segs, f.err
}

func (f *fakeNetwork) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

type fakeRecorder struct {
	mu   sync.Mutex
	recs []GeometryRecord
}

func (f *fakeRecorder) Record(_ context.Context, rec GeometryRecord) {
	f.mu.Lock()
	f.recs = append(f.recs, rec)
	f.mu.Unlock()
}

type fakeLookup map[string]GeometryRecord

func (f fakeLookup) Lookup(_ context.Context, ids []string) (map[string]GeometryRecord, error) {
	out := map[string]GeometryRecord{}
	for _, id := range ids {
		if rec, ok := f[id]; ok {
			out[id] = rec
		}
	}
	return out, nil
}

// --- helpers ---

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var eastWestLine = Line{{Lat: 41.5, Lon: -93.5}, {Lat: 41.5, Lon: -93.4}}

func enrichEvent(id, corridor string, dir Direction, l Line) Event {
	return Event{
		ID:             id,
		EventType:      EventWorkZone,
		Corridor:       corridor,
		Direction:      dir,
		Latitude:       l.Start().Lat,
		Longitude:      l.Start().Lon,
		Geometry:       NewLineString(l),
		GeometrySource: GeometrySourceFeed,
		State:          "IA",
	}
}

func newTestEnricher(net RoadNetwork, rec GeometryRecorder) *Enricher {
	return NewEnricher(net, nil, rec, DefaultEnricherConfig(), discardLogger())
}

const offsetDeg = 12 / metersPerDegree

// --- tests ---

func TestEnrich_NoFeaturesBothDirectionsOffsets(t *testing.T) {
	rec := &fakeRecorder{}
	e := newTestEnricher(&fakeNetwork{}, rec)

	got := e.Enrich(context.Background(), enrichEvent("evt-1", "I-80", BothWays, eastWestLine))

	require.NotNil(t, got.Geometry)
	assert.Equal(t, GeometryMultiLineString, got.Geometry.Type)
	require.Len(t, got.Geometry.Lines, 2)
	west, east := got.Geometry.Lines[0], got.Geometry.Lines[1]
	for i := range eastWestLine {
		assert.InDelta(t, eastWestLine[i].Lat+offsetDeg, west[i].Lat, 1e-12)
		assert.InDelta(t, eastWestLine[i].Lat-offsetDeg, east[i].Lat, 1e-12)
		assert.Equal(t, eastWestLine[i].Lon, west[i].Lon)
	}
	assert.Equal(t, GeometrySourceOffset, got.GeometrySource)

	require.Len(t, rec.recs, 1)
	assert.Equal(t, "evt-1", rec.recs[0].EventID)
	assert.Equal(t, GeometrySourceOffset, rec.recs[0].Source)
}

func TestEnrich_NorthSouthOffsetsWestThenEast(t *testing.T) {
	line := Line{{Lat: 41.5, Lon: -93.6}, {Lat: 41.7, Lon: -93.6}}
	e := newTestEnricher(nil, nil)

	got := e.Enrich(context.Background(), enrichEvent("evt-1", "I-35", BothWays, line))

	require.Len(t, got.Geometry.Lines, 2)
	assert.InDelta(t, -93.6-offsetDeg, got.Geometry.Lines[0][0].Lon, 1e-12)
	assert.InDelta(t, -93.6+offsetDeg, got.Geometry.Lines[1][0].Lon, 1e-12)
}

func TestEnrich_NoFeaturesSingleDirectionUnchanged(t *testing.T) {
	rec := &fakeRecorder{}
	e := newTestEnricher(&fakeNetwork{}, rec)
	in := enrichEvent("evt-1", "I-80", Westbound, eastWestLine)

	got := e.Enrich(context.Background(), in)

	if diff := cmp.Diff(in, got); diff != "" {
		t.Errorf("event changed (-want +got):\n%s", diff)
	}
	assert.Empty(t, rec.recs)
}

func TestEnrich_NetworkErrorDegrades(t *testing.T) {
	e := newTestEnricher(&fakeNetwork{err: errors.New("503")}, nil)

	both := e.Enrich(context.Background(), enrichEvent("evt-1", "I-80", BothWays, eastWestLine))
	assert.Equal(t, GeometrySourceOffset, both.GeometrySource)

	single := e.Enrich(context.Background(), enrichEvent("evt-2", "I-80", Eastbound, eastWestLine))
	assert.Equal(t, GeometrySourceFeed, single.GeometrySource)
	assert.Equal(t, GeometryLineString, single.Geometry.Type)
}

func TestEnrich_UnorientedRouteKeepsCenterline(t *testing.T) {
	e := newTestEnricher(&fakeNetwork{}, nil)
	in := enrichEvent("evt-1", "SR-17", BothWays, eastWestLine)

	got := e.Enrich(context.Background(), in)

	assert.Equal(t, in.Geometry, got.Geometry)
	assert.Equal(t, GeometrySourceFeed, got.GeometrySource)
}

func TestEnrich_SkipsWithoutRouteOrPoints(t *testing.T) {
	net := &fakeNetwork{}
	e := newTestEnricher(net, nil)

	noRoute := enrichEvent("evt-1", "MAIN ST", BothWays, eastWestLine)
	assert.Equal(t, noRoute, e.Enrich(context.Background(), noRoute))

	noGeom := enrichEvent("evt-2", "I-80", BothWays, eastWestLine)
	noGeom.Geometry = nil
	assert.Equal(t, noGeom, e.Enrich(context.Background(), noGeom))

	assert.Zero(t, net.calls())
}

func TestEnrich_DirectionBreaksTie(t *testing.T) {
	eastbound := Segment{ID: "eb", Direction: Eastbound, Line: shiftLine(eastWestLine, 0.001, 0)}
	westbound := Segment{ID: "wb", Direction: Westbound, Line: shiftLine(eastWestLine, -0.001, 0)}
	require.Equal(t,
		segmentScore(eastWestLine.Start(), eastWestLine.End(), eastbound.Line),
		segmentScore(eastWestLine.Start(), eastWestLine.End(), westbound.Line))

	rec := &fakeRecorder{}
	e := newTestEnricher(&fakeNetwork{segs: []Segment{eastbound, westbound}}, rec)

	got := e.Enrich(context.Background(), enrichEvent("evt-1", "I-80", Westbound, eastWestLine))

	assert.Equal(t, NewLineString(westbound.Line), got.Geometry)
	assert.Equal(t, "Test Network All Routes", got.GeometrySource)
	require.Len(t, rec.recs, 1)
}

func TestEnrich_DirectionDoesNotOverrideDistance(t *testing.T) {
	// The matching carriageway is about 45 km away; the opposite one is adjacent.
	distant := Segment{ID: "wb", Direction: Westbound, Line: shiftLine(eastWestLine, -0.2, 0)}
	adjacent := Segment{ID: "eb", Direction: Eastbound, Line: shiftLine(eastWestLine, 0.0005, 0)}
	cfg := DefaultEnricherConfig()
	cfg.BBoxPad = 1
	e := NewEnricher(&fakeNetwork{segs: []Segment{distant, adjacent}}, nil, nil, cfg, discardLogger())

	got := e.Enrich(context.Background(), enrichEvent("evt-1", "I-80", Westbound, eastWestLine))

	assert.Equal(t, adjacent.Line, got.Geometry.Centerline())
}

func TestEnrich_DirectionWinsWithinTolerance(t *testing.T) {
	opposite := Segment{ID: "eb", Direction: Eastbound, Line: shiftLine(eastWestLine, 0.0002, 0)}
	matching := Segment{ID: "wb", Direction: Westbound, Line: shiftLine(eastWestLine, -0.001, 0)}
	e := newTestEnricher(&fakeNetwork{segs: []Segment{opposite, matching}}, nil)

	got := e.Enrich(context.Background(), enrichEvent("evt-1", "I-80", Westbound, eastWestLine))

	assert.Equal(t, matching.Line, got.Geometry.Centerline())
}

func TestEnrich_MultiPartGeometryNotTruncated(t *testing.T) {
	first := Line{{Lat: 41.5, Lon: -93.60}, {Lat: 41.5, Lon: -93.55}}
	second := Line{{Lat: 41.5, Lon: -93.40}, {Lat: 41.5, Lon: -93.35}}
	in := enrichEvent("evt-1", "I-80", BothWays, first)
	in.Geometry = NewMultiLineString(first, second)
	rec := &fakeRecorder{}
	e := newTestEnricher(&fakeNetwork{}, rec)

	got := e.Enrich(context.Background(), in)

	if diff := cmp.Diff(in, got); diff != "" {
		t.Errorf("event changed (-want +got):\n%s", diff)
	}
	assert.Empty(t, rec.recs)
}

func TestEnrich_RejectsDistantSegments(t *testing.T) {
	// Roughly 100 km south, still inside a generous envelope.
	far := Segment{ID: "far", Line: shiftLine(eastWestLine, -0.9, 0)}
	cfg := DefaultEnricherConfig()
	cfg.BBoxPad = 1
	e := NewEnricher(&fakeNetwork{segs: []Segment{far}}, nil, nil, cfg, discardLogger())
	in := enrichEvent("evt-1", "I-80", Westbound, eastWestLine)

	got := e.Enrich(context.Background(), in)

	assert.Equal(t, in, got)
}

func TestEnrich_RampPreference(t *testing.T) {
	ramp := Segment{ID: "ramp", Ramp: true, Line: shiftLine(eastWestLine, 0.0005, 0)}
	mainline := Segment{ID: "main", Line: shiftLine(eastWestLine, 0.002, 0)}
	net := &fakeNetwork{segs: []Segment{ramp, mainline}}
	e := newTestEnricher(net, nil)

	plain := enrichEvent("evt-1", "I-80", Eastbound, eastWestLine)
	plain.Description = "Right lane closed"
	got := e.Enrich(context.Background(), plain)
	assert.Equal(t, mainline.Line, got.Geometry.Centerline())

	onRamp := enrichEvent("evt-2", "I-80", Eastbound, eastWestLine)
	onRamp.Description = "Exit ramp closed at 1st Ave"
	got = e.Enrich(context.Background(), onRamp)
	assert.Equal(t, ramp.Line, got.Geometry.Centerline())
}

func TestEnrich_MatchedBothDirectionsIsOffset(t *testing.T) {
	road := Segment{ID: "road", Line: Line{{Lat: 41.5, Lon: -93.55}, {Lat: 41.5, Lon: -93.5}, {Lat: 41.5, Lon: -93.4}, {Lat: 41.5, Lon: -93.35}}}
	e := newTestEnricher(&fakeNetwork{segs: []Segment{road}}, nil)

	got := e.Enrich(context.Background(), enrichEvent("evt-1", "I-80", BothWays, eastWestLine))

	assert.Equal(t, "Test Network All Routes", got.GeometrySource)
	require.Equal(t, GeometryMultiLineString, got.Geometry.Type)
	// Trimmed to the two vertices nearest the event endpoints.
	require.Len(t, got.Geometry.Lines[0], 2)
	assert.InDelta(t, -93.5, got.Geometry.Lines[0][0].Lon, 1e-12)
	assert.InDelta(t, 41.5+offsetDeg, got.Geometry.Lines[0][0].Lat, 1e-12)
}

func TestTrimToEndpoints(t *testing.T) {
	l := Line{{Lat: 0, Lon: 1}, {Lat: 0, Lon: 2}, {Lat: 0, Lon: 3}, {Lat: 0, Lon: 4}}

	assert.Equal(t, Line{{Lat: 0, Lon: 2}, {Lat: 0, Lon: 3}},
		trimToEndpoints(l, LatLon{Lat: 0, Lon: 2.1}, LatLon{Lat: 0, Lon: 2.9}))
	assert.Equal(t, Line{{Lat: 0, Lon: 3}, {Lat: 0, Lon: 2}},
		trimToEndpoints(l, LatLon{Lat: 0, Lon: 2.9}, LatLon{Lat: 0, Lon: 2.1}))
	assert.Equal(t, l, trimToEndpoints(l, LatLon{Lat: 0, Lon: 2}, LatLon{Lat: 0, Lon: 2}))
}

func TestEnrichBatch_OneCallPerRoute(t *testing.T) {
	net := &fakeNetwork{}
	rec := &fakeRecorder{}
	e := newTestEnricher(net, rec)

	northSouth := Line{{Lat: 41.5, Lon: -93.6}, {Lat: 41.7, Lon: -93.6}}
	further := Line{{Lat: 41.6, Lon: -92.0}, {Lat: 41.6, Lon: -91.9}}
	in := []Event{
		enrichEvent("a", "I-80", BothWays, eastWestLine),
		enrichEvent("b", "I 080", Westbound, further),
		enrichEvent("c", "I-35", BothWays, northSouth),
		enrichEvent("d", "Main St", BothWays, eastWestLine),
	}

	out := e.EnrichBatch(context.Background(), in)

	require.Len(t, out, 4)
	assert.Equal(t, 2, net.calls())
	assert.Equal(t, GeometrySourceOffset, out[0].GeometrySource)
	assert.Equal(t, GeometrySourceFeed, out[1].GeometrySource)
	assert.Equal(t, GeometrySourceOffset, out[2].GeometrySource)
	assert.Equal(t, GeometrySourceFeed, out[3].GeometrySource)
	assert.Len(t, rec.recs, 2)

	// The I-80 query covers both events' envelopes.
	for _, q := range net.queries {
		if q.Route.String() != "I-80" {
			continue
		}
		assert.True(t, q.BBox.Contains(eastWestLine.Start()))
		assert.True(t, q.BBox.Contains(further.End()))
	}

	// Input is untouched.
	assert.Equal(t, GeometryLineString, in[0].Geometry.Type)
}

func TestEnrichBatch_ReusesStoredGeometry(t *testing.T) {
	stored := NewMultiLineString(eastWestLine, eastWestLine)
	lookup := fakeLookup{"a": {EventID: "a", Geometry: stored, Source: "Test Network All Routes"}}
	net := &fakeNetwork{}
	e := NewEnricher(net, lookup, nil, DefaultEnricherConfig(), discardLogger())

	out := e.EnrichBatch(context.Background(), []Event{enrichEvent("a", "I-80", BothWays, eastWestLine)})

	assert.Zero(t, net.calls())
	assert.Equal(t, stored, out[0].Geometry)
	assert.Equal(t, "Test Network All Routes", out[0].GeometrySource)
}
