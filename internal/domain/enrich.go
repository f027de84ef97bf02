package domain

import (
	"context"
	"log/slog"
	"math"
	"slices"

	"golang.org/x/sync/errgroup"
)

// Geometry provenance tags.
const (
	GeometrySourceFeed   = "Original Feed Geometry"
	GeometrySourceOffset = "Original Feed Geometry (offset)"
)

// NetworkGeometrySource is the provenance tag for geometry matched against
// the named road network.
func NetworkGeometrySource(network string) string { return network + " All Routes" }

// EnricherConfig holds the matching constants. They were tuned against one
// region's network and are expected to be overridden per deployment.
type EnricherConfig struct {
	BBoxPad      float64 // degrees added on every side of the event envelope
	MaxMatchKm   float64 // candidates scoring above this are rejected
	OffsetMeters float64 // carriageway offset for bidirectional events
	Workers      int     // concurrent road-network calls in EnrichBatch
}

// DefaultEnricherConfig returns the stock matching constants.
func DefaultEnricherConfig() EnricherConfig {
	return EnricherConfig{BBoxPad: 0.15, MaxMatchKm: 50, OffsetMeters: 12, Workers: 4}
}

// Enricher refines event geometry against a road network. It never fails an
// event: on any problem the event keeps its original geometry, or gets an
// offset pair when it is bidirectional.
type Enricher struct {
	network  RoadNetwork      // nil disables matching
	lookup   GeometryLookup   // nil disables the cache read
	recorder GeometryRecorder // nil disables persistence
	cfg      EnricherConfig
	logger   *slog.Logger
}

// NewEnricher creates an Enricher. Any collaborator may be nil.
func NewEnricher(network RoadNetwork, lookup GeometryLookup, recorder GeometryRecorder, cfg EnricherConfig, logger *slog.Logger) *Enricher {
	def := DefaultEnricherConfig()
	if cfg.BBoxPad <= 0 {
		cfg.BBoxPad = def.BBoxPad
	}
	if cfg.MaxMatchKm <= 0 {
		cfg.MaxMatchKm = def.MaxMatchKm
	}
	if cfg.OffsetMeters <= 0 {
		cfg.OffsetMeters = def.OffsetMeters
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Enricher{network: network, lookup: lookup, recorder: recorder, cfg: cfg, logger: logger}
}

// Enrich refines a single event with its own road-network query.
func (e *Enricher) Enrich(ctx context.Context, ev Event) Event {
	route, pts, ok := enrichable(ev)
	if !ok {
		return ev
	}
	var (
		segs []Segment
		err  error
	)
	if e.network != nil {
		segs, err = e.network.Segments(ctx, SegmentQuery{Route: route, BBox: e.envelope(pts)})
	}
	return e.apply(ctx, ev, route, segs, err)
}

// EnrichBatch enriches a whole cycle. Geometries already in the store are
// reused; the rest are grouped by route so each distinct route costs one
// road-network call, with at most cfg.Workers calls in flight. The input
// slice is not modified.
func (e *Enricher) EnrichBatch(ctx context.Context, events []Event) []Event {
	out := slices.Clone(events)
	cached := e.cached(ctx, out)

	groups := make(map[Route][]int)
	var order []Route
	for i, ev := range out {
		if rec, ok := cached[ev.ID]; ok && rec.Geometry != nil {
			out[i].Geometry = rec.Geometry
			out[i].GeometrySource = rec.Source
			continue
		}
		route, _, ok := enrichable(ev)
		if !ok {
			continue
		}
		if _, seen := groups[route]; !seen {
			order = append(order, route)
		}
		groups[route] = append(groups[route], i)
	}

	var g errgroup.Group
	g.SetLimit(e.cfg.Workers)
	for _, route := range order {
		idx := groups[route]
		g.Go(func() error {
			var (
				segs []Segment
				err  error
			)
			if e.network != nil {
				segs, err = e.network.Segments(ctx, SegmentQuery{Route: route, BBox: e.unionEnvelope(out, idx)})
			}
			// Each goroutine owns the indices of its route.
			for _, i := range idx {
				out[i] = e.apply(ctx, out[i], route, segs, err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (e *Enricher) cached(ctx context.Context, events []Event) map[string]GeometryRecord {
	if e.lookup == nil || len(events) == 0 {
		return nil
	}
	ids := make([]string, len(events))
	for i, ev := range events {
		ids[i] = ev.ID
	}
	recs, err := e.lookup.Lookup(ctx, ids)
	if err != nil {
		e.logger.Warn("geometry store lookup failed", "events", len(ids), "error", err)
		return nil
	}
	return recs
}

// enrichable extracts the route and the event's points, reporting false when
// the corridor has no route number or the geometry has fewer than two points.
func enrichable(ev Event) (Route, Line, bool) {
	route, ok := ParseRoute(ev.Corridor)
	if !ok {
		return Route{}, nil, false
	}
	pts := ev.Geometry.Points()
	if len(pts) < 2 {
		return Route{}, nil, false
	}
	return route, pts, true
}

func (e *Enricher) envelope(pts Line) BBox {
	return PaddedBBox(e.cfg.BBoxPad, pts.Start(), pts.End())
}

func (e *Enricher) unionEnvelope(events []Event, idx []int) BBox {
	var bb BBox
	for n, i := range idx {
		pts := events[i].Geometry.Points()
		if n == 0 {
			bb = e.envelope(pts)
			continue
		}
		bb = bb.Union(e.envelope(pts))
	}
	return bb
}

// apply picks the best segment for ev or falls back, then records the result.
func (e *Enricher) apply(ctx context.Context, ev Event, route Route, segs []Segment, err error) Event {
	if err != nil {
		e.logger.Warn("road network lookup failed",
			"event_id", ev.ID,
			"route", route.String(),
			"error", err,
		)
	}
	pts := ev.Geometry.Points()
	start, end := pts.Start(), pts.End()

	if seg, ok := e.bestSegment(ev, start, end, segs); ok {
		line := trimToEndpoints(seg.Line, start, end)
		ev.Geometry = NewLineString(line)
		if ev.Direction == BothWays {
			if off, ok := offsetCarriageways(line, route, e.cfg.OffsetMeters); ok {
				ev.Geometry = off
			}
		}
		ev.GeometrySource = NetworkGeometrySource(e.network.Name())
		e.record(ctx, ev)
		return ev
	}

	// A multi-part feed geometry has no single centerline to offset.
	if ev.Direction != BothWays || len(ev.Geometry.Lines) != 1 {
		return ev
	}
	off, ok := offsetCarriageways(ev.Geometry.Centerline(), route, e.cfg.OffsetMeters)
	if !ok {
		return ev
	}
	ev.Geometry = off
	ev.GeometrySource = GeometrySourceOffset
	e.record(ctx, ev)
	return ev
}

type scored struct {
	seg   Segment
	score float64
}

// directionToleranceKm is how much worse than the best score a segment
// matching the event's compass direction may score and still be chosen.
const directionToleranceKm = 0.5

// bestSegment scores candidates by endpoint proximity in either orientation.
// Candidates over the distance threshold or outside the event envelope are
// dropped, and non-ramp segments win unless the description mentions a ramp.
// Among segments scoring within directionToleranceKm of the best, one matching
// the event's compass direction wins. Ties keep the earlier segment.
func (e *Enricher) bestSegment(ev Event, start, end LatLon, segs []Segment) (Segment, bool) {
	bbox := PaddedBBox(e.cfg.BBoxPad, start, end)
	var cands []scored
	for _, s := range segs {
		if len(s.Line) < 2 || !bbox.Intersects(s.Line) {
			continue
		}
		sc := segmentScore(start, end, s.Line)
		if sc > e.cfg.MaxMatchKm {
			continue
		}
		cands = append(cands, scored{seg: s, score: sc})
	}

	if !mentionsRamp(ev.Description) {
		cands = preferred(cands, func(c scored) bool { return !c.seg.Ramp })
	}

	best, found := lowest(cands)
	if !found || !ev.Direction.Compass() {
		return best.seg, found
	}
	limit := best.score + directionToleranceKm
	var near []scored
	for _, c := range cands {
		if c.score <= limit && c.seg.Direction == ev.Direction {
			near = append(near, c)
		}
	}
	if match, ok := lowest(near); ok {
		return match.seg, true
	}
	return best.seg, true
}

func lowest(cands []scored) (scored, bool) {
	best, found := scored{score: math.Inf(1)}, false
	for _, c := range cands {
		if c.score < best.score {
			best, found = c, true
		}
	}
	return best, found
}

// preferred narrows cands to those satisfying keep, unless none do.
func preferred(cands []scored, keep func(scored) bool) []scored {
	var out []scored
	for _, c := range cands {
		if keep(c) {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		return cands
	}
	return out
}

func segmentScore(start, end LatLon, l Line) float64 {
	forward := HaversineKm(start, l.Start()) + HaversineKm(end, l.End())
	reverse := HaversineKm(start, l.End()) + HaversineKm(end, l.Start())
	return math.Min(forward, reverse)
}

func mentionsRamp(desc string) bool {
	return hasWord(keywordText(desc), "ramp")
}

// trimToEndpoints cuts l down to the vertices nearest start and end, oriented
// from start to end. A cut shorter than two points returns l unchanged.
func trimToEndpoints(l Line, start, end LatLon) Line {
	i, j := nearestVertex(l, start), nearestVertex(l, end)
	if i == j {
		return l
	}
	if i < j {
		return slices.Clone(l[i : j+1])
	}
	out := slices.Clone(l[j : i+1])
	slices.Reverse(out)
	return out
}

func nearestVertex(l Line, p LatLon) int {
	best, bestD := 0, math.Inf(1)
	for i, v := range l {
		if d := HaversineKm(p, v); d < bestD {
			best, bestD = i, d
		}
	}
	return best
}

func (e *Enricher) record(ctx context.Context, ev Event) {
	if e.recorder == nil {
		return
	}
	now := clock.Now().UTC()
	e.recorder.Record(ctx, GeometryRecord{
		EventID:        ev.ID,
		StateKey:       ev.State,
		Geometry:       ev.Geometry,
		Direction:      ev.Direction,
		Source:         ev.GeometrySource,
		CreatedAt:      now,
		UpdatedAt:      now,
		EventStartTime: ev.StartTime,
		EventEndTime:   ev.EndTime,
	})
}
