package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

const (
	GeometryLineString      = "LineString"
	GeometryMultiLineString = "MultiLineString"

	earthRadiusKm = 6371.0
)

// LatLon is a WGS-84 coordinate in decimal degrees.
type LatLon struct {
	Lat float64
	Lon float64
}

// Line is an ordered list of coordinates.
type Line []LatLon

// Start returns the first coordinate. The caller checks len(l) > 0.
func (l Line) Start() LatLon { return l[0] }

// End returns the last coordinate. The caller checks len(l) > 0.
func (l Line) End() LatLon { return l[len(l)-1] }

// Geometry is a LineString (one line) or MultiLineString (several lines).
// It marshals to GeoJSON with [lon, lat] coordinate order.
type Geometry struct {
	Type  string
	Lines []Line
}

// NewLineString wraps a single line.
func NewLineString(l Line) *Geometry {
	return &Geometry{Type: GeometryLineString, Lines: []Line{l}}
}

// NewMultiLineString wraps several lines.
func NewMultiLineString(lines ...Line) *Geometry {
	return &Geometry{Type: GeometryMultiLineString, Lines: lines}
}

// Points flattens all lines into one coordinate list.
func (g *Geometry) Points() Line {
	if g == nil {
		return nil
	}
	var out Line
	for _, l := range g.Lines {
		out = append(out, l...)
	}
	return out
}

// Centerline returns the first line of the geometry, or nil.
func (g *Geometry) Centerline() Line {
	if g == nil || len(g.Lines) == 0 {
		return nil
	}
	return g.Lines[0]
}

type geoJSONGeometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

// MarshalJSON encodes the geometry as a GeoJSON geometry object.
func (g Geometry) MarshalJSON() ([]byte, error) {
	var coords any
	switch g.Type {
	case GeometryLineString:
		if len(g.Lines) != 1 {
			return nil, fmt.Errorf("LineString needs exactly one line, got %d", len(g.Lines))
		}
		coords = lineToPairs(g.Lines[0])
	case GeometryMultiLineString:
		multi := make([][][2]float64, len(g.Lines))
		for i, l := range g.Lines {
			multi[i] = lineToPairs(l)
		}
		coords = multi
	default:
		return nil, fmt.Errorf("unsupported geometry type %q", g.Type)
	}
	raw, err := json.Marshal(coords)
	if err != nil {
		return nil, err
	}
	return json.Marshal(geoJSONGeometry{Type: g.Type, Coordinates: raw})
}

// UnmarshalJSON decodes a GeoJSON LineString or MultiLineString.
func (g *Geometry) UnmarshalJSON(data []byte) error {
	var raw geoJSONGeometry
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch raw.Type {
	case GeometryLineString:
		var pairs [][]float64
		if err := json.Unmarshal(raw.Coordinates, &pairs); err != nil {
			return fmt.Errorf("decode LineString: %w", err)
		}
		l, err := pairsToLine(pairs)
		if err != nil {
			return err
		}
		*g = Geometry{Type: raw.Type, Lines: []Line{l}}
	case GeometryMultiLineString:
		var multi [][][]float64
		if err := json.Unmarshal(raw.Coordinates, &multi); err != nil {
			return fmt.Errorf("decode MultiLineString: %w", err)
		}
		lines := make([]Line, 0, len(multi))
		for _, pairs := range multi {
			l, err := pairsToLine(pairs)
			if err != nil {
				return err
			}
			lines = append(lines, l)
		}
		*g = Geometry{Type: raw.Type, Lines: lines}
	default:
		return fmt.Errorf("unsupported geometry type %q", raw.Type)
	}
	return nil
}

func lineToPairs(l Line) [][2]float64 {
	out := make([][2]float64, len(l))
	for i, p := range l {
		out[i] = [2]float64{p.Lon, p.Lat}
	}
	return out
}

func pairsToLine(pairs [][]float64) (Line, error) {
	l := make(Line, 0, len(pairs))
	for _, p := range pairs {
		if len(p) < 2 {
			return nil, errors.New("coordinate needs at least two values")
		}
		l = append(l, LatLon{Lat: p[1], Lon: p[0]})
	}
	return l, nil
}

// HaversineKm returns the great-circle distance between a and b in kilometers.
func HaversineKm(a, b LatLon) float64 {
	dLat := toRadians(b.Lat - a.Lat)
	dLon := toRadians(b.Lon - a.Lon)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(a.Lat))*math.Cos(toRadians(b.Lat))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

func toRadians(deg float64) float64 { return deg * math.Pi / 180 }

// BBox is a lon/lat envelope.
type BBox struct {
	MinLon, MinLat, MaxLon, MaxLat float64
}

// PaddedBBox returns the envelope of pts expanded by pad degrees on every side.
func PaddedBBox(pad float64, pts ...LatLon) BBox {
	b := BBox{MinLon: math.Inf(1), MinLat: math.Inf(1), MaxLon: math.Inf(-1), MaxLat: math.Inf(-1)}
	for _, p := range pts {
		b.MinLon = math.Min(b.MinLon, p.Lon)
		b.MinLat = math.Min(b.MinLat, p.Lat)
		b.MaxLon = math.Max(b.MaxLon, p.Lon)
		b.MaxLat = math.Max(b.MaxLat, p.Lat)
	}
	b.MinLon -= pad
	b.MinLat -= pad
	b.MaxLon += pad
	b.MaxLat += pad
	return b
}

// Union returns the smallest envelope covering b and o.
func (b BBox) Union(o BBox) BBox {
	return BBox{
		MinLon: math.Min(b.MinLon, o.MinLon),
		MinLat: math.Min(b.MinLat, o.MinLat),
		MaxLon: math.Max(b.MaxLon, o.MaxLon),
		MaxLat: math.Max(b.MaxLat, o.MaxLat),
	}
}

// Contains reports whether p lies inside the envelope, borders included.
func (b BBox) Contains(p LatLon) bool {
	return p.Lon >= b.MinLon && p.Lon <= b.MaxLon && p.Lat >= b.MinLat && p.Lat <= b.MaxLat
}

// Intersects reports whether any vertex of l falls inside the envelope.
func (b BBox) Intersects(l Line) bool {
	for _, p := range l {
		if b.Contains(p) {
			return true
		}
	}
	return false
}
