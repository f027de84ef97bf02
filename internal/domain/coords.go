package domain

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// toFloat converts JSON numbers and numeric strings to float64.
func toFloat(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case json.Number:
		n, err := t.Float64()
		if err != nil {
			return 0, false
		}
		f = n
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		f = n
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// validLatLon rejects out-of-range values and the 0,0 placeholder some feeds
// emit for unknown locations.
func validLatLon(lat, lon float64) bool {
	if lat == 0 && lon == 0 {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// ExtractLatLon is the single entry point for turning any coordinate-shaped
// value into a latitude/longitude pair. It accepts:
//
//   - GeoJSON geometry objects (first vertex is used)
//   - bare coordinate arrays in GeoJSON [lon, lat] order, at any nesting depth
//   - objects with lat/lon style keys
//   - "lat,lon" strings
func ExtractLatLon(v any) (LatLon, bool) {
	switch t := v.(type) {
	case map[string]any:
		if _, ok := t["coordinates"]; ok {
			return ExtractLatLon(t["coordinates"])
		}
		lat, okLat := firstFloat(t, "lat", "latitude", "Lat", "Latitude", "y")
		lon, okLon := firstFloat(t, "lon", "lng", "longitude", "Lon", "Longitude", "x")
		if okLat && okLon && validLatLon(lat, lon) {
			return LatLon{Lat: lat, Lon: lon}, true
		}
	case RawRecord:
		return ExtractLatLon(map[string]any(t))
	case []any:
		if len(t) == 0 {
			return LatLon{}, false
		}
		if _, nested := t[0].([]any); nested {
			return ExtractLatLon(t[0])
		}
		if len(t) >= 2 {
			lon, okLon := toFloat(t[0])
			lat, okLat := toFloat(t[1])
			if okLat && okLon && validLatLon(lat, lon) {
				return LatLon{Lat: lat, Lon: lon}, true
			}
		}
	case string:
		parts := strings.Split(t, ",")
		if len(parts) == 2 {
			lat, okLat := toFloat(parts[0])
			lon, okLon := toFloat(parts[1])
			if okLat && okLon && validLatLon(lat, lon) {
				return LatLon{Lat: lat, Lon: lon}, true
			}
		}
	}
	return LatLon{}, false
}

func firstFloat(m map[string]any, keys ...string) (float64, bool) {
	for _, k := range keys {
		if f, ok := toFloat(m[k]); ok {
			return f, true
		}
	}
	return 0, false
}

// ExtractGeometry converts a GeoJSON geometry object or bare coordinate array
// into a line geometry. Points and single coordinates yield nil.
func ExtractGeometry(v any) *Geometry {
	var (
		typ    string
		coords any
	)
	switch t := v.(type) {
	case map[string]any:
		typ, _ = t["type"].(string)
		coords = t["coordinates"]
		if typ == "Feature" {
			return ExtractGeometry(t["geometry"])
		}
	case []any:
		coords = t
	default:
		return nil
	}

	arr, ok := coords.([]any)
	if !ok || len(arr) == 0 {
		return nil
	}

	switch typ {
	case GeometryLineString, "MultiPoint":
		if l := toLine(arr); len(l) >= 2 {
			return NewLineString(l)
		}
		return nil
	case GeometryMultiLineString:
		return toMulti(arr)
	case "":
		switch arrayDepth(arr) {
		case 2:
			if l := toLine(arr); len(l) >= 2 {
				return NewLineString(l)
			}
		case 3:
			return toMulti(arr)
		}
	}
	return nil
}

func toMulti(arr []any) *Geometry {
	var lines []Line
	for _, part := range arr {
		inner, ok := part.([]any)
		if !ok {
			continue
		}
		if l := toLine(inner); len(l) >= 2 {
			lines = append(lines, l)
		}
	}
	switch len(lines) {
	case 0:
		return nil
	case 1:
		return NewLineString(lines[0])
	default:
		return NewMultiLineString(lines...)
	}
}

func toLine(arr []any) Line {
	l := make(Line, 0, len(arr))
	for _, pt := range arr {
		pair, ok := pt.([]any)
		if !ok || len(pair) < 2 {
			continue
		}
		lon, okLon := toFloat(pair[0])
		lat, okLat := toFloat(pair[1])
		if okLon && okLat && validLatLon(lat, lon) {
			l = append(l, LatLon{Lat: lat, Lon: lon})
		}
	}
	return l
}

// arrayDepth returns 1 for [x, y], 2 for [[x, y]], 3 for [[[x, y]]].
func arrayDepth(arr []any) int {
	depth := 1
	cur := arr
	for len(cur) > 0 {
		next, ok := cur[0].([]any)
		if !ok {
			break
		}
		depth++
		cur = next
	}
	return depth
}
