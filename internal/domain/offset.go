package domain

// metersPerDegree converts a metric offset to degrees. The same factor is
// used for latitude and longitude.
const metersPerDegree = 111320.0

// offsetCarriageways synthesizes the two carriageways of a divided highway
// from one centerline, following US right-hand traffic:
//
//	east-west route:   [westbound (shifted north), eastbound (shifted south)]
//	north-south route: [northbound (shifted west), southbound (shifted east)]
//
// It returns false when the route orientation cannot be inferred.
func offsetCarriageways(center Line, route Route, meters float64) (*Geometry, bool) {
	if len(center) < 2 {
		return nil, false
	}
	eastWest, ok := route.Orientation()
	if !ok {
		return nil, false
	}
	d := meters / metersPerDegree
	if eastWest {
		return NewMultiLineString(shiftLine(center, d, 0), shiftLine(center, -d, 0)), true
	}
	return NewMultiLineString(shiftLine(center, 0, -d), shiftLine(center, 0, d)), true
}

func shiftLine(l Line, dLat, dLon float64) Line {
	out := make(Line, len(l))
	for i, p := range l {
		out[i] = LatLon{Lat: p.Lat + dLat, Lon: p.Lon + dLon}
	}
	return out
}
