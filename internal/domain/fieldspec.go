package domain

// ignoredKeys are structural keys that never carry event data on their own.
var ignoredKeys = []string{"type", "bbox", "geometry", "properties", "properties.core_details"}

func paths(exprs ...string) []Accessor {
	out := make([]Accessor, len(exprs))
	for i, e := range exprs {
		out[i] = Path(e)
	}
	return out
}

// DefaultFieldSpecs is the candidate table for every canonical field. WZDx
// names (nested Feature form, then flattened) come first; vendor and legacy
// spellings follow in the order they should win.
func DefaultFieldSpecs() map[Field]FieldSpec {
	return map[Field]FieldSpec{
		FieldID: {
			Standard:  paths("id", "properties.core_details.id", "properties.id"),
			Legacy:    paths("event_id", "eventId", "EventId", "EventID", "eventid", "identifier", "uid", "uuid", "ID", "Id", "@id"),
			Normalize: normalizeID,
		},
		FieldEventType: {
			Standard: paths("properties.core_details.event_type", "event_type"),
			Legacy: paths("eventType", "EventType", "event_category", "category", "Category",
				"classification", "type_event", "eventSubType", "type", "Type"),
			Normalize: normalizeEventType,
		},
		FieldSeverity: {
			Standard:  paths("properties.vehicle_impact", "vehicle_impact", "severity"),
			Legacy:    paths("Severity", "impact", "Impact", "priority", "Priority", "level", "impact_level"),
			Normalize: normalizeSeverity,
		},
		FieldRoadStatus: {
			Standard: paths("properties.vehicle_impact", "vehicle_impact", "road_status"),
			Legacy: paths("roadStatus", "RoadStatus", "status", "Status", "closure_status", "closureStatus",
				"lane_status", "event_status"),
			Normalize: normalizeRoadStatus,
		},
		FieldCorridor: {
			Standard: paths("properties.core_details.road_names", "road_names"),
			Legacy: paths("roadNames", "roadName", "road_name", "RoadName", "roadway_name", "roadwayName",
				"route", "Route", "route_name", "corridor", "Corridor", "highway", "Highway",
				"roadway", "road", "location.route", "location.road_name"),
			Normalize: normalizeCorridorValue,
		},
		FieldDirection: {
			Standard: paths("properties.core_details.direction", "direction"),
			Legacy: paths("Direction", "travel_direction", "travelDirection", "direction_of_travel",
				"dir", "heading", "bound", "location.direction"),
			Normalize: normalizeDirection,
		},
		FieldLatitude: {
			Standard: paths("latitude", "properties.latitude"),
			Legacy: paths("lat", "Latitude", "Lat", "LAT", "geo_lat", "start_latitude", "startLatitude",
				"start_lat", "from_lat", "location.lat", "location.latitude", "y"),
			Normalize: normalizeLatitude,
			Fallback:  func(rec RawRecord) (any, bool) { return geometryCoordinate(rec, true) },
		},
		FieldLongitude: {
			Standard: paths("longitude", "properties.longitude"),
			Legacy: paths("lon", "lng", "Longitude", "Lon", "Long", "LON", "geo_lon", "start_longitude",
				"startLongitude", "start_lon", "from_lon", "location.lon", "location.lng",
				"location.longitude", "x"),
			Normalize: normalizeLongitude,
			Fallback:  func(rec RawRecord) (any, bool) { return geometryCoordinate(rec, false) },
		},
		FieldEndLatitude: {
			Standard:  paths("end_latitude", "properties.end_latitude"),
			Legacy:    paths("endLatitude", "end_lat", "to_lat", "toLatitude"),
			Normalize: normalizeLatitude,
		},
		FieldEndLongitude: {
			Standard:  paths("end_longitude", "properties.end_longitude"),
			Legacy:    paths("endLongitude", "end_lon", "end_lng", "to_lon", "to_lng", "toLongitude"),
			Normalize: normalizeLongitude,
		},
		FieldStartTime: {
			Standard: paths("properties.start_date", "start_date"),
			Legacy: paths("startTime", "start_time", "StartTime", "starttime", "startDate", "begin_date",
				"beginTime", "start", "created", "reported", "timestamp"),
			Normalize: normalizeTime,
		},
		FieldEndTime: {
			Standard: paths("properties.end_date", "end_date"),
			Legacy: paths("endTime", "end_time", "EndTime", "endtime", "endDate", "close_date",
				"expected_end", "estimatedEndTime", "end"),
			Normalize: normalizeTime,
		},
		FieldDescription: {
			Standard: paths("properties.core_details.description", "description"),
			Legacy: paths("Description", "desc", "summary", "details", "message", "headline",
				"comments", "Comments", "text"),
			Normalize: normalizeText,
		},
		FieldLocation: {
			Standard: paths("properties.location_description", "location_description"),
			Legacy: paths("locationDescription", "location", "Location", "location.description",
				"cross_street", "crossStreet", "landmark"),
			Normalize: normalizeText,
		},
		FieldCounty: {
			Standard:  paths("properties.county", "county"),
			Legacy:    paths("County", "county_name", "countyName", "location.county"),
			Normalize: normalizeText,
		},
		FieldGeometry: {
			Standard:  paths("geometry"),
			Legacy:    paths("coordinates", "shape", "location.geometry", "path"),
			Normalize: normalizeGeometry,
		},
	}
}

// geometryCoordinate extracts the start coordinate from geometry-shaped keys.
func geometryCoordinate(rec RawRecord, lat bool) (any, bool) {
	for _, key := range []string{"geometry", "coordinates", "location", "position", "point"} {
		v, ok := rec[key]
		if !ok {
			continue
		}
		if ll, ok := ExtractLatLon(v); ok {
			if lat {
				return ll.Lat, true
			}
			return ll.Lon, true
		}
	}
	return nil, false
}
