// Package domain models road events aggregated from state transportation feeds.
//
// # Data Sources
//
// Feeds are published independently by each state DOT or its vendor. Most follow
// the Work Zone Data Exchange (WZDx) GeoJSON schema; the rest are vendor JSON or
// XML with their own field names. Field names drift over time as vendors move
// toward WZDx, so nothing is decoded into fixed structs. Each record arrives as a
// [RawRecord] and every canonical attribute is looked up through a [Resolver].
//
// # Field Resolution
//
// For each canonical [Field] the resolver holds an ordered candidate list:
//
//	WZDx nested:     properties.core_details.road_names
//	WZDx flattened:  road_names
//	legacy/vendor:   roadName, road_name, route, highway, ...
//
// The first candidate yielding a usable value wins, after a per-field normalizer
// (direction to compass enum, vehicle_impact to severity and road status, free
// text to event type by keyword). Latitude and longitude fall back to the first
// vertex of the record geometry. Legacy hits and unrecognized keys are counted
// in [FieldNotes] so a source's migration to standard names is visible.
//
// Coordinate conventions:
//
//	GeoJSON arrays are [lon, lat]. Named fields are lat/lon in any spelling.
//	0,0 is treated as missing; several feeds emit it for unknown locations.
//	All coordinate parsing goes through [ExtractLatLon] and [ExtractGeometry].
//
// # Corridors
//
// Route text is reduced to a canonical token by [NormalizeCorridor]:
//
//	"I 080", "i-80", "I80", "Interstate 80"  ->  "I-80"
//	"US Hwy 30"                              ->  "US-30"
//	"State Route 17", "IA 17"                ->  "SR-17"
//
// Interstate and US route numbering encodes orientation: even numbers run
// east-west, odd numbers north-south. See [Route.Orientation].
//
// # Deduplication
//
// Neighboring states often report the same closure. [Deduplicate] merges events
// sharing coordinates rounded to two decimals (about 1 km), event type, and
// corridor. Severity only moves up, contributing states accumulate, and the
// longest description wins.
//
// # Geometry Enrichment
//
// Feeds often send only endpoints or one centerline for a divided highway. The
// [Enricher] queries a [RoadNetwork] for segments of the event's route near its
// endpoints, scores each by endpoint distance in either orientation, and keeps
// the closest one under the distance threshold. Bidirectional events get two
// carriageways offset by a few meters using right-hand traffic:
//
//	east-west route:   westbound line north of center, eastbound south
//	north-south route: northbound line west of center, southbound east
//
// Enrichment never fails an event. Provenance is recorded in
// Event.GeometrySource.
//
// # ID Generation
//
// Event IDs are "<source>-<original id>". Records without an identifier get a
// name-based UUID (SHA-1) over the source and the record's canonical JSON, so
// re-ingesting the same record yields the same ID.
package domain
