package domain

import (
	"context"
	"time"
)

// Segment is one candidate line returned by a road network.
type Segment struct {
	ID        string
	RouteName string
	Direction Direction // empty when the network does not say
	Ramp      bool
	Line      Line
}

// SegmentQuery asks for segments of one route inside an envelope.
type SegmentQuery struct {
	Route Route
	BBox  BBox
}

// RoadNetwork looks up road segments by route. Implementations must tolerate
// timeouts and may return no segments.
type RoadNetwork interface {
	// Name labels geometry produced from this network, e.g. "Iowa DOT".
	Name() string
	Segments(ctx context.Context, q SegmentQuery) ([]Segment, error)
}

// GeometryRecord is the persisted form of an enriched geometry.
type GeometryRecord struct {
	EventID        string
	StateKey       string
	Geometry       *Geometry
	Direction      Direction
	Source         string // geometry provenance, as in Event.GeometrySource
	CreatedAt      time.Time
	UpdatedAt      time.Time
	EventStartTime time.Time
	EventEndTime   *time.Time
}

// GeometryLookup reads previously enriched geometries by event ID.
type GeometryLookup interface {
	Lookup(ctx context.Context, eventIDs []string) (map[string]GeometryRecord, error)
}

// GeometryStore is durable storage for enriched geometries keyed by event ID.
type GeometryStore interface {
	GeometryLookup
	Upsert(ctx context.Context, rec GeometryRecord) error
	// DeleteExpired removes rows whose event ended before now, and open-ended
	// rows last updated before staleBefore. It returns the number removed.
	DeleteExpired(ctx context.Context, now, staleBefore time.Time) (int64, error)
	Ping(ctx context.Context) error
	Close() error
}

// GeometryRecorder accepts geometry writes without blocking the caller.
type GeometryRecorder interface {
	Record(ctx context.Context, rec GeometryRecord)
}
