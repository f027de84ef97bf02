package domain

import (
	"strings"
	"time"
)

// RawRecord is one untyped record decoded from a source feed. Field names,
// nesting, and value types vary per source and change without notice.
type RawRecord map[string]any

// SourceMeta describes the feed a RawRecord came from.
type SourceMeta struct {
	Name   string // feed identifier, e.g. "iowa-wzdx"
	State  string // contributing state key, e.g. "IA"
	Format string // "wzdx", "json", or "xml"
}

// stateKey returns the identifier appended to Event.States for this source.
func (m SourceMeta) stateKey() string {
	if m.State != "" {
		return m.State
	}
	return m.Name
}

// EventType is the canonical road-event category.
type EventType string

const (
	EventWorkZone     EventType = "work-zone"
	EventIncident     EventType = "incident"
	EventRestriction  EventType = "restriction"
	EventDetour       EventType = "detour"
	EventWeather      EventType = "weather"
	EventSpecialEvent EventType = "special-event"
	EventUnknown      EventType = "unknown"
)

// Severity is ordered low < medium < high.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// Rank orders severities for monotonic promotion. Unrecognized values rank
// below low.
func (s Severity) Rank() int {
	switch s {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// RoadStatus is the canonical closure state.
type RoadStatus string

const (
	RoadOpen       RoadStatus = "open"
	RoadClosed     RoadStatus = "closed"
	RoadRestricted RoadStatus = "restricted"
	RoadPlanned    RoadStatus = "planned"
)

// Direction is a compass travel direction, or both for undivided reports.
type Direction string

const (
	Northbound Direction = "northbound"
	Southbound Direction = "southbound"
	Eastbound  Direction = "eastbound"
	Westbound  Direction = "westbound"
	BothWays   Direction = "both"
)

// Compass reports whether d is one of the four single-carriageway directions.
func (d Direction) Compass() bool {
	switch d {
	case Northbound, Southbound, Eastbound, Westbound:
		return true
	}
	return false
}

// Event is the canonical, validated road event produced by the pipeline.
type Event struct {
	ID             string     `json:"id"`
	Source         string     `json:"source"`
	EventType      EventType  `json:"event_type"`
	Severity       Severity   `json:"severity"`
	RoadStatus     RoadStatus `json:"road_status"`
	Corridor       string     `json:"corridor"`
	Direction      Direction  `json:"direction"`
	Latitude       float64    `json:"latitude"`
	Longitude      float64    `json:"longitude"`
	Geometry       *Geometry  `json:"geometry,omitempty"`
	GeometrySource string     `json:"geometry_source,omitempty"`
	StartTime      time.Time  `json:"start_time"`
	EndTime        *time.Time `json:"end_time"`
	Description    string     `json:"description"`
	Location       string     `json:"location"`
	County         string     `json:"county,omitempty"`
	States         []string   `json:"states"`
	State          string     `json:"state"`
	IsDuplicate    bool       `json:"is_duplicate"`
	Quality        float64    `json:"quality"` // 0 to 1, how much of the event the feed supplied
	ProcessedAt    time.Time  `json:"processed_at"`
}

// addState appends key to States if absent and recomputes the joined label.
func (e *Event) addState(key string) {
	if key == "" {
		return
	}
	for _, s := range e.States {
		if s == key {
			return
		}
	}
	e.States = append(e.States, key)
	e.State = strings.Join(e.States, ", ")
}

// Valid reports whether the event satisfies the pipeline output invariants.
func (e Event) Valid() bool {
	return e.Corridor != "" && validLatLon(e.Latitude, e.Longitude) && e.EventType.known()
}

func (t EventType) known() bool {
	switch t {
	case EventWorkZone, EventIncident, EventRestriction, EventDetour, EventWeather, EventSpecialEvent, EventUnknown:
		return true
	}
	return false
}
