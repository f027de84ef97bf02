package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Rejection reasons. A RejectedError wraps exactly one of these.
var (
	ErrMissingCoordinates = errors.New("missing-coordinates")
	ErrMissingCorridor    = errors.New("missing-corridor")
)

// RejectedError reports a record that failed mandatory-field validation.
type RejectedError struct {
	Reason   error
	Source   string
	RecordID string // original identifier, empty when the record had none
}

func (e *RejectedError) Error() string {
	if e.RecordID == "" {
		return fmt.Sprintf("%s: record rejected: %v", e.Source, e.Reason)
	}
	return fmt.Sprintf("%s: record %s rejected: %v", e.Source, e.RecordID, e.Reason)
}

func (e *RejectedError) Unwrap() error { return e.Reason }

// fallbackIDSpace namespaces generated event IDs.
var fallbackIDSpace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:road-event-etl:event"))

// Normalizer turns raw feed records into canonical Events.
type Normalizer struct {
	resolver *Resolver
}

// NewNormalizer returns a Normalizer over r, or over the default field table
// when r is nil.
func NewNormalizer(r *Resolver) *Normalizer {
	if r == nil {
		r = NewDefaultResolver(nil)
	}
	return &Normalizer{resolver: r}
}

// WithNotes returns a Normalizer whose field diagnostics go to notes.
func (n *Normalizer) WithNotes(notes *FieldNotes) *Normalizer {
	return &Normalizer{resolver: n.resolver.WithNotes(notes)}
}

// Normalize resolves every canonical attribute of rec and validates the
// mandatory ones. Records without valid coordinates or a corridor come back as
// a *RejectedError; nothing else is fatal.
func (n *Normalizer) Normalize(rec RawRecord, meta SourceMeta) (Event, error) {
	r := n.resolver
	src := meta.Name
	r.notes.recordSeen(src)
	r.ScanUnknown(src, rec)

	origID, hasID := resolveAs[string](r, src, rec, FieldID)
	geom, _ := resolveAs[*Geometry](r, src, rec, FieldGeometry)

	lat, okLat := resolveAs[float64](r, src, rec, FieldLatitude)
	lon, okLon := resolveAs[float64](r, src, rec, FieldLongitude)
	if (!okLat || !okLon || !validLatLon(lat, lon)) && geom != nil {
		start := geom.Centerline().Start()
		lat, lon, okLat, okLon = start.Lat, start.Lon, true, true
	}
	if !okLat || !okLon || !validLatLon(lat, lon) {
		return Event{}, &RejectedError{Reason: ErrMissingCoordinates, Source: src, RecordID: origID}
	}

	corridor, ok := resolveAs[string](r, src, rec, FieldCorridor)
	if !ok {
		return Event{}, &RejectedError{Reason: ErrMissingCorridor, Source: src, RecordID: origID}
	}

	if geom == nil {
		endLat, okEndLat := resolveAs[float64](r, src, rec, FieldEndLatitude)
		endLon, okEndLon := resolveAs[float64](r, src, rec, FieldEndLongitude)
		if okEndLat && okEndLon && validLatLon(endLat, endLon) && (endLat != lat || endLon != lon) {
			geom = NewLineString(Line{{Lat: lat, Lon: lon}, {Lat: endLat, Lon: endLon}})
		}
	}

	now := clock.Now().UTC()
	ev := Event{
		Source:      src,
		EventType:   EventUnknown,
		Severity:    SeverityMedium,
		Corridor:    corridor,
		Direction:   BothWays,
		Latitude:    lat,
		Longitude:   lon,
		Geometry:    geom,
		ProcessedAt: now,
	}
	if geom != nil {
		ev.GeometrySource = GeometrySourceFeed
	}
	var sig qualitySignals
	if t, ok := resolveAs[EventType](r, src, rec, FieldEventType); ok {
		ev.EventType = t
		sig.eventType = t != EventUnknown
	}
	if s, ok := resolveAs[Severity](r, src, rec, FieldSeverity); ok {
		ev.Severity = s
	}
	if d, ok := resolveAs[Direction](r, src, rec, FieldDirection); ok {
		ev.Direction = d
	}

	ev.StartTime = now
	start, hasStart := resolveAs[time.Time](r, src, rec, FieldStartTime)
	if hasStart {
		ev.StartTime = start
		sig.start = true
	}
	if t, ok := resolveAs[time.Time](r, src, rec, FieldEndTime); ok {
		ev.EndTime = &t
	}

	if st, ok := resolveAs[RoadStatus](r, src, rec, FieldRoadStatus); ok {
		ev.RoadStatus = st
	} else if hasStart && ev.StartTime.After(now) {
		ev.RoadStatus = RoadPlanned
	} else {
		ev.RoadStatus = RoadOpen
	}

	ev.County, _ = resolveAs[string](r, src, rec, FieldCounty)
	ev.Location, _ = resolveAs[string](r, src, rec, FieldLocation)
	if ev.Location == "" {
		ev.Location = synthesizeLocation(ev.Corridor, ev.Direction, ev.County)
	}
	ev.Description, sig.description = resolveAs[string](r, src, rec, FieldDescription)
	if ev.Description == "" {
		ev.Description = synthesizeDescription(ev.EventType, ev.Location)
	}

	if hasID {
		ev.ID = src + "-" + origID
	} else {
		ev.ID = src + "-" + fallbackID(src, rec).String()
	}
	ev.addState(meta.stateKey())
	sig.id, sig.state = hasID, meta.State != ""
	ev.Quality = qualityScore(ev, sig, now)
	return ev, nil
}

// fallbackID derives a stable UUID from the record content. encoding/json
// sorts map keys, so equal records always hash the same.
func fallbackID(source string, rec RawRecord) uuid.UUID {
	body, err := json.Marshal(rec)
	if err != nil {
		body = []byte(fmt.Sprint(rec))
	}
	return uuid.NewSHA1(fallbackIDSpace, append([]byte(source+"|"), body...))
}

func directionLabel(d Direction) string {
	if d == BothWays {
		return "both directions"
	}
	return string(d)
}

// synthesizeLocation builds "<corridor> <direction> in <county> County".
func synthesizeLocation(corridor string, d Direction, county string) string {
	loc := corridor + " " + directionLabel(d)
	if county != "" {
		county = strings.TrimSuffix(strings.TrimSpace(county), " County")
		loc += " in " + county + " County"
	}
	return loc
}

func synthesizeDescription(t EventType, location string) string {
	label := "Road event"
	if t != EventUnknown {
		label = strings.ReplaceAll(string(t), "-", " ")
		label = strings.ToUpper(label[:1]) + label[1:]
	}
	return label + " on " + location
}
