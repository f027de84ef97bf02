package domain

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Field normalizers turn one raw candidate value into its canonical Go type.
// Returning false makes the Resolver move on to the next candidate.

// keywordText lowercases s and replaces every non-alphanumeric rune with a
// space, padded so that " kw" matches at word starts.
func keywordText(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte(' ')
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte(' ')
		}
	}
	b.WriteByte(' ')
	return spaceRe.ReplaceAllString(b.String(), " ")
}

// hasWord reports whether kw (already in keywordText form, without padding)
// starts a word in text.
func hasWord(text, kw string) bool {
	return strings.Contains(text, " "+kw)
}

// firstString collapses arrays to their first non-blank string element.
func firstString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		return s, s != ""
	case []any:
		for _, e := range t {
			if s, ok := firstString(e); ok {
				return s, true
			}
		}
	case []string:
		for _, e := range t {
			if s := strings.TrimSpace(e); s != "" {
				return s, true
			}
		}
	}
	return "", false
}

func normalizeID(v any) (any, bool) {
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		return s, s != ""
	case json.Number:
		return t.String(), true
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return nil, false
		}
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	}
	return nil, false
}

var directionWords = map[string]Direction{
	"n": Northbound, "nb": Northbound, "north": Northbound, "northbound": Northbound, "north bound": Northbound,
	"s": Southbound, "sb": Southbound, "south": Southbound, "southbound": Southbound, "south bound": Southbound,
	"e": Eastbound, "eb": Eastbound, "east": Eastbound, "eastbound": Eastbound, "east bound": Eastbound,
	"w": Westbound, "wb": Westbound, "west": Westbound, "westbound": Westbound, "west bound": Westbound,
	"both": BothWays, "all": BothWays, "bidirectional": BothWays, "both directions": BothWays,
	"two way": BothWays, "all directions": BothWays,
}

// ParseDirection maps direction text ("W", "NB", "north bound", "both") to a
// Direction.
func ParseDirection(v any) (Direction, bool) {
	d, ok := normalizeDirection(v)
	if !ok {
		return "", false
	}
	return d.(Direction), true
}

func normalizeDirection(v any) (any, bool) {
	s, ok := firstString(v)
	if !ok {
		return nil, false
	}
	text := strings.TrimSpace(keywordText(s))
	if d, ok := directionWords[text]; ok {
		return d, true
	}
	var first Direction
	seen := map[Direction]bool{}
	for _, w := range strings.Fields(text) {
		d, ok := directionWords[w]
		if !ok {
			continue
		}
		if first == "" {
			first = d
		}
		seen[d] = true
	}
	if first == "" {
		return nil, false
	}
	// "NB/SB", "Eastbound & Westbound": both carriageways are named.
	if seen[BothWays] || (seen[Northbound] && seen[Southbound]) || (seen[Eastbound] && seen[Westbound]) {
		return BothWays, true
	}
	return first, true
}

type keywordRule[T any] struct {
	keywords []string
	value    T
}

// matchRules returns the value of the first rule with a keyword present.
func matchRules[T any](s string, rules []keywordRule[T]) (T, bool) {
	text := keywordText(s)
	for _, r := range rules {
		for _, kw := range r.keywords {
			if hasWord(text, kw) {
				return r.value, true
			}
		}
	}
	var zero T
	return zero, false
}

// Order matters: specific lane phrases are checked before bare "open"/"closed".
var severityRules = []keywordRule[Severity]{
	{[]string{"all lanes open"}, SeverityLow},
	{[]string{"all lanes closed", "full closure", "road closed"}, SeverityHigh},
	{[]string{"some lanes closed", "alternating one way", "lane closure", "lanes closed"}, SeverityMedium},
	{[]string{"high", "severe", "critical", "major", "extreme", "urgent", "closed", "blocked"}, SeverityHigh},
	{[]string{"medium", "moderate", "intermediate"}, SeverityMedium},
	{[]string{"low", "minor", "minimal", "shoulder", "open"}, SeverityLow},
}

func normalizeSeverity(v any) (any, bool) {
	s, ok := firstString(v)
	if !ok {
		return nil, false
	}
	if sev, ok := matchRules(s, severityRules); ok {
		return sev, true
	}
	return nil, false
}

var roadStatusRules = []keywordRule[RoadStatus]{
	{[]string{"all lanes open"}, RoadOpen},
	{[]string{"all lanes closed", "full closure", "road closed"}, RoadClosed},
	{[]string{"some lanes closed", "alternating one way", "lane closure", "lanes closed", "restrict",
		"reduced", "shoulder", "single lane", "merge"}, RoadRestricted},
	{[]string{"closed", "closure", "blocked", "impassable"}, RoadClosed},
	{[]string{"planned", "scheduled", "pending", "future", "upcoming"}, RoadPlanned},
	{[]string{"open", "cleared", "clear", "active"}, RoadOpen},
}

func normalizeRoadStatus(v any) (any, bool) {
	s, ok := firstString(v)
	if !ok {
		return nil, false
	}
	if st, ok := matchRules(s, roadStatusRules); ok {
		return st, true
	}
	return nil, false
}

var eventTypeRules = []keywordRule[EventType]{
	{[]string{"work zone", "workzone", "construction", "roadwork", "road work", "maintenance", "paving",
		"bridge work", "resurfacing"}, EventWorkZone},
	{[]string{"detour"}, EventDetour},
	{[]string{"incident", "crash", "accident", "collision", "disabled vehicle", "stalled", "debris",
		"spill", "vehicle fire", "hazard"}, EventIncident},
	{[]string{"restriction", "restricted", "height limit", "width limit", "weight limit", "load limit"}, EventRestriction},
	{[]string{"weather", "snow", "ice", "icy", "fog", "flood", "winter", "blizzard", "wind"}, EventWeather},
	{[]string{"special event", "parade", "festival", "concert", "sporting", "game day"}, EventSpecialEvent},
}

func normalizeEventType(v any) (any, bool) {
	s, ok := firstString(v)
	if !ok {
		return nil, false
	}
	if t := EventType(strings.ToLower(s)); t.known() && t != EventUnknown {
		return t, true
	}
	if t, ok := matchRules(s, eventTypeRules); ok {
		return t, true
	}
	return nil, false
}

func normalizeCorridorValue(v any) (any, bool) {
	s, ok := firstString(v)
	if !ok {
		return nil, false
	}
	c := NormalizeCorridor(s)
	return c, c != ""
}

func normalizeLatitude(v any) (any, bool) {
	f, ok := toFloat(v)
	if !ok || f < -90 || f > 90 {
		return nil, false
	}
	return f, true
}

func normalizeLongitude(v any) (any, bool) {
	f, ok := toFloat(v)
	if !ok || f < -180 || f > 180 {
		return nil, false
	}
	return f, true
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05.000Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"01/02/2006 15:04:05",
	"01/02/2006 15:04",
	"01/02/2006",
	time.RFC1123Z,
	time.RFC1123,
}

// epochMillisThreshold separates epoch seconds from epoch milliseconds.
const epochMillisThreshold = 1e11

func fromEpoch(f float64) time.Time {
	if math.Abs(f) >= epochMillisThreshold {
		return time.UnixMilli(int64(f)).UTC()
	}
	return time.Unix(int64(f), 0).UTC()
}

func normalizeTime(v any) (any, bool) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), !t.IsZero()
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range timeLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts.UTC(), true
			}
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
			return fromEpoch(f), true
		}
		return nil, false
	}
	if f, ok := toFloat(v); ok && f > 0 {
		return fromEpoch(f), true
	}
	return nil, false
}

// normalizeText strips markup and collapses whitespace.
func normalizeText(v any) (any, bool) {
	s, ok := firstString(v)
	if !ok {
		if f, isNum := toFloat(v); isNum {
			return strconv.FormatFloat(f, 'f', -1, 64), true
		}
		return nil, false
	}
	if strings.ContainsAny(s, "<&") {
		s = stripHTML(s)
	}
	s = strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
	return s, s != ""
}

func stripHTML(s string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return s
	}
	doc.Find("br, p, li, div").Each(func(_ int, sel *goquery.Selection) {
		sel.AppendHtml(" ")
	})
	return doc.Text()
}

func normalizeGeometry(v any) (any, bool) {
	g := ExtractGeometry(v)
	if g == nil {
		return nil, false
	}
	return g, true
}
