package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeDirection(t *testing.T) {
	tests := []struct {
		name   string
		input  any
		want   Direction
		wantOK bool
	}{
		{"single letter", "W", Westbound, true},
		{"abbreviation", "NB", Northbound, true},
		{"word", "Eastbound", Eastbound, true},
		{"two words", "south bound", Southbound, true},
		{"wzdx both", "both", BothWays, true},
		{"embedded", "I-80 WB lanes", Westbound, true},
		{"array uses first", []any{"W", "E"}, Westbound, true},
		{"both carriageways spelled out", "Northbound and Southbound", BothWays, true},
		{"both carriageways abbreviated", "NB/SB", BothWays, true},
		{"east and west", "Eastbound & Westbound", BothWays, true},
		{"hyphenated pair", "EB-WB", BothWays, true},
		{"two bound words", "north bound and south bound", BothWays, true},
		{"perpendicular pair keeps first", "NB to EB ramp", Northbound, true},
		{"unknown", "unknown", "", false},
		{"loop", "inner-loop", "", false},
		{"empty", "", "", false},
		{"number", 3.0, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := normalizeDirection(tt.input)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestNormalizeSeverity(t *testing.T) {
	tests := []struct {
		input  string
		want   Severity
		wantOK bool
	}{
		{"all-lanes-closed", SeverityHigh, true},
		{"some-lanes-closed", SeverityMedium, true},
		{"alternating-one-way", SeverityMedium, true},
		{"all-lanes-open", SeverityLow, true},
		{"Major", SeverityHigh, true},
		{"moderate", SeverityMedium, true},
		{"minor", SeverityLow, true},
		{"Road Closed", SeverityHigh, true},
		{"unknown", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := normalizeSeverity(tt.input)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestNormalizeRoadStatus(t *testing.T) {
	tests := []struct {
		input  string
		want   RoadStatus
		wantOK bool
	}{
		{"all-lanes-closed", RoadClosed, true},
		{"some-lanes-closed", RoadRestricted, true},
		{"all-lanes-open", RoadOpen, true},
		{"CLOSED", RoadClosed, true},
		{"restricted", RoadRestricted, true},
		{"Scheduled", RoadPlanned, true},
		{"cleared", RoadOpen, true},
		{"unknown", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := normalizeRoadStatus(tt.input)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestNormalizeEventType(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		want   EventType
		wantOK bool
	}{
		{"exact enum", "work-zone", EventWorkZone, true},
		{"exact enum upper case", "INCIDENT", EventIncident, true},
		{"construction keyword", "Construction", EventWorkZone, true},
		{"crash keyword", "Crash on I-80", EventIncident, true},
		{"detour keyword", "Detour in effect", EventDetour, true},
		{"work zone wins over detour", "road work detour", EventWorkZone, true},
		{"weather keyword", "Winter driving conditions", EventWeather, true},
		{"special event keyword", "Parade", EventSpecialEvent, true},
		{"restriction keyword", "Height limit 13ft", EventRestriction, true},
		{"geojson type", "Feature", "", false},
		{"unknown literal", "unknown", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := normalizeEventType(tt.input)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestNormalizeTime(t *testing.T) {
	newYear := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		input  any
		want   time.Time
		wantOK bool
	}{
		{"minutes with Z", "2024-01-01T00:00Z", newYear, true},
		{"rfc3339 with offset", "2024-01-01T06:30:00-05:00", time.Date(2024, 1, 1, 11, 30, 0, 0, time.UTC), true},
		{"date only", "2024-01-01", newYear, true},
		{"us date", "01/01/2024", newYear, true},
		{"epoch seconds", 1704067200.0, newYear, true},
		{"epoch millis", 1704067200000.0, newYear, true},
		{"epoch string", "1704067200", newYear, true},
		{"garbage", "not a date", time.Time{}, false},
		{"zero", 0.0, time.Time{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := normalizeTime(tt.input)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.True(t, tt.want.Equal(got.(time.Time)), "got %v", got)
			}
		})
	}
}

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		name   string
		input  any
		want   string
		wantOK bool
	}{
		{"plain", "Lane closed", "Lane closed", true},
		{"collapses whitespace", "  Lane \n\t closed  ", "Lane closed", true},
		{"strips html", "<p>Lane closed</p><p>Use caution</p>", "Lane closed Use caution", true},
		{"decodes entities", "Road &amp; Bridge", "Road & Bridge", true},
		{"array first", []any{"", "Second"}, "Second", true},
		{"number", 42.0, "42", true},
		{"blank", "   ", "", false},
		{"nil", nil, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := normalizeText(tt.input)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestNormalizeID(t *testing.T) {
	got, ok := normalizeID(1234.0)
	assert.True(t, ok)
	assert.Equal(t, "1234", got)

	got, ok = normalizeID(" abc ")
	assert.True(t, ok)
	assert.Equal(t, "abc", got)

	_, ok = normalizeID(map[string]any{"x": 1})
	assert.False(t, ok)
}
