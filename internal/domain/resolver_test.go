package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPath_Get(t *testing.T) {
	rec := RawRecord{
		"road_names": []any{"I-80", "US-6"},
		"properties": map[string]any{
			"core_details": map[string]any{"direction": "eastbound"},
		},
		"blank": "  ",
	}

	tests := []struct {
		name   string
		expr   string
		want   any
		wantOK bool
	}{
		{"top level", "road_names", []any{"I-80", "US-6"}, true},
		{"array index", "road_names[1]", "US-6", true},
		{"index out of range", "road_names[5]", nil, false},
		{"nested path", "properties.core_details.direction", "eastbound", true},
		{"missing key", "properties.core_details.event_type", nil, false},
		{"through a scalar", "road_names.x", nil, false},
		{"blank string is absent", "blank", "  ", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Path(tt.expr).Get(rec)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestResolver_StandardBeatsLegacy(t *testing.T) {
	r := NewDefaultResolver(nil)
	rec := RawRecord{
		"road_names": []any{"I-35"},
		"roadName":   "I-80",
		"direction":  "N",
		"dir":        "S",
	}

	corridor, ok := r.Resolve("src", rec, FieldCorridor)
	require.True(t, ok)
	assert.Equal(t, "I-35", corridor)

	dir, ok := r.Resolve("src", rec, FieldDirection)
	require.True(t, ok)
	assert.Equal(t, Northbound, dir)
}

func TestResolver_NestedWZDxBeatsFlattened(t *testing.T) {
	r := NewDefaultResolver(nil)
	rec := RawRecord{
		"properties": map[string]any{
			"core_details": map[string]any{"road_names": []any{"US 30"}},
		},
		"road_names": []any{"I-80"},
	}

	corridor, ok := r.Resolve("src", rec, FieldCorridor)
	require.True(t, ok)
	assert.Equal(t, "US-30", corridor)
}

func TestResolver_SkipsEmptyAndUnusableCandidates(t *testing.T) {
	r := NewDefaultResolver(nil)
	rec := RawRecord{
		"description": "   ",
		"summary":     "Bridge deck repair",
		"latitude":    "north",
		"lat":         41.5,
	}

	desc, ok := r.Resolve("src", rec, FieldDescription)
	require.True(t, ok)
	assert.Equal(t, "Bridge deck repair", desc)

	lat, ok := r.Resolve("src", rec, FieldLatitude)
	require.True(t, ok)
	assert.Equal(t, 41.5, lat)
}

func TestResolver_CoordinateFallback(t *testing.T) {
	r := NewDefaultResolver(nil)
	rec := RawRecord{
		"geometry": map[string]any{
			"type":        "LineString",
			"coordinates": []any{[]any{-93.5, 41.5}, []any{-93.4, 41.6}},
		},
	}

	lat, ok := r.Resolve("src", rec, FieldLatitude)
	require.True(t, ok)
	lon, ok := r.Resolve("src", rec, FieldLongitude)
	require.True(t, ok)
	assert.Equal(t, 41.5, lat)
	assert.Equal(t, -93.5, lon)
}

func TestResolver_Absent(t *testing.T) {
	r := NewDefaultResolver(nil)

	_, ok := r.Resolve("src", RawRecord{"other": 1}, FieldCorridor)
	assert.False(t, ok)

	_, ok = r.Resolve("src", nil, FieldCorridor)
	assert.False(t, ok)

	_, ok = r.Resolve("src", RawRecord{"road_names": []any{"I-80"}}, Field("nope"))
	assert.False(t, ok)
}

type panickyAccessor struct{}

func (panickyAccessor) Name() string { return "panicky" }

func (panickyAccessor) Get(RawRecord) (any, bool) {
	panic("boom")
}

func TestResolver_NeverPanics(t *testing.T) {
	r := NewResolver(map[Field]FieldSpec{
		FieldCounty: {Standard: []Accessor{panickyAccessor{}, Path("county")}},
	}, nil)

	var (
		got any
		ok  bool
	)
	assert.NotPanics(t, func() {
		got, ok = r.Resolve("src", RawRecord{"county": "Polk"}, FieldCounty)
	})
	assert.True(t, ok)
	assert.Equal(t, "Polk", got)
}

func TestResolver_LegacyNotes(t *testing.T) {
	notes := NewFieldNotes()
	r := NewDefaultResolver(notes)

	for range 2 {
		corridor, ok := r.Resolve("iowa", RawRecord{"roadName": "I 080"}, FieldCorridor)
		require.True(t, ok)
		assert.Equal(t, "I-80", corridor)
	}
	_, _ = r.Resolve("iowa", RawRecord{"road_names": []any{"I-80"}}, FieldCorridor)

	assert.Equal(t, []NoteCount{
		{Source: "iowa", Field: FieldCorridor, Name: "roadName", Count: 2},
	}, notes.Legacy())
}

func TestResolver_UnknownKeys(t *testing.T) {
	notes := NewFieldNotes()
	r := NewDefaultResolver(notes)

	r.ScanUnknown("iowa", RawRecord{
		"type":          "Feature",
		"road_names":    []any{"I-80"},
		"mystery_field": 1,
		"properties": map[string]any{
			"core_details": map[string]any{"direction": "both", "odd": true},
		},
	})

	assert.Equal(t, []NoteCount{
		{Source: "iowa", Name: "mystery_field", Count: 1},
		{Source: "iowa", Name: "properties.core_details.odd", Count: 1},
	}, notes.Unknown())
}

func TestFieldNotes_NilIsSafe(t *testing.T) {
	var notes *FieldNotes
	assert.NotPanics(t, func() {
		notes.legacyUsed("src", FieldCorridor, "roadName")
		notes.unknownKey("src", "x")
		notes.recordSeen("src")
		notes.fieldResolved("src", FieldCorridor)
	})
	assert.Nil(t, notes.Legacy())
	assert.Nil(t, notes.Unknown())
	assert.Nil(t, notes.Coverage())
}

func TestResolver_WithNotesSharesTable(t *testing.T) {
	base := NewDefaultResolver(nil)
	notes := NewFieldNotes()
	r := base.WithNotes(notes)

	_, ok := r.Resolve("src", RawRecord{"roadName": "I-80"}, FieldCorridor)
	require.True(t, ok)
	assert.Len(t, notes.Legacy(), 1)
	assert.Nil(t, base.notes)
}
