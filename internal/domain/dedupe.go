package domain

import (
	"fmt"
	"math"
	"slices"
)

// MergeKey groups events that likely describe the same occurrence: within
// roughly a kilometer (coordinates rounded to two decimals), of the same type,
// on the same corridor.
func MergeKey(e Event) string {
	return fmt.Sprintf("%.2f|%.2f|%s|%s",
		round2(e.Latitude), round2(e.Longitude), e.EventType, NormalizeCorridor(e.Corridor))
}

func round2(f float64) float64 {
	r := math.Round(f*100) / 100
	if r == 0 {
		return 0 // fold -0 into 0 so both format identically
	}
	return r
}

// Deduplicate merges events sharing a MergeKey into the first one seen.
// Severity only ever moves up, contributing states accumulate in order, and a
// description is replaced only by a strictly longer one. The merged event keeps
// the best quality score of its contributors. Output keeps
// first-seen order; the input slice and its events are left untouched.
// Running Deduplicate on its own output is a no-op.
func Deduplicate(events []Event) []Event {
	index := make(map[string]int, len(events))
	out := make([]Event, 0, len(events))
	for _, e := range events {
		key := MergeKey(e)
		i, seen := index[key]
		if !seen {
			e.States = slices.Clone(e.States)
			index[key] = len(out)
			out = append(out, e)
			continue
		}
		mergeInto(&out[i], e)
	}
	return out
}

func mergeInto(dst *Event, src Event) {
	if src.Severity.Rank() > dst.Severity.Rank() {
		dst.Severity = src.Severity
	}
	if len(src.States) == 0 {
		dst.addState(src.Source)
	}
	for _, s := range src.States {
		dst.addState(s)
	}
	if len(src.Description) > len(dst.Description) {
		dst.Description = src.Description
	}
	dst.Quality = max(dst.Quality, src.Quality)
	dst.IsDuplicate = true
}
