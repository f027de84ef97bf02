package domain

import (
	"math"
	"time"
)

// Quality weights. They sum to 1.
const (
	qualityCompleteness = 0.4
	qualityFreshness    = 0.3
	qualityCoordinates  = 0.2
	qualityDescription  = 0.1
)

// minDescriptionLen is the length a feed description must exceed to count.
const minDescriptionLen = 20

// qualitySignals records which attributes the feed supplied itself rather
// than receiving a default or a synthesized value.
type qualitySignals struct {
	id          bool
	state       bool
	eventType   bool
	start       bool
	description bool
}

// qualityScore rates how much of an event came from the feed, from 0 to 1:
//
//	0.4  id, event type, and state all supplied
//	0.3  start within the last hour or in the future; 0.2 within 6h; 0.1 within 24h
//	0.2  position inside the contiguous United States
//	0.1  feed description longer than 20 characters
func qualityScore(ev Event, sig qualitySignals, now time.Time) float64 {
	score := 0.0
	if sig.id && sig.state && sig.eventType {
		score += qualityCompleteness
	}
	if sig.start {
		switch age := now.Sub(ev.StartTime); {
		case age < time.Hour:
			score += qualityFreshness
		case age < 6*time.Hour:
			score += 0.2
		case age < 24*time.Hour:
			score += 0.1
		}
	}
	if ev.Latitude >= 30 && ev.Latitude <= 50 && ev.Longitude >= -125 && ev.Longitude <= -70 {
		score += qualityCoordinates
	}
	if sig.description && len([]rune(ev.Description)) > minDescriptionLen {
		score += qualityDescription
	}
	return math.Min(math.Round(score*100)/100, 1)
}
