package httpadapter

import (
	"net/http"
	"strings"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"

	"github.com/couchcryptid/road-event-etl/internal/domain"
)

// EventSource provides the events of the latest completed cycle.
type EventSource interface {
	Events() ([]domain.Event, time.Time)
}

type eventsResponse struct {
	UpdatedAt time.Time      `json:"updated_at"`
	Count     int            `json:"count"`
	Events    []domain.Event `json:"events"`
}

// eventFilter holds the optional query filters of GET /events.
type eventFilter struct {
	corridor  string
	eventType domain.EventType
	state     string
}

func parseFilter(r *http.Request) eventFilter {
	q := r.URL.Query()
	f := eventFilter{
		eventType: domain.EventType(strings.ToLower(strings.TrimSpace(q.Get("type")))),
		state:     strings.ToUpper(strings.TrimSpace(q.Get("state"))),
	}
	if c := strings.TrimSpace(q.Get("corridor")); c != "" {
		f.corridor = domain.NormalizeCorridor(c)
	}
	return f
}

func (f eventFilter) match(ev domain.Event) bool {
	if f.corridor != "" && domain.NormalizeCorridor(ev.Corridor) != f.corridor {
		return false
	}
	if f.eventType != "" && ev.EventType != f.eventType {
		return false
	}
	if f.state != "" {
		found := false
		for _, s := range ev.States {
			if strings.EqualFold(s, f.state) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func eventsHandler(src EventSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		events, updated := src.Events()
		if updated.IsZero() {
			sharedobs.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  "no cycle has completed yet",
			})
			return
		}

		f := parseFilter(r)
		out := make([]domain.Event, 0, len(events))
		for _, ev := range events {
			if f.match(ev) {
				out = append(out, ev)
			}
		}
		sharedobs.WriteJSON(w, http.StatusOK, eventsResponse{UpdatedAt: updated, Count: len(out), Events: out})
	}
}
