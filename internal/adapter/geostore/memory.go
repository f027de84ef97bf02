package geostore

import (
	"context"
	"sync"
	"time"

	"github.com/couchcryptid/road-event-etl/internal/domain"
)

// MemoryStore keeps geometries in process memory. It is the default when no
// database is configured and is lost on restart.
type MemoryStore struct {
	mu   sync.RWMutex
	rows map[string]domain.GeometryRecord
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string]domain.GeometryRecord)}
}

// Upsert inserts rec or replaces the existing row, keeping its CreatedAt.
func (s *MemoryStore) Upsert(_ context.Context, rec domain.GeometryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.rows[rec.EventID]; ok {
		rec.CreatedAt = old.CreatedAt
	}
	s.rows[rec.EventID] = rec
	return nil
}

func (s *MemoryStore) Lookup(_ context.Context, eventIDs []string) (map[string]domain.GeometryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]domain.GeometryRecord)
	for _, id := range eventIDs {
		if rec, ok := s.rows[id]; ok {
			out[id] = rec
		}
	}
	return out, nil
}

func (s *MemoryStore) DeleteExpired(_ context.Context, now, staleBefore time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, rec := range s.rows {
		if expired(rec, now, staleBefore) {
			delete(s.rows, id)
			n++
		}
	}
	return n, nil
}

func expired(rec domain.GeometryRecord, now, staleBefore time.Time) bool {
	if rec.EventEndTime != nil {
		return rec.EventEndTime.Before(now)
	}
	return rec.UpdatedAt.Before(staleBefore)
}

// Len returns the number of stored rows.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }
