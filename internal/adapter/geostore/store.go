// Package geostore persists enriched event geometries so later cycles can
// reuse them without another road-network query.
package geostore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/couchcryptid/road-event-etl/internal/domain"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

// Open connects to the configured store and applies its schema. An empty
// driver selects the in-memory store.
func Open(ctx context.Context, driver, dsn string) (domain.GeometryStore, error) {
	switch driver {
	case "", DriverMemory:
		return NewMemoryStore(), nil
	case DriverPostgres:
		s, err := NewPostgresStore(ctx, dsn)
		if err != nil {
			return nil, err
		}
		if err := s.EnsureSchema(ctx); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("apply postgres schema: %w", err)
		}
		return s, nil
	case DriverMySQL:
		s, err := NewMySQLStore(ctx, dsn)
		if err != nil {
			return nil, err
		}
		if err := s.EnsureSchema(ctx); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("apply mysql schema: %w", err)
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown geometry store driver %q", driver)
}

func encodeGeometry(g *domain.Geometry) ([]byte, error) {
	if g == nil {
		return nil, fmt.Errorf("encode geometry: nil geometry")
	}
	b, err := json.Marshal(g)
	if err != nil {
		return nil, fmt.Errorf("encode geometry: %w", err)
	}
	return b, nil
}

func decodeGeometry(b []byte) (*domain.Geometry, error) {
	var g domain.Geometry
	if err := json.Unmarshal(b, &g); err != nil {
		return nil, fmt.Errorf("decode geometry: %w", err)
	}
	return &g, nil
}

// nullTime maps the zero time to SQL NULL.
func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	t = t.UTC()
	return &t
}
