package geostore

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/couchcryptid/road-event-etl/internal/domain"
)

//go:embed schema_postgres.sql
var postgresSchema string

// PostgresStore keeps geometries in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a connection pool and fails fast if the database
// is unreachable.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// EnsureSchema applies the embedded schema. Safe to run multiple times.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresSchema)
	return err
}

const postgresUpsert = `
	INSERT INTO event_geometries
		(event_id, state_key, geometry, direction, source, created_at, updated_at, event_start_time, event_end_time)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (event_id) DO UPDATE SET
		state_key        = EXCLUDED.state_key,
		geometry         = EXCLUDED.geometry,
		direction        = EXCLUDED.direction,
		source           = EXCLUDED.source,
		updated_at       = EXCLUDED.updated_at,
		event_start_time = EXCLUDED.event_start_time,
		event_end_time   = EXCLUDED.event_end_time`

// Upsert inserts rec or updates the existing row. created_at is kept from the
// first insert.
func (s *PostgresStore) Upsert(ctx context.Context, rec domain.GeometryRecord) error {
	geom, err := encodeGeometry(rec.Geometry)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, postgresUpsert,
		rec.EventID, rec.StateKey, string(geom), string(rec.Direction), rec.Source,
		rec.CreatedAt.UTC(), rec.UpdatedAt.UTC(), nullTime(rec.EventStartTime), rec.EventEndTime,
	)
	if err != nil {
		return fmt.Errorf("upsert geometry %s: %w", rec.EventID, err)
	}
	return nil
}

func (s *PostgresStore) Lookup(ctx context.Context, eventIDs []string) (map[string]domain.GeometryRecord, error) {
	out := make(map[string]domain.GeometryRecord)
	if len(eventIDs) == 0 {
		return out, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT event_id, state_key, geometry, direction, source, created_at, updated_at, event_start_time, event_end_time
		FROM event_geometries
		WHERE event_id = ANY($1)
	`, eventIDs)
	if err != nil {
		return nil, fmt.Errorf("lookup geometries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		rec, err := scanPostgres(rows)
		if err != nil {
			return nil, err
		}
		out[rec.EventID] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("lookup geometries: %w", err)
	}
	return out, nil
}

func scanPostgres(rows pgx.Rows) (domain.GeometryRecord, error) {
	var (
		rec       domain.GeometryRecord
		geom      []byte
		direction string
		start     *time.Time
	)
	if err := rows.Scan(&rec.EventID, &rec.StateKey, &geom, &direction, &rec.Source,
		&rec.CreatedAt, &rec.UpdatedAt, &start, &rec.EventEndTime); err != nil {
		return rec, fmt.Errorf("scan geometry: %w", err)
	}
	g, err := decodeGeometry(geom)
	if err != nil {
		return rec, err
	}
	rec.Geometry = g
	rec.Direction = domain.Direction(direction)
	if start != nil {
		rec.EventStartTime = start.UTC()
	}
	return rec, nil
}

func (s *PostgresStore) DeleteExpired(ctx context.Context, now, staleBefore time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM event_geometries
		WHERE event_end_time < $1
		   OR (event_end_time IS NULL AND updated_at < $2)
	`, now.UTC(), staleBefore.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete expired geometries: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Ping is used by the readiness check to validate DB connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close shuts down the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
