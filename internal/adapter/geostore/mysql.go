package geostore

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/couchcryptid/road-event-etl/internal/domain"
)

//go:embed schema_mysql.sql
var mysqlSchema string

// MySQLStore keeps geometries in MySQL or MariaDB.
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore opens a connection pool for dsn
// (user:pass@tcp(host:3306)/dbname) and verifies it with a ping. Times are
// always parsed and stored in UTC.
func NewMySQLStore(ctx context.Context, dsn string) (*MySQLStore, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("mysql connector: %w", err)
	}
	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}
	return &MySQLStore{db: db}, nil
}

// EnsureSchema applies the embedded schema. Safe to run multiple times.
func (s *MySQLStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range splitStatements(mysqlSchema) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// splitStatements splits a schema file on semicolons. The schema holds no
// string literals containing ';'.
func splitStatements(schema string) []string {
	var out []string
	for _, part := range strings.Split(schema, ";") {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	return out
}

const mysqlUpsert = `
	INSERT INTO event_geometries
		(event_id, state_key, geometry, direction, source, created_at, updated_at, event_start_time, event_end_time)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON DUPLICATE KEY UPDATE
		state_key        = VALUES(state_key),
		geometry         = VALUES(geometry),
		direction        = VALUES(direction),
		source           = VALUES(source),
		updated_at       = VALUES(updated_at),
		event_start_time = VALUES(event_start_time),
		event_end_time   = VALUES(event_end_time)`

// Upsert inserts rec or updates the existing row. created_at is kept from the
// first insert.
func (s *MySQLStore) Upsert(ctx context.Context, rec domain.GeometryRecord) error {
	geom, err := encodeGeometry(rec.Geometry)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, mysqlUpsert,
		rec.EventID, rec.StateKey, string(geom), string(rec.Direction), rec.Source,
		rec.CreatedAt.UTC(), rec.UpdatedAt.UTC(), nullTime(rec.EventStartTime), nullEnd(rec.EventEndTime),
	)
	if err != nil {
		return fmt.Errorf("upsert geometry %s: %w", rec.EventID, err)
	}
	return nil
}

func nullEnd(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func (s *MySQLStore) Lookup(ctx context.Context, eventIDs []string) (map[string]domain.GeometryRecord, error) {
	out := make(map[string]domain.GeometryRecord)
	if len(eventIDs) == 0 {
		return out, nil
	}
	args := make([]any, len(eventIDs))
	for i, id := range eventIDs {
		args[i] = id
	}
	query := `
		SELECT event_id, state_key, geometry, direction, source, created_at, updated_at, event_start_time, event_end_time
		FROM event_geometries
		WHERE event_id IN (` + placeholders(len(eventIDs)) + `)`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("lookup geometries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			rec        domain.GeometryRecord
			geom       []byte
			direction  string
			start, end sql.NullTime
		)
		if err := rows.Scan(&rec.EventID, &rec.StateKey, &geom, &direction, &rec.Source,
			&rec.CreatedAt, &rec.UpdatedAt, &start, &end); err != nil {
			return nil, fmt.Errorf("scan geometry: %w", err)
		}
		if rec.Geometry, err = decodeGeometry(geom); err != nil {
			return nil, err
		}
		rec.Direction = domain.Direction(direction)
		if start.Valid {
			rec.EventStartTime = start.Time
		}
		if end.Valid {
			t := end.Time
			rec.EventEndTime = &t
		}
		out[rec.EventID] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("lookup geometries: %w", err)
	}
	return out, nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func (s *MySQLStore) DeleteExpired(ctx context.Context, now, staleBefore time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM event_geometries
		WHERE event_end_time < ?
		   OR (event_end_time IS NULL AND updated_at < ?)
	`, now.UTC(), staleBefore.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete expired geometries: %w", err)
	}
	return res.RowsAffected()
}

func (s *MySQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *MySQLStore) Close() error {
	return s.db.Close()
}
