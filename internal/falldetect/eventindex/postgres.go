// Package eventindex optionally mirrors saved fall events into
// Postgres for querying (camera, timestamp, path, decision snapshot).
// It carries no embeddings and performs no recognition — purely an
// index over what saver already wrote to disk.
package eventindex

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/your-org/falldetect/internal/falldetect/config"
	"github.com/your-org/falldetect/internal/falldetect/saver"
)

// Store is a thin pgxpool wrapper over a single fall_events table.
type Store struct {
	pool *pgxpool.Pool
}

// Connect opens a pool against cfg and verifies connectivity.
func Connect(ctx context.Context, cfg config.PostgresConfig) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Store{pool: pool}, nil
}

// EnsureSchema creates the fall_events table if it doesn't exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS fall_events (
			event_id      TEXT PRIMARY KEY,
			camera_id     TEXT NOT NULL,
			timestamp_utc TIMESTAMPTZ NOT NULL,
			event_dir     TEXT NOT NULL,
			decision      JSONB NOT NULL,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		return fmt.Errorf("ensure fall_events schema: %w", err)
	}
	return nil
}

// IndexEvent inserts a row for a saved event. Implements
// saver.Indexer: called after a successful save, never on the hot
// detection path.
func (s *Store) IndexEvent(ctx context.Context, ev saver.CompletedEvent, eventDir string) error {
	ts, err := time.Parse("2006-01-02T15:04:05Z", ev.TsUTC)
	if err != nil {
		return fmt.Errorf("parse event timestamp: %w", err)
	}

	decision, err := json.Marshal(ev.Features)
	if err != nil {
		return fmt.Errorf("marshal decision: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO fall_events (event_id, camera_id, timestamp_utc, event_dir, decision)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (event_id) DO NOTHING
	`, ev.EventID, ev.CameraID, ts, eventDir, decision)
	if err != nil {
		return fmt.Errorf("insert fall event: %w", err)
	}
	return nil
}

// EventSummary is one row returned by ListEvents.
type EventSummary struct {
	EventID      string
	CameraID     string
	TimestampUTC time.Time
	EventDir     string
}

// ListEvents returns the most recent events for a camera (or all
// cameras if cameraID is empty), newest first.
func (s *Store) ListEvents(ctx context.Context, cameraID string, limit int) ([]EventSummary, error) {
	var rows pgx.Rows
	var err error
	if cameraID == "" {
		rows, err = s.pool.Query(ctx,
			`SELECT event_id, camera_id, timestamp_utc, event_dir FROM fall_events ORDER BY timestamp_utc DESC LIMIT $1`,
			limit)
	} else {
		rows, err = s.pool.Query(ctx,
			`SELECT event_id, camera_id, timestamp_utc, event_dir FROM fall_events WHERE camera_id = $1 ORDER BY timestamp_utc DESC LIMIT $2`,
			cameraID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("query fall events: %w", err)
	}
	defer rows.Close()

	var out []EventSummary
	for rows.Next() {
		var e EventSummary
		if err := rows.Scan(&e.EventID, &e.CameraID, &e.TimestampUTC, &e.EventDir); err != nil {
			return nil, fmt.Errorf("scan fall event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close releases the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
}
