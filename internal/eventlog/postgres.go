package eventlog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresStore persists events to a Postgres table, grounded on the
// teacher's internal/storage/postgres/postgres.go connection-pooling and
// CRUD shape.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens a connection pool against dsn, verifies
// connectivity with a ping, and applies the pool_events migrations.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("eventlog: open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("eventlog: ping postgres: %w", err)
	}

	if err := RunMigrations("postgres", db); err != nil {
		db.Close()
		return nil, err
	}

	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) RecordEvent(ctx context.Context, e Event) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pool_events (id, node_id, ts, kind, message)
		VALUES ($1, $2, $3, $4, $5)
	`, e.ID, e.NodeID, e.Timestamp, string(e.Kind), e.Message)
	if err != nil {
		return fmt.Errorf("eventlog: insert event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListEvents(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, node_id, ts, kind, message
		FROM pool_events
		ORDER BY ts DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("eventlog: query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var kind string
		if err := rows.Scan(&e.ID, &e.NodeID, &e.Timestamp, &kind, &e.Message); err != nil {
			return nil, fmt.Errorf("eventlog: scan event: %w", err)
		}
		e.Kind = Kind(kind)
		events = append(events, e)
	}
	return events, rows.Err()
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
