package eventlog

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists events to an embedded SQLite database file — the
// single-binary, no-external-dependency alternative to PostgresStore for
// small deployments, grounded on the teacher's
// internal/storage/sqlite/sqlite.go.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if necessary) the SQLite database at
// path and ensures the pool_events table exists.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("eventlog: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite: single-writer discipline

	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS pool_events (
			id      TEXT PRIMARY KEY,
			node_id INTEGER NOT NULL,
			ts      TIMESTAMP NOT NULL,
			kind    TEXT NOT NULL,
			message TEXT NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("eventlog: create table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) RecordEvent(ctx context.Context, e Event) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pool_events (id, node_id, ts, kind, message)
		VALUES (?, ?, ?, ?, ?)
	`, e.ID, e.NodeID, e.Timestamp, string(e.Kind), e.Message)
	if err != nil {
		return fmt.Errorf("eventlog: insert event: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListEvents(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, node_id, ts, kind, message
		FROM pool_events
		ORDER BY ts DESC
		LIMIT ?
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

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
