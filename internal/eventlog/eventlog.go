// Package eventlog is a one-way audit sink for pool lifecycle events
// (connect failures, reconnect cycles, shutdowns). It is explicitly NOT
// pool-state persistence: the pool never reads from it, and losing it
// does not affect pool correctness (spec.md's Non-goals exclude
// "persistence of pool state across process restarts" — this is an
// observability trail, not a restart mechanism).
package eventlog

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind enumerates the events this package records.
type Kind string

const (
	KindConnectSucceeded   Kind = "connect_succeeded"
	KindConnectFailed      Kind = "connect_failed"
	KindReconnectStarted   Kind = "reconnect_started"
	KindReconnectSucceeded Kind = "reconnect_succeeded"
	KindReconnectFailed    Kind = "reconnect_failed"
	KindShutdown           Kind = "shutdown"
	KindDrainTimeout       Kind = "drain_timeout"
)

// Event is a single audit row.
type Event struct {
	ID        string    `json:"id"`
	NodeID    int       `json:"node_id"`
	Timestamp time.Time `json:"timestamp"`
	Kind      Kind      `json:"kind"`
	Message   string    `json:"message"`
}

// NewEvent stamps a fresh correlation id and timestamp.
func NewEvent(nodeID int, kind Kind, message string) Event {
	return Event{
		ID:        uuid.New().String(),
		NodeID:    nodeID,
		Timestamp: time.Now().UTC(),
		Kind:      kind,
		Message:   message,
	}
}

// Store is the audit sink contract. Implementations must tolerate
// concurrent RecordEvent calls from multiple pools/goroutines.
type Store interface {
	RecordEvent(ctx context.Context, e Event) error
	ListEvents(ctx context.Context, limit int) ([]Event, error)
	Close() error
}

// Config selects and parameterizes a Store implementation.
type Config struct {
	Driver string // "filesystem", "postgres", "sqlite", or "" to disable
	DSN    string
}

// NewStore builds a Store per cfg.Driver.
func NewStore(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", "none":
		return NoopStore{}, nil
	case "filesystem":
		return NewFilesystemStore(cfg.DSN)
	case "postgres":
		return NewPostgresStore(ctx, cfg.DSN)
	case "sqlite":
		return NewSQLiteStore(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("eventlog: unknown driver %q", cfg.Driver)
	}
}

// NoopStore discards everything. Used when event logging is disabled.
type NoopStore struct{}

func (NoopStore) RecordEvent(ctx context.Context, e Event) error { return nil }
func (NoopStore) ListEvents(ctx context.Context, limit int) ([]Event, error) {
	return nil, nil
}
func (NoopStore) Close() error { return nil }
