package pool

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// ReconnectObserver lets an ambient component (the reporting circuit
// breaker) track reconnect outcomes, and gate whether the next cycle is
// even allowed to dial out, without the pool importing it directly — the
// same interface-at-the-boundary style the teacher uses to keep
// internal/cluster free of internal/health (see ConnectionManagerHealth in
// the teacher's health/server.go).
type ReconnectObserver interface {
	RecordFailure(reason string)
	RecordSuccess() (needsRecoveryAlert bool)

	// ShouldAttempt reports whether runReconnect should actually perform
	// the teardown+dial. A false return means the observer's circuit is
	// open: the cycle is skipped and the in-progress flag is cleared
	// without touching the connection.
	ShouldAttempt() bool
}

// EventSink receives a one-line audit record of reconnect/drain lifecycle
// events (internal/eventlog in cmd/ndbpoolsrv), the same
// interface-at-the-boundary style as ReconnectObserver so the pool never
// imports internal/eventlog. kind matches one of the Event* constants below.
type EventSink interface {
	Record(kind, message string)
}

// Event kinds an EventSink may receive. These mirror internal/eventlog's
// Kind string values so main.go's adapter can pass them straight through as
// eventlog.Kind(kind) without the pool importing that package.
const (
	EventReconnectStarted   = "reconnect_started"
	EventReconnectSucceeded = "reconnect_succeeded"
	EventReconnectFailed    = "reconnect_failed"
	EventDrainTimeout       = "drain_timeout"
)

// SetReconnectObserver installs the observer notified of reconnect
// successes and failures, and consulted before every dial-out. Passing nil
// disables notification and gating (every reconnect dials out).
func (p *Pool) SetReconnectObserver(o ReconnectObserver) {
	p.connLock.Lock()
	defer p.connLock.Unlock()
	p.observer = o
}

// SetEventSink installs the audit sink notified of reconnect/drain
// lifecycle events. Passing nil disables it.
func (p *Pool) SetEventSink(s EventSink) {
	p.connLock.Lock()
	defer p.connLock.Unlock()
	p.sink = s
}

func (p *Pool) emit(kind, message string) {
	p.connLock.Lock()
	s := p.sink
	p.connLock.Unlock()
	if s != nil {
		s.Record(kind, message)
	}
}

// reconnectWorker is a descriptor for the single in-flight reconnect cycle,
// kept only for log correlation — the "at most one worker" guarantee comes
// from the IsReconnectionInProgress flag under infoLock, not from this
// struct.
type reconnectWorker struct {
	cycleID   string
	startedAt time.Time
}

// Reconnect arms a drain-then-reconnect cycle if one is not already running
// and the pool is not shutting down or shut down. It is idempotent under
// concurrent callers (spec.md R1): only the caller that wins the
// compare-and-set on IsReconnectionInProgress spawns a worker; everyone
// else gets ReconnectInFlight.
func (p *Pool) Reconnect() Status {
	p.infoLock.Lock()
	if p.stats.IsShutdown || p.stats.IsShuttingDown {
		p.infoLock.Unlock()
		return statusShutdownRejected()
	}
	if p.stats.IsReconnectionInProgress {
		p.infoLock.Unlock()
		return statusReconnectInFlight()
	}
	p.stats.IsReconnectionInProgress = true
	p.infoLock.Unlock()

	worker := &reconnectWorker{cycleID: uuid.New().String(), startedAt: time.Now()}

	p.connLock.Lock()
	p.reconnectWorker = worker
	p.connLock.Unlock()

	go p.runReconnect(worker)

	return statusOK()
}

// runReconnect is the background cycle's body, implemented exactly to
// spec.md §4.4: tear down (Shutdown with end=false), then Connect. The
// flag is cleared on every exit path — including a panic part-way through,
// which is the bug spec.md calls out explicitly: a worker-spawn failure
// must never leave is_reconnection_in_progress stuck true.
func (p *Pool) runReconnect(worker *reconnectWorker) {
	defer func() {
		p.infoLock.Lock()
		p.stats.IsReconnectionInProgress = false
		p.infoLock.Unlock()

		p.connLock.Lock()
		if p.reconnectWorker == worker {
			p.reconnectWorker = nil
		}
		p.connLock.Unlock()
	}()

	log := slog.With("cycle_id", worker.cycleID, "node_id", p.nodeID)
	log.Info("reconnect cycle starting")
	p.emit(EventReconnectStarted, fmt.Sprintf("cycle %s starting", worker.cycleID))

	obs := p.currentObserver()
	if obs != nil && !obs.ShouldAttempt() {
		log.Warn("reconnect cycle: circuit breaker open, skipping dial-out")
		p.emit(EventReconnectFailed, fmt.Sprintf("cycle %s skipped: circuit breaker open", worker.cycleID))
		return
	}

	p.Shutdown(false)

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(p.opts.ClusterReadyTimeoutSeconds+5)*time.Second)
	defer cancel()

	status := p.Connect(ctx)
	if !status.OK() {
		log.Error("reconnect cycle: connect failed", "status", status.Message)
		p.emit(EventReconnectFailed, fmt.Sprintf("cycle %s failed: %s", worker.cycleID, status.Message))
		if obs != nil {
			obs.RecordFailure(status.Message)
		}
		return
	}

	p.emit(EventReconnectSucceeded, fmt.Sprintf("cycle %s succeeded", worker.cycleID))
	if obs != nil {
		if alert := obs.RecordSuccess(); alert {
			log.Info("reconnect cycle: recovered after prior failures")
		}
	}
	log.Info("reconnect cycle complete")
}

func (p *Pool) currentObserver() ReconnectObserver {
	p.connLock.Lock()
	defer p.connLock.Unlock()
	return p.observer
}
