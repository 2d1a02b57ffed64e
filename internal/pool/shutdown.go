package pool

import (
	"fmt"
	"log/slog"
	"time"
)

// Shutdown runs the drain-then-teardown protocol (spec.md §4.6). With
// end=true it is the terminal, operator-triggered shutdown: new Acquire
// calls are rejected immediately and the pool can never Connect again.
// With end=false it is the teardown half of a reconnect cycle: the pool is
// left DISCONNECTED but still usable by a follow-up Connect.
//
// Shutdown always returns OK — the drain timing out is logged, not
// surfaced, and teardown swallows driver-level close errors.
func (p *Pool) Shutdown(end bool) Status {
	log := slog.With("node_id", p.nodeID, "terminal", end)

	if end {
		p.infoLock.Lock()
		p.stats.IsShuttingDown = true
		p.infoLock.Unlock()
	}

	if !p.drain(log) {
		log.Error("shutdown: drain deadline exceeded, proceeding with teardown")
	}

	p.infoLock.Lock()
	p.stats.ConnectionState = StateDisconnected
	p.infoLock.Unlock()

	p.connLock.Lock()
	all := p.all
	conn := p.conn
	p.all = nil
	p.available = nil
	p.conn = nil
	if end {
		p.reconnectWorker = nil
	}
	p.connLock.Unlock()

	for _, h := range all {
		if err := h.Close(); err != nil {
			log.Warn("shutdown: handle close returned error", "error", err)
		}
	}
	if conn != nil {
		if err := conn.Close(); err != nil {
			log.Warn("shutdown: connection close returned error", "error", err)
		}
	}

	p.infoLock.Lock()
	p.stats.HandlesCreated = 0
	p.stats.HandlesDeleted = 0
	p.stats.HandlesCount = 0
	if end {
		p.stats.IsShutdown = true
		p.stats.IsShuttingDown = false
	}
	p.infoLock.Unlock()

	log.Info("shutdown: teardown complete")
	return statusOK()
}

// drain waits for every checked-out handle to come back to the available
// sequence, polling at DrainPollIntervalMS and giving up after
// DrainCapSeconds. Returns false if the cap was hit with handles still
// outstanding (spec.md §4.6 step 2).
func (p *Pool) drain(log *slog.Logger) bool {
	deadline := time.Now().Add(time.Duration(p.opts.DrainCapSeconds) * time.Second)
	interval := time.Duration(p.opts.DrainPollIntervalMS) * time.Millisecond

	for {
		p.connLock.Lock()
		outstanding := len(p.all) - len(p.available)
		p.connLock.Unlock()

		if outstanding <= 0 {
			return true
		}
		if time.Now().After(deadline) {
			log.Warn("drain: handles still outstanding at cap", "outstanding", outstanding)
			p.emit(EventDrainTimeout, fmt.Sprintf("drain cap exceeded with %d handle(s) outstanding", outstanding))
			return false
		}
		time.Sleep(interval)
	}
}
