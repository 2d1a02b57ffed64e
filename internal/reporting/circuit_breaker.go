// Package reporting holds the ambient surfaces that sit alongside the
// pool but are not part of its core contract: a circuit breaker that
// tracks reconnect-cycle failures for alerting, and a markdown/HTML
// renderer for stats snapshots.
package reporting

import (
	"sync"
	"time"

	"github.com/rbias/ndbpool/internal/config"
)

// CircuitBreakerState represents the current state of the circuit breaker.
type CircuitBreakerState int

const (
	// StateClosed indicates the circuit is closed (normal operation).
	StateClosed CircuitBreakerState = iota
	// StateOpen indicates the circuit is open (threshold reached).
	StateOpen
)

// CircuitBreaker tracks consecutive pool reconnect failures and determines
// when to alert. It implements pool.ReconnectObserver so a Pool can report
// into it without importing this package — including the ShouldAttempt gate
// the reconnect coordinator consults before every dial-out, which is what
// turns an open circuit into an actual skipped attempt rather than a number
// nobody reads.
type CircuitBreaker struct {
	mu               sync.RWMutex
	threshold        int
	window           time.Duration
	failureCount     int
	firstFailureTime time.Time
	lastFailureTime  time.Time
	openedAt         time.Time
	state            CircuitBreakerState
	alerted          bool
	failureReasons   []string
	maxReasons       int
}

// FailureStats contains statistics about failures for alert messages.
type FailureStats struct {
	Count            int
	FirstFailureTime time.Time
	LastFailureTime  time.Time
	Duration         time.Duration
	RecentReasons    []string
}

// NewCircuitBreaker creates a circuit breaker sized from tuning: threshold
// consecutive reconnect failures within window opens the circuit, and at
// most tuning.Reconnect.MaxFailureReasonsTracked reasons are retained.
func NewCircuitBreaker(threshold int, tuning *config.TuningConfig) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 3
	}
	maxReasons := 5
	window := 60 * time.Second
	if tuning != nil {
		if tuning.Reconnect.MaxFailureReasonsTracked > 0 {
			maxReasons = tuning.Reconnect.MaxFailureReasonsTracked
		}
		if tuning.Reconnect.WindowSeconds > 0 {
			window = time.Duration(tuning.Reconnect.WindowSeconds) * time.Second
		}
	}
	return &CircuitBreaker{
		threshold:      threshold,
		window:         window,
		state:          StateClosed,
		maxReasons:     maxReasons,
		failureReasons: make([]string, 0, maxReasons),
	}
}

// RecordFailure records a reconnect-cycle failure and updates state. A
// failure streak that has gone stale — more than a full window since its
// first failure while still closed — starts over instead of accumulating indefinitely,
// so the threshold is genuinely "N failures within window", not "N
// failures ever".
func (cb *CircuitBreaker) RecordFailure(reason string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := time.Now()

	if cb.failureCount == 0 {
		cb.firstFailureTime = now
	} else if cb.state == StateClosed && now.Sub(cb.firstFailureTime) > cb.window {
		cb.failureCount = 0
		cb.firstFailureTime = now
		cb.failureReasons = cb.failureReasons[:0]
	}

	cb.failureCount++
	cb.lastFailureTime = now

	cb.failureReasons = append(cb.failureReasons, reason)
	if len(cb.failureReasons) > cb.maxReasons {
		cb.failureReasons = cb.failureReasons[1:]
	}

	if cb.state == StateOpen {
		// A failed probe re-opens the circuit for another full window.
		cb.openedAt = now
	} else if cb.failureCount >= cb.threshold {
		cb.state = StateOpen
		cb.openedAt = now
	}
}

// RecordSuccess records a successful reconnect cycle and reports whether a
// recovery alert is owed (the circuit had been open and alerted).
func (cb *CircuitBreaker) RecordSuccess() (needsRecoveryAlert bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	needsRecoveryAlert = cb.state == StateOpen && cb.failureCount > 0 && cb.alerted

	cb.failureCount = 0
	cb.firstFailureTime = time.Time{}
	cb.lastFailureTime = time.Time{}
	cb.openedAt = time.Time{}
	cb.state = StateClosed
	cb.alerted = false
	cb.failureReasons = cb.failureReasons[:0]

	return needsRecoveryAlert
}

// ShouldAttempt reports whether the reconnect coordinator should perform an
// actual dial-out. It is always true while closed. Once open, it stays
// false until window has elapsed since the circuit tripped, at which point
// it lets a single probe attempt through (the dial's own RecordFailure /
// RecordSuccess call decides whether the circuit re-opens or closes) rather
// than flipping back to closed on a timer by itself.
func (cb *CircuitBreaker) ShouldAttempt() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != StateOpen {
		return true
	}
	return time.Since(cb.openedAt) >= cb.window
}

// ShouldAlert reports whether an alert should fire (threshold reached,
// not yet alerted) and latches alerted so it only fires once per open
// window.
func (cb *CircuitBreaker) ShouldAlert() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen && !cb.alerted {
		cb.alerted = true
		return true
	}
	return false
}

// GetStats returns current failure statistics for alert messages.
func (cb *CircuitBreaker) GetStats() FailureStats {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	duration := time.Duration(0)
	if !cb.firstFailureTime.IsZero() && !cb.lastFailureTime.IsZero() {
		duration = cb.lastFailureTime.Sub(cb.firstFailureTime)
	}

	reasons := make([]string, len(cb.failureReasons))
	copy(reasons, cb.failureReasons)

	return FailureStats{
		Count:            cb.failureCount,
		FirstFailureTime: cb.firstFailureTime,
		LastFailureTime:  cb.lastFailureTime,
		Duration:         duration,
		RecentReasons:    reasons,
	}
}

// GetState returns the current circuit breaker state.
func (cb *CircuitBreaker) GetState() CircuitBreakerState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// GetFailureCount returns the current consecutive-failure count.
func (cb *CircuitBreaker) GetFailureCount() int {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.failureCount
}

// Reset returns the circuit breaker to its initial state.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureCount = 0
	cb.firstFailureTime = time.Time{}
	cb.lastFailureTime = time.Time{}
	cb.openedAt = time.Time{}
	cb.state = StateClosed
	cb.alerted = false
	cb.failureReasons = cb.failureReasons[:0]
}
