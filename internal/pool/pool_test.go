package pool

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rbias/ndbpool/internal/driver"
)

// fastOptions shrinks the drain poll/cap so tests don't take 120 seconds to
// hit the timeout path.
func fastOptions() Options {
	return Options{
		ConnectRetries:             1,
		ConnectRetryDelaySeconds:   0,
		ClusterReadyTimeoutSeconds: 1,
		NodeReadyCheckUnits:        1,
		DrainPollIntervalMS:        5,
		DrainCapSeconds:            1,
	}
}

func newTestPool() (*Pool, *driver.Simulated) {
	sim := &driver.Simulated{}
	p := New("host:1186", 101, sim, fastOptions())
	return p, sim
}

// Scenario 1: happy path.
func TestHappyPath(t *testing.T) {
	p, _ := newTestPool()

	if status := p.Connect(context.Background()); !status.OK() {
		t.Fatalf("Connect failed: %+v", status)
	}

	h1, status := p.Acquire(context.Background())
	if !status.OK() {
		t.Fatalf("Acquire failed: %+v", status)
	}
	p.Release(h1, nil)

	h2, status := p.Acquire(context.Background())
	if !status.OK() {
		t.Fatalf("second Acquire failed: %+v", status)
	}
	if h2 != h1 {
		t.Fatalf("expected FIFO reuse of H1, got a different handle")
	}

	stats := p.GetStats()
	if stats.ConnectionState != StateConnected || stats.HandlesCreated != 1 || stats.HandlesAvailable != 0 {
		t.Fatalf("unexpected stats after checkout: %+v", stats)
	}
	p.Release(h2, nil)
	stats = p.GetStats()
	if stats.HandlesAvailable != 1 {
		t.Fatalf("expected 1 available after release, got %+v", stats)
	}

	if status := p.Shutdown(true); !status.OK() {
		t.Fatalf("Shutdown failed: %+v", status)
	}
	stats = p.GetStats()
	if stats.ConnectionState != StateDisconnected || !stats.IsShutdown || stats.HandlesCreated != 0 {
		t.Fatalf("unexpected stats after shutdown: %+v", stats)
	}
}

// Scenario 2 / P1 / P2 / P3: elastic growth under concurrency.
func TestElasticGrowthConcurrent(t *testing.T) {
	p, _ := newTestPool()
	if status := p.Connect(context.Background()); !status.OK() {
		t.Fatalf("Connect failed: %+v", status)
	}

	const goroutines = 16
	const iterations = 200

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				h, status := p.Acquire(context.Background())
				if !status.OK() {
					continue
				}
				p.Release(h, nil)
			}
		}()
	}
	wg.Wait()

	stats := p.GetStats()
	if stats.HandlesCreated > goroutines {
		t.Fatalf("P1/elastic bound violated: handles_created=%d > %d goroutines", stats.HandlesCreated, goroutines)
	}
	if int64(stats.HandlesAvailable) != stats.HandlesCreated {
		t.Fatalf("expected all handles returned: available=%d created=%d", stats.HandlesAvailable, stats.HandlesCreated)
	}
}

// Scenario 3: link-loss trigger arms a reconnect that eventually succeeds
// and resets handles_created (P6).
func TestLinkLossTriggersReconnect(t *testing.T) {
	p, _ := newTestPool()
	if status := p.Connect(context.Background()); !status.OK() {
		t.Fatalf("Connect failed: %+v", status)
	}

	h, status := p.Acquire(context.Background())
	if !status.OK() {
		t.Fatalf("Acquire failed: %+v", status)
	}

	p.Release(h, &driver.Outcome{Classification: driver.ClassificationUnknownResultError})

	deadline := time.Now().Add(2 * time.Second)
	sawReconnecting := false
	for time.Now().Before(deadline) {
		if p.GetStats().IsReconnectionInProgress {
			sawReconnecting = true
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if !sawReconnecting {
		t.Fatalf("expected is_reconnection_in_progress to be observed true within 2s")
	}

	deadline = time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		stats := p.GetStats()
		if stats.ConnectionState == StateConnected && !stats.IsReconnectionInProgress {
			if stats.HandlesCreated != 0 {
				t.Fatalf("expected handles_created reset to 0 after reconnect, got %d", stats.HandlesCreated)
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("reconnect did not complete within deadline")
}

// Scenario 4 / R1 / P4: duplicate reconnect triggers spawn at most one
// worker.
func TestDuplicateReconnectTrigger(t *testing.T) {
	p, _ := newTestPool()
	if status := p.Connect(context.Background()); !status.OK() {
		t.Fatalf("Connect failed: %+v", status)
	}

	first := p.Reconnect()
	second := p.Reconnect()

	if !first.OK() {
		t.Fatalf("expected first Reconnect to succeed, got %+v", first)
	}
	if second.Code != CodeReconnectInFlight {
		t.Fatalf("expected second Reconnect to report ReconnectInFlight, got %+v", second)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && p.GetStats().IsReconnectionInProgress {
		time.Sleep(5 * time.Millisecond)
	}
	if p.GetStats().IsReconnectionInProgress {
		t.Fatalf("reconnect never completed")
	}
}

// R1 under real concurrency: N concurrent Reconnect calls spawn at most one
// worker, observed by counting how many callers got the OK that arms a
// worker versus ReconnectInFlight.
func TestReconnectConcurrentCallersSpawnAtMostOne(t *testing.T) {
	p, _ := newTestPool()
	if status := p.Connect(context.Background()); !status.OK() {
		t.Fatalf("Connect failed: %+v", status)
	}

	const callers = 50
	var armed int
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			status := p.Reconnect()
			if status.OK() {
				mu.Lock()
				armed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if armed != 1 {
		t.Fatalf("expected exactly one caller to arm the reconnect worker, got %d", armed)
	}
}

// Scenario 5: shutdown mid-flight drains outstanding handles within the
// cap and reports success with counters reset.
func TestShutdownMidFlight(t *testing.T) {
	p, _ := newTestPool()
	if status := p.Connect(context.Background()); !status.OK() {
		t.Fatalf("Connect failed: %+v", status)
	}

	var handles []driver.Handle
	for i := 0; i < 4; i++ {
		h, status := p.Acquire(context.Background())
		if !status.OK() {
			t.Fatalf("Acquire %d failed: %+v", i, status)
		}
		handles = append(handles, h)
	}

	done := make(chan Status, 1)
	go func() {
		done <- p.Shutdown(true)
	}()

	time.Sleep(20 * time.Millisecond)
	for _, h := range handles {
		p.Release(h, nil)
	}

	select {
	case status := <-done:
		if !status.OK() {
			t.Fatalf("Shutdown returned non-OK: %+v", status)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Shutdown did not return within 2s")
	}

	stats := p.GetStats()
	if stats.HandlesCreated != 0 || !stats.IsShutdown {
		t.Fatalf("unexpected post-shutdown stats: %+v", stats)
	}
}

// Scenario 6: shutdown with a handle never released proceeds past the
// drain cap and still reports OK, leaking the handle by contract.
func TestShutdownDrainTimeout(t *testing.T) {
	p, _ := newTestPool()
	if status := p.Connect(context.Background()); !status.OK() {
		t.Fatalf("Connect failed: %+v", status)
	}

	if _, status := p.Acquire(context.Background()); !status.OK() {
		t.Fatalf("Acquire failed: %+v", status)
	}

	start := time.Now()
	status := p.Shutdown(true)
	elapsed := time.Since(start)

	if !status.OK() {
		t.Fatalf("Shutdown should still report OK after a drain timeout: %+v", status)
	}
	if elapsed < time.Duration(p.opts.DrainCapSeconds)*time.Second {
		t.Fatalf("Shutdown returned before the drain cap elapsed: %v", elapsed)
	}
	if !p.GetStats().IsShutdown {
		t.Fatalf("expected is_shutdown true")
	}
}

// P5: after terminal shutdown, every subsequent Acquire is rejected and
// handles_count is 0.
func TestAcquireAfterTerminalShutdownRejected(t *testing.T) {
	p, _ := newTestPool()
	if status := p.Connect(context.Background()); !status.OK() {
		t.Fatalf("Connect failed: %+v", status)
	}
	if status := p.Shutdown(true); !status.OK() {
		t.Fatalf("Shutdown failed: %+v", status)
	}

	for i := 0; i < 5; i++ {
		_, status := p.Acquire(context.Background())
		if status.Code != CodeShutdownRejected {
			t.Fatalf("expected ShutdownRejected, got %+v", status)
		}
	}
	if stats := p.GetStats(); stats.HandlesCount != 0 {
		t.Fatalf("expected handles_count 0 post-shutdown, got %d", stats.HandlesCount)
	}
}

// R2: Shutdown(end=false) followed by Connect leaves the pool operational,
// equivalent to a fresh pool minus the first connect.
func TestShutdownFalseThenConnectIsOperational(t *testing.T) {
	p, _ := newTestPool()
	if status := p.Connect(context.Background()); !status.OK() {
		t.Fatalf("Connect failed: %+v", status)
	}
	if _, status := p.Acquire(context.Background()); !status.OK() {
		t.Fatalf("Acquire failed: %+v", status)
	}

	if status := p.Shutdown(false); !status.OK() {
		t.Fatalf("Shutdown(false) failed: %+v", status)
	}
	stats := p.GetStats()
	if stats.ConnectionState != StateDisconnected || stats.IsShutdown {
		t.Fatalf("Shutdown(false) should leave the pool disconnected but not terminally shut down: %+v", stats)
	}

	if status := p.Connect(context.Background()); !status.OK() {
		t.Fatalf("Connect after Shutdown(false) failed: %+v", status)
	}
	h, status := p.Acquire(context.Background())
	if !status.OK() {
		t.Fatalf("Acquire after reconnect failed: %+v", status)
	}
	p.Release(h, nil)

	stats = p.GetStats()
	if stats.ConnectionState != StateConnected || stats.HandlesCreated != 1 {
		t.Fatalf("unexpected stats after Shutdown(false)+Connect cycle: %+v", stats)
	}
}

// Acquire init failure destroys the just-constructed handle (not a
// dangling local) and leaves counters unchanged — the fixed bug from
// spec.md §9.
func TestAcquireInitFailureDestroysHandle(t *testing.T) {
	p, sim := newTestPool()
	if status := p.Connect(context.Background()); !status.OK() {
		t.Fatalf("Connect failed: %+v", status)
	}

	sim.FailInit.Store(true)
	_, status := p.Acquire(context.Background())
	if status.Code != CodeHandleInitFailed {
		t.Fatalf("expected HandleInitFailed, got %+v", status)
	}

	stats := p.GetStats()
	if stats.HandlesCreated != 0 || stats.HandlesCount != 0 {
		t.Fatalf("init failure must not bump counters: %+v", stats)
	}

	sim.FailInit.Store(false)
	h, status := p.Acquire(context.Background())
	if !status.OK() {
		t.Fatalf("Acquire after clearing FailInit should succeed: %+v", status)
	}
	p.Release(h, nil)
}

// Connect failure (driver-level) leaves the pool DISCONNECTED and reports
// ConnectFailed, never panicking or partially mutating state.
func TestConnectFailureLeavesDisconnected(t *testing.T) {
	p, sim := newTestPool()
	sim.FailConnect.Store(true)

	status := p.Connect(context.Background())
	if status.Code != CodeConnectFailed {
		t.Fatalf("expected ConnectFailed, got %+v", status)
	}
	if stats := p.GetStats(); stats.ConnectionState != StateDisconnected {
		t.Fatalf("expected DISCONNECTED after failed connect, got %+v", stats)
	}

	sim.FailConnect.Store(false)
	if status := p.Connect(context.Background()); !status.OK() {
		t.Fatalf("retry after clearing FailConnect should succeed: %+v", status)
	}
}

// WaitUntilReady failure likewise leaves the pool DISCONNECTED.
func TestWaitUntilReadyFailureLeavesDisconnected(t *testing.T) {
	p, sim := newTestPool()
	sim.FailWaitUntilReady.Store(true)

	status := p.Connect(context.Background())
	if status.Code != CodeNotReady {
		t.Fatalf("expected NotReady, got %+v", status)
	}
	if stats := p.GetStats(); stats.ConnectionState != StateDisconnected {
		t.Fatalf("expected DISCONNECTED after not-ready, got %+v", stats)
	}
}

// Acquire before any Connect returns NotConnected and arms a reconnect.
func TestAcquireBeforeConnect(t *testing.T) {
	p, _ := newTestPool()
	_, status := p.Acquire(context.Background())
	if status.Code != CodeNotConnected {
		t.Fatalf("expected NotConnected, got %+v", status)
	}
}

// Release is infallible even when handed a nil handle.
func TestReleaseNilHandle(t *testing.T) {
	p, _ := newTestPool()
	p.Release(nil, nil)
}

// gatedObserver lets a test force ShouldAttempt's return value and records
// whether a dial outcome was ever reported.
type gatedObserver struct {
	allow       bool
	failureSeen bool
	successSeen bool
}

func (g *gatedObserver) RecordFailure(reason string) { g.failureSeen = true }
func (g *gatedObserver) RecordSuccess() (alert bool) { g.successSeen = true; return false }
func (g *gatedObserver) ShouldAttempt() bool         { return g.allow }

// An open circuit (ShouldAttempt false) must make runReconnect skip the
// teardown and dial-out entirely: no Connect is attempted, so the observer
// never sees a failure or success, and the existing connection is left
// untouched (still CONNECTED) rather than torn down or re-dialed.
func TestReconnectSkippedWhenObserverGateClosed(t *testing.T) {
	p, _ := newTestPool()
	if status := p.Connect(context.Background()); !status.OK() {
		t.Fatalf("Connect failed: %+v", status)
	}

	obs := &gatedObserver{allow: false}
	p.SetReconnectObserver(obs)

	if status := p.Reconnect(); !status.OK() {
		t.Fatalf("expected Reconnect to arm, got %+v", status)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && p.GetStats().IsReconnectionInProgress {
		time.Sleep(5 * time.Millisecond)
	}
	if p.GetStats().IsReconnectionInProgress {
		t.Fatalf("reconnect cycle never completed")
	}

	if obs.failureSeen || obs.successSeen {
		t.Fatalf("observer should not see any dial outcome when the gate is closed: %+v", obs)
	}
	if p.GetStats().ConnectionState != StateConnected {
		t.Fatalf("expected CONNECTED (connection untouched) after a gated (skipped) reconnect cycle, got %+v", p.GetStats())
	}
}

// recordingSink captures every emitted event kind for assertion.
type recordingSink struct {
	mu    sync.Mutex
	kinds []string
}

func (s *recordingSink) Record(kind, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kinds = append(s.kinds, kind)
}

func (s *recordingSink) seen(kind string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range s.kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// A successful reconnect cycle emits start and success events on the
// installed EventSink.
func TestReconnectEmitsLifecycleEvents(t *testing.T) {
	p, _ := newTestPool()
	if status := p.Connect(context.Background()); !status.OK() {
		t.Fatalf("Connect failed: %+v", status)
	}

	sink := &recordingSink{}
	p.SetEventSink(sink)

	if status := p.Reconnect(); !status.OK() {
		t.Fatalf("expected Reconnect to arm, got %+v", status)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && p.GetStats().IsReconnectionInProgress {
		time.Sleep(5 * time.Millisecond)
	}

	if !sink.seen(EventReconnectStarted) {
		t.Fatalf("expected %s to be emitted, got %v", EventReconnectStarted, sink.kinds)
	}
	if !sink.seen(EventReconnectSucceeded) {
		t.Fatalf("expected %s to be emitted, got %v", EventReconnectSucceeded, sink.kinds)
	}
}

// A drain that times out with a handle outstanding emits EventDrainTimeout.
func TestDrainTimeoutEmitsEvent(t *testing.T) {
	p, _ := newTestPool()
	if status := p.Connect(context.Background()); !status.OK() {
		t.Fatalf("Connect failed: %+v", status)
	}
	if _, status := p.Acquire(context.Background()); !status.OK() {
		t.Fatalf("Acquire failed: %+v", status)
	}

	sink := &recordingSink{}
	p.SetEventSink(sink)

	if status := p.Shutdown(true); !status.OK() {
		t.Fatalf("Shutdown should still report OK after a drain timeout: %+v", status)
	}
	if !sink.seen(EventDrainTimeout) {
		t.Fatalf("expected %s to be emitted, got %v", EventDrainTimeout, sink.kinds)
	}
}
