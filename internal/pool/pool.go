// Package pool implements the connection-and-handle pool described in
// SPEC_FULL.md: one long-lived cluster connection, an elastic pool of
// short-lived driver handles checked out of it, and the reconnection state
// machine that rebuilds the connection when the cluster link is judged
// lost.
package pool

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rbias/ndbpool/internal/driver"
)

// Options holds the tunable parameters that would otherwise be literals
// in the native implementation (30s/30-unit readiness wait, 500ms drain
// poll, 120s drain cap). Zero-valued fields are filled in from
// DefaultOptions by New.
type Options struct {
	ConnectRetries           int
	ConnectRetryDelaySeconds int

	ClusterReadyTimeoutSeconds int
	NodeReadyCheckUnits        int

	DrainPollIntervalMS int
	DrainCapSeconds     int
}

// DefaultOptions returns the literal values the spec fixes: a 30-second
// cluster-ready deadline, 30 node-check units, a 500ms drain poll, and a
// 120-second drain cap.
func DefaultOptions() Options {
	return Options{
		ConnectRetries:             3,
		ConnectRetryDelaySeconds:   1,
		ClusterReadyTimeoutSeconds: 30,
		NodeReadyCheckUnits:        30,
		DrainPollIntervalMS:        500,
		DrainCapSeconds:            120,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.ConnectRetries == 0 {
		o.ConnectRetries = d.ConnectRetries
	}
	if o.ConnectRetryDelaySeconds == 0 {
		o.ConnectRetryDelaySeconds = d.ConnectRetryDelaySeconds
	}
	if o.ClusterReadyTimeoutSeconds == 0 {
		o.ClusterReadyTimeoutSeconds = d.ClusterReadyTimeoutSeconds
	}
	if o.NodeReadyCheckUnits == 0 {
		o.NodeReadyCheckUnits = d.NodeReadyCheckUnits
	}
	if o.DrainPollIntervalMS == 0 {
		o.DrainPollIntervalMS = d.DrainPollIntervalMS
	}
	if o.DrainCapSeconds == 0 {
		o.DrainCapSeconds = d.DrainCapSeconds
	}
	return o
}

// Pool is exactly one per process-level cluster connection (spec.md §3).
//
// connLock guards driver_connection, the two handle sequences, and the
// reconnect worker descriptor. infoLock guards the Stats record. Lock
// order is always connLock before infoLock (spec.md I7); never the
// reverse.
type Pool struct {
	connectionString string
	nodeID           int
	connector        driver.Connector
	opts             Options

	connLock        sync.Mutex
	conn            driver.Connection
	available       []driver.Handle
	all             []driver.Handle
	reconnectWorker *reconnectWorker
	observer        ReconnectObserver
	sink            EventSink

	infoLock sync.Mutex
	stats    Stats
}

// New creates a Pool in the DISCONNECTED, empty state. It does not dial
// out — call Connect to do that.
func New(connectionString string, nodeID int, connector driver.Connector, opts Options) *Pool {
	return &Pool{
		connectionString: connectionString,
		nodeID:           nodeID,
		connector:        connector,
		opts:             opts.withDefaults(),
		stats: Stats{
			ConnectionState: StateDisconnected,
		},
	}
}

// Connect builds a driver cluster connection, asks it to connect with the
// configured retries, then waits until ready. On success the pool
// transitions to CONNECTED; on any failure it is left DISCONNECTED and the
// error carries the driver's code and message (spec.md §4.1).
func (p *Pool) Connect(ctx context.Context) Status {
	p.infoLock.Lock()
	shutdownish := p.stats.IsShutdown || p.stats.IsShuttingDown
	state := p.stats.ConnectionState
	p.infoLock.Unlock()

	if shutdownish {
		return statusShutdownRejected()
	}

	p.connLock.Lock()
	if state == StateConnected || p.conn != nil {
		p.connLock.Unlock()
		panic("pool: Connect called on an already-connected pool")
	}

	status := p.dialLocked(ctx)
	p.connLock.Unlock()

	if !status.OK() {
		return status
	}

	p.infoLock.Lock()
	p.stats.ConnectionState = StateConnected
	p.infoLock.Unlock()

	slog.Info("cluster connection established", "node_id", p.nodeID)
	return statusOK()
}

// dialLocked builds a fresh driver connection and waits for it to become
// ready. The caller must hold connLock and must have already verified
// p.conn is nil. On success p.conn is set; on failure p.conn is left nil
// and any partially-built connection is closed.
func (p *Pool) dialLocked(ctx context.Context) Status {
	conn := p.connector.NewConnection(p.connectionString, p.nodeID)

	if rc := conn.Connect(ctx, p.opts.ConnectRetries, p.opts.ConnectRetryDelaySeconds); rc != 0 {
		msg := fmt.Sprintf("connect returned code %d", rc)
		_ = conn.Close()
		slog.Warn("cluster connect failed", "node_id", p.nodeID, "code", rc)
		return statusConnectFailed(rc, msg)
	}

	if rc := conn.WaitUntilReady(ctx, p.opts.ClusterReadyTimeoutSeconds, p.opts.NodeReadyCheckUnits); rc != 0 {
		errCode := conn.LatestError()
		errMsg := conn.LatestErrorMsg()
		_ = conn.Close()
		slog.Warn("cluster not ready", "node_id", p.nodeID, "code", rc, "driver_error", errCode, "driver_msg", errMsg)
		return statusNotReady(errCode, errMsg)
	}

	p.conn = conn
	return statusOK()
}

// Acquire returns a driver handle bound to the current connection,
// constructing one lazily if the available sequence is empty (spec.md
// §4.2). It never blocks on reconnection: if the pool is not CONNECTED it
// arms a reconnect (if one is not already running) and fails immediately.
func (p *Pool) Acquire(ctx context.Context) (driver.Handle, Status) {
	p.infoLock.Lock()
	shutdownish := p.stats.IsShutdown || p.stats.IsShuttingDown
	reconnecting := p.stats.IsReconnectionInProgress
	state := p.stats.ConnectionState
	p.infoLock.Unlock()

	if shutdownish {
		return nil, statusShutdownRejected()
	}

	if state != StateConnected {
		if !reconnecting {
			p.Reconnect()
		}
		return nil, statusNotConnected()
	}

	p.connLock.Lock()

	if n := len(p.available); n > 0 {
		h := p.available[0]
		p.available = p.available[1:]
		p.connLock.Unlock()
		return h, statusOK()
	}

	conn := p.conn
	if conn == nil {
		p.connLock.Unlock()
		if !reconnecting {
			p.Reconnect()
		}
		return nil, statusNotConnected()
	}

	h := conn.NewHandle()
	if rc := h.Init(); rc != 0 {
		_ = h.Close()
		p.connLock.Unlock()
		slog.Warn("handle init failed", "node_id", p.nodeID, "code", rc)
		return nil, statusHandleInitFailed(rc)
	}

	p.all = append(p.all, h)

	p.infoLock.Lock()
	p.stats.HandlesCreated++
	p.stats.HandlesCount++
	p.infoLock.Unlock()

	p.connLock.Unlock()
	return h, statusOK()
}

// Release returns a handle to the available sequence unconditionally, then
// — if the caller's reported outcome classifies as an UnknownResultError —
// triggers a reconnect. Release never fails and never holds connLock while
// calling Reconnect (spec.md §4.3, §5 reentrancy note).
func (p *Pool) Release(h driver.Handle, outcome *driver.Outcome) {
	if h == nil {
		return
	}

	p.connLock.Lock()
	p.available = append(p.available, h)
	p.connLock.Unlock()

	if outcome != nil && outcome.Classification == driver.ClassificationUnknownResultError {
		slog.Warn("handle reported unknown-result error, triggering reconnect", "node_id", p.nodeID, "driver_code", outcome.Code)
		p.Reconnect()
	}
}

// GetStats refreshes HandlesAvailable and returns a copy of the stats
// record. Both locks are taken (spec.md §9's "if strict consistency is
// required, take both locks" resolution), never nested in the reverse
// order.
func (p *Pool) GetStats() Stats {
	p.connLock.Lock()
	avail := len(p.available)
	p.connLock.Unlock()

	p.infoLock.Lock()
	defer p.infoLock.Unlock()
	p.stats.HandlesAvailable = avail
	return p.stats
}
