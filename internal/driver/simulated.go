package driver

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// Simulated is an in-memory Connector used by the pool's own tests and by
// cmd/ndbpoolsrv's --simulate mode. It never talks to a real cluster; it
// just behaves the way the real driver is documented to behave, including
// letting a test flip FailConnect/FailWaitUntilReady/FailInit to exercise
// the pool's failure paths.
type Simulated struct {
	// FailConnect, when true, makes Connect return a non-zero code.
	FailConnect atomic.Bool

	// FailWaitUntilReady, when true, makes WaitUntilReady return non-zero.
	FailWaitUntilReady atomic.Bool

	// FailInit, when true, makes every new handle's Init return non-zero.
	FailInit atomic.Bool

	mu          sync.Mutex
	connections []*SimulatedConnection
}

// NewConnection implements Connector.
func (s *Simulated) NewConnection(connectionString string, nodeID int) Connection {
	c := &SimulatedConnection{
		connectionString: connectionString,
		nodeID:           nodeID,
		parent:           s,
	}
	s.mu.Lock()
	s.connections = append(s.connections, c)
	s.mu.Unlock()
	return c
}

// SimulatedConnection is the Connection returned by Simulated.
type SimulatedConnection struct {
	connectionString string
	nodeID           int
	parent           *Simulated

	closed      atomic.Bool
	latestErr   atomic.Int64
	handleCount atomic.Int64
}

func (c *SimulatedConnection) Connect(ctx context.Context, retries int, retryDelaySeconds int) int {
	if c.parent.FailConnect.Load() {
		c.latestErr.Store(1)
		return 1
	}
	return 0
}

func (c *SimulatedConnection) WaitUntilReady(ctx context.Context, clusterTimeout int, nodeTimeout int) int {
	if c.parent.FailWaitUntilReady.Load() {
		c.latestErr.Store(2)
		return 2
	}
	return 0
}

func (c *SimulatedConnection) LatestError() int {
	return int(c.latestErr.Load())
}

func (c *SimulatedConnection) LatestErrorMsg() string {
	code := c.LatestError()
	if code == 0 {
		return ""
	}
	return fmt.Sprintf("simulated driver error %d", code)
}

func (c *SimulatedConnection) NewHandle() Handle {
	c.handleCount.Add(1)
	return &SimulatedHandle{conn: c}
}

func (c *SimulatedConnection) Close() error {
	c.closed.Store(true)
	return nil
}

// SimulatedHandle is the Handle returned by SimulatedConnection.NewHandle.
type SimulatedHandle struct {
	conn   *SimulatedConnection
	closed atomic.Bool
}

func (h *SimulatedHandle) Init() int {
	if h.conn.parent.FailInit.Load() {
		return 1
	}
	return 0
}

func (h *SimulatedHandle) Close() error {
	h.closed.Store(true)
	return nil
}
