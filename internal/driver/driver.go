// Package driver defines the narrow boundary between the pool and the
// native clustered-database driver. The driver itself is an external
// collaborator (spec: "the native cluster driver... treated as an opaque
// API") — this package only declares the shape the pool depends on.
package driver

import "context"

// Classification mirrors the driver's error-classification enum. The pool
// only cares about one value out of the catalog: UnknownResultError, the
// driver's signal that an operation's outcome is indeterminate and the
// cluster link is likely lost.
type Classification int

const (
	ClassificationUnknown Classification = iota
	ClassificationUnknownResultError
)

// Connector constructs a new cluster connection bound to a connection
// string and a client node id, mirroring ClusterConnection(connection_string,
// node_id) from the native API.
type Connector interface {
	NewConnection(connectionString string, nodeID int) Connection
}

// Connection is a single long-lived link to the cluster's management
// nodes. Connect and WaitUntilReady block; both are expected to be called
// at most once per Connection before it is discarded.
type Connection interface {
	// Connect attempts to establish the link, retrying up to retries times
	// with retryDelaySeconds between attempts. Returns 0 on success.
	Connect(ctx context.Context, retries int, retryDelaySeconds int) int

	// WaitUntilReady blocks until the connection is usable or the timeouts
	// (in whatever unit the driver defines — seconds for clusterTimeout,
	// driver-defined "node check" units for nodeTimeout) elapse. Returns 0
	// on success.
	WaitUntilReady(ctx context.Context, clusterTimeout int, nodeTimeout int) int

	// LatestError returns the driver's last error code observed on this
	// connection.
	LatestError() int

	// LatestErrorMsg returns a human-readable description of LatestError.
	LatestErrorMsg() string

	// NewHandle constructs a handle bound to this connection. The handle
	// is not usable until its Init method succeeds.
	NewHandle() Handle

	// Close tears down the connection. Implementations may return an error
	// from the underlying driver; callers are expected to swallow it and
	// log a warning (spec: "swallow any driver-level exception").
	Close() error
}

// Handle is a per-request object bound to a specific Connection, used by
// the upper layer to execute one logical operation against the cluster.
type Handle interface {
	// Init performs the driver's per-handle initialization. Returns 0 on
	// success.
	Init() int

	// Close releases the handle's driver-side resources. Called either on
	// Init failure (immediately) or during full teardown (Shutdown).
	Close() error
}

// Outcome is what the upper layer reports back to Release about how a
// request that borrowed a handle went. A nil Outcome means "no error to
// report" (the common case); a non-nil Outcome whose Classification is
// ClassificationUnknownResultError is the driver's signal that the link
// may be lost, and triggers a reconnect.
type Outcome struct {
	Classification Classification
	Code           int
	Message        string
}
