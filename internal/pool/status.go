package pool

import "fmt"

// Code enumerates the pool's own error taxonomy (spec.md §7). The
// error-code *catalog* proper belongs to an external collaborator (an
// upstream service's shared error registry); these constants are this
// package's local slice of that catalog, numbered to match spec.md.
type Code int

const (
	CodeOK              Code = 0
	CodeConnectFailed   Code = 2 // ERROR_002
	CodeNotReady        Code = 3 // ERROR_003
	CodeHandleInitFailed Code = 4 // ERROR_004
	CodeNotConnected    Code = 33 // ERROR_033
	CodeShutdownRejected Code = 34 // ERROR_034
	CodeReconnectInFlight Code = 36 // ERROR_036
)

// HTTP-style status codes carried in Status.HTTPCode. SUCCESS denotes OK;
// everything else denotes a caller-visible failure.
const (
	HTTPSuccess            = 200
	HTTPServiceUnavailable = 503
	HTTPConflict           = 409
)

// Status is the shape every pool operation returns (spec.md §6).
type Status struct {
	HTTPCode       int
	Code           Code
	Classification int
	Message        string
}

// OK reports whether this Status represents success.
func (s Status) OK() bool { return s.HTTPCode == HTTPSuccess }

func (s Status) Error() string {
	if s.OK() {
		return ""
	}
	return fmt.Sprintf("pool: %s (code=%d http=%d)", s.Message, s.Code, s.HTTPCode)
}

func statusOK() Status {
	return Status{HTTPCode: HTTPSuccess, Code: CodeOK, Message: "ok"}
}

func statusShutdownRejected() Status {
	return Status{
		HTTPCode: HTTPServiceUnavailable,
		Code:     CodeShutdownRejected,
		Message:  "pool is shut down",
	}
}

func statusNotConnected() Status {
	return Status{
		HTTPCode: HTTPServiceUnavailable,
		Code:     CodeNotConnected,
		Message:  "pool is not connected; retry shortly",
	}
}

func statusConnectFailed(driverCode int, driverMsg string) Status {
	return Status{
		HTTPCode:       HTTPServiceUnavailable,
		Code:           CodeConnectFailed,
		Classification: driverCode,
		Message:        fmt.Sprintf("connect failed: %s", driverMsg),
	}
}

func statusNotReady(driverCode int, driverMsg string) Status {
	return Status{
		HTTPCode:       HTTPServiceUnavailable,
		Code:           CodeNotReady,
		Classification: driverCode,
		Message:        fmt.Sprintf("cluster not ready: %s", driverMsg),
	}
}

func statusHandleInitFailed(driverCode int) Status {
	return Status{
		HTTPCode:       HTTPServiceUnavailable,
		Code:           CodeHandleInitFailed,
		Classification: driverCode,
		Message:        "handle init failed",
	}
}

func statusReconnectInFlight() Status {
	return Status{
		HTTPCode: HTTPConflict,
		Code:     CodeReconnectInFlight,
		Message:  "reconnect already in progress",
	}
}
