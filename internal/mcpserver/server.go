// Package mcpserver exposes pool operations as MCP tools, the mirror image
// of the teacher's internal/events.Client (which spoke the MCP *client*
// role to subscribe to fault events). Here the pool process is the server:
// Acquire/Release/GetStats/Reconnect/Shutdown become callable tools over a
// streamable HTTP transport, using the same SDK the teacher imports for
// its client role.
package mcpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rbias/ndbpool/internal/driver"
	"github.com/rbias/ndbpool/internal/pool"
)

// Server wraps a *pool.Pool with an MCP tool surface.
type Server struct {
	pool *pool.Pool
	addr string
	impl *mcp.Implementation
}

// NewServer builds an MCP tool server bound to addr (e.g. ":9090").
func NewServer(p *pool.Pool, addr string) *Server {
	return &Server{
		pool: p,
		addr: addr,
		impl: &mcp.Implementation{Name: "ndbpool", Version: "1.0.0"},
	}
}

type acquireArgs struct{}

type acquireResult struct {
	HandleID string `json:"handle_id"`
	Code     int    `json:"code"`
	Message  string `json:"message"`
}

type releaseArgs struct {
	HandleID           string `json:"handle_id"`
	UnknownResultError bool   `json:"unknown_result_error"`
	DriverCode         int    `json:"driver_code,omitempty"`
	DriverMessage      string `json:"driver_message,omitempty"`
}

type releaseResult struct {
	Released bool `json:"released"`
}

type statsResult struct {
	pool.Stats
}

type reconnectResult struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type shutdownArgs struct {
	End bool `json:"end"`
}

type shutdownResult struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// registry maps handle ids handed out to MCP callers back to the live
// driver.Handle the pool returned, since MCP tool results must be
// JSON-serializable. Handles never cross process boundaries otherwise.
type registry struct {
	next    int
	handles map[string]driver.Handle
}

func (s *Server) newServer() *mcp.Server {
	srv := mcp.NewServer(s.impl, nil)
	reg := &registry{handles: make(map[string]driver.Handle)}

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "pool_acquire",
		Description: "Acquire a handle from the connection pool",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args acquireArgs) (*mcp.CallToolResult, acquireResult, error) {
		h, status := s.pool.Acquire(ctx)
		if !status.OK() {
			return nil, acquireResult{Code: int(status.Code), Message: status.Message}, nil
		}
		id := fmt.Sprintf("h%d", reg.next)
		reg.next++
		reg.handles[id] = h
		return nil, acquireResult{HandleID: id, Code: int(status.Code), Message: status.Message}, nil
	})

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "pool_release",
		Description: "Release a handle previously acquired, optionally reporting an unknown-result error",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args releaseArgs) (*mcp.CallToolResult, releaseResult, error) {
		h, ok := reg.handles[args.HandleID]
		if !ok {
			return nil, releaseResult{Released: false}, nil
		}
		delete(reg.handles, args.HandleID)

		var outcome *driver.Outcome
		if args.UnknownResultError {
			outcome = &driver.Outcome{
				Classification: driver.ClassificationUnknownResultError,
				Code:           args.DriverCode,
				Message:        args.DriverMessage,
			}
		}
		s.pool.Release(h, outcome)
		return nil, releaseResult{Released: true}, nil
	})

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "pool_stats",
		Description: "Return the current pool stats snapshot",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args struct{}) (*mcp.CallToolResult, statsResult, error) {
		return nil, statsResult{Stats: s.pool.GetStats()}, nil
	})

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "pool_reconnect",
		Description: "Trigger a pool reconnect cycle (idempotent if one is already in flight)",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args struct{}) (*mcp.CallToolResult, reconnectResult, error) {
		status := s.pool.Reconnect()
		return nil, reconnectResult{Code: int(status.Code), Message: status.Message}, nil
	})

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "pool_shutdown",
		Description: "Shut down the pool. end=true also marks it permanently unusable",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args shutdownArgs) (*mcp.CallToolResult, shutdownResult, error) {
		status := s.pool.Shutdown(args.End)
		return nil, shutdownResult{Code: int(status.Code), Message: status.Message}, nil
	})

	return srv
}

// Start begins serving the MCP tool surface over streamable HTTP. Blocking
// — run in a goroutine.
func (s *Server) Start() error {
	handler := mcp.NewStreamableHTTPHandler(func(r *http.Request) *mcp.Server {
		return s.newServer()
	}, nil)

	slog.Info("starting mcp tool server", "address", s.addr)
	return http.ListenAndServe(s.addr, handler)
}
