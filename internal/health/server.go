// Package health exposes the pool's stats surface over HTTP, adapted from
// the teacher's cluster health server to a single-pool, two-endpoint
// shape (spec.md has no HTTP surface of its own — this is the ambient
// operator-facing wrapper SPEC_FULL.md adds around GetStats).
package health

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/rbias/ndbpool/internal/pool"
	"github.com/rbias/ndbpool/internal/reporting"
)

// StatsProvider is the interface the health server depends on instead of
// *pool.Pool directly, the same avoid-circular-import style as the
// teacher's ConnectionManagerHealth.
type StatsProvider interface {
	GetStats() pool.Stats
}

// Server serves GET /health/stats (JSON) and GET /health/report
// (markdown-rendered HTML snapshot).
type Server struct {
	pool    StatsProvider
	nodeID  int
	breaker *reporting.CircuitBreaker
	addr    string
}

// NewServer creates a health server bound to addr (e.g. ":8080"). breaker
// may be nil if no circuit breaker is wired.
func NewServer(p StatsProvider, nodeID int, breaker *reporting.CircuitBreaker, addr string) *Server {
	if addr == "" {
		addr = ":8080"
	}
	return &Server{pool: p, nodeID: nodeID, breaker: breaker, addr: addr}
}

// Start begins serving. Blocking — run in a goroutine.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/stats", s.handleStats)
	mux.HandleFunc("/health/report", s.handleReport)

	slog.Info("starting health server", "address", s.addr)
	return http.ListenAndServe(s.addr, mux)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats := s.pool.GetStats()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(stats); err != nil {
		slog.Error("failed to encode stats response", "error", err)
	}
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats := s.pool.GetStats()
	_, htmlOut := reporting.RenderStatsReport(s.nodeID, stats, s.breaker)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(htmlOut); err != nil {
		slog.Error("failed to write report response", "error", err)
	}
}
