// Package statusapi exposes a read-only HTTP surface over an
// in-progress or completed assignment run: capacity-gap telemetry and
// per-iteration counters, polled by an operator dashboard. There is no
// map and no live event stream, just a JSON snapshot of the per-iteration
// entries of the last RunSummary published to it.
package statusapi

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"

	"github.com/transitworks/tripassign/internal/assignment"
)

// Server serves the Iterations of the RunSummary last passed to
// SetSummary under /status (503 until one is set) and a liveness probe
// under /healthz.
type Server struct {
	mu      sync.RWMutex
	summary *assignment.RunSummary
	router  chi.Router
}

// New returns a Server with CORS enabled for any origin.
func New() *Server {
	s := &Server{}
	r := chi.NewRouter()
	r.Use(cors.AllowAll().Handler)
	r.Get("/healthz", s.handleHealthz)
	r.Get("/status", s.handleStatus)
	s.router = r
	return s
}

// ServeHTTP lets Server be used directly as an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// SetSummary publishes the Driver's latest RunSummary snapshot. Safe to
// call concurrently with in-flight requests.
func (s *Server) SetSummary(summary *assignment.RunSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summary = summary
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	summary := s.summary
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	if summary == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"status": "not started"})
		return
	}
	json.NewEncoder(w).Encode(summary.Iterations)
}
