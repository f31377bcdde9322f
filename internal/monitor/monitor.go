// Package monitor exposes the health/metrics HTTP surface (A5), grounded
// on the teacher's cmd/dknews/main.go monitoring server
// (healthHandler/metricsHandler over metrics.Global), generalized from
// package-level globals to an explicit *metrics.Metrics/*migrations.Manager
// pair injected at construction.
package monitor

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/deusflow/newsagg/internal/metrics"
	"github.com/deusflow/newsagg/internal/migrations"
)

// Server serves /health and /metrics for external monitoring.
type Server struct {
	metrics    *metrics.Metrics
	migrations *migrations.Manager
	mux        *http.ServeMux
}

// New builds a Server; call Handler() to mount it, or ListenAndServe to
// run it standalone the way the teacher's startMonitoringServer did.
func New(m *metrics.Metrics, migMgr *migrations.Manager) *Server {
	s := &Server{metrics: m, migrations: migMgr, mux: http.NewServeMux()}
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/metrics", s.handleMetrics)
	s.mux.HandleFunc("/migrations/status", s.handleMigrationsStatus)
	return s
}

// Handler returns the monitoring mux for embedding into a larger server.
func (s *Server) Handler() http.Handler { return s.mux }

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := s.metrics.GetStats()
	status := "ok"
	if healthy, ok := stats["is_healthy"].(bool); ok && !healthy {
		status = "error"
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	writeJSON(w, map[string]any{
		"status":     status,
		"last_run":   stats["last_run_time"],
		"last_error": stats["last_error"],
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.metrics.GetStats())
}

func (s *Server) handleMigrationsStatus(w http.ResponseWriter, r *http.Request) {
	status := s.migrations.Status(r.Context())
	if status.Degraded {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	writeJSON(w, status)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// RunMigrations re-runs the migration set on demand.
func RunMigrations(ctx context.Context, m *migrations.Manager) error {
	return m.Run(ctx)
}
