// Package httpapi exposes the pipeline's core operations over a thin
// REST surface: /process/run, /feed, /search, /categories,
// /migrations/status, /migrations/run, /schedule/settings. Handlers
// only — no auth, no templates, the admin/web layer itself being out of
// scope per the purpose/scope section this implements.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/deusflow/newsagg/internal/migrations"
	"github.com/deusflow/newsagg/internal/model"
	"github.com/deusflow/newsagg/internal/orchestrator"
	"github.com/deusflow/newsagg/internal/persistqueue"
)

// Server mounts the core operations as HTTP handlers.
type Server struct {
	orch       *orchestrator.Orchestrator
	storage    *persistqueue.Storage
	migrations *migrations.Manager
	mux        *http.ServeMux
}

// New builds a Server.
func New(orch *orchestrator.Orchestrator, storage *persistqueue.Storage, migMgr *migrations.Manager) *Server {
	s := &Server{orch: orch, storage: storage, migrations: migMgr, mux: http.NewServeMux()}
	s.mux.HandleFunc("/process/run", s.handleProcessRun)
	s.mux.HandleFunc("/feed", s.handleFeed)
	s.mux.HandleFunc("/search", s.handleSearch)
	s.mux.HandleFunc("/categories", s.handleCategories)
	s.mux.HandleFunc("/migrations/status", s.handleMigrationsStatus)
	s.mux.HandleFunc("/migrations/run", s.handleMigrationsRun)
	s.mux.HandleFunc("/schedule/settings", s.handleScheduleSettings)
	return s
}

// Handler returns the API mux for embedding into a larger server.
func (s *Server) Handler() http.Handler { return s.mux }

func (s *Server) handleProcessRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()
	if err := s.orch.RunCycle(ctx); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"status": "completed"})
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	articles, err := s.storage.UnprocessedArticles(r.Context(), 100)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, articles)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	// Full-text search against persisted articles is an admin/web-layer
	// concern out of this module's scope; this endpoint reports the
	// shape callers should expect once that layer is built.
	writeJSON(w, map[string]any{"results": []model.Article{}})
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	day := time.Now()
	if d := r.URL.Query().Get("day"); d != "" {
		if parsed, err := time.Parse("2006-01-02", d); err == nil {
			day = parsed
		}
	}
	byCategory, err := s.storage.ArticleBriefsForDayByCategory(r.Context(), day)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, byCategory)
}

func (s *Server) handleMigrationsStatus(w http.ResponseWriter, r *http.Request) {
	status := s.migrations.Status(r.Context())
	if status.Degraded {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	writeJSON(w, status)
}

func (s *Server) handleMigrationsRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := s.migrations.Run(r.Context()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"status": "applied"})
}

func (s *Server) handleScheduleSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.storage.ListScheduleSettings(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, settings)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
