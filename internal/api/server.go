// Package api exposes the ingest pipeline over HTTP for viewer
// frontends and scripted casework.
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kestrel-forensics/kestrel/internal/ingest"
	"github.com/kestrel-forensics/kestrel/internal/parser"
	"github.com/kestrel-forensics/kestrel/internal/store"
)

type Server struct {
	router   *chi.Mux
	port     int
	registry *parser.Registry
	runner   *ingest.Runner
	store    *store.Store
}

// NewServer builds the router. The store is optional; store-backed
// routes answer 503 when it is nil.
func NewServer(port int, reg *parser.Registry, runner *ingest.Runner, db *store.Store) *Server {
	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	s := &Server{
		router:   router,
		port:     port,
		registry: reg,
		runner:   runner,
		store:    db,
	}

	router.Get("/health", s.health)
	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/parsers", s.listParsers)
		r.Get("/filters", s.listFilters)
		r.Post("/preview", s.preview)
		r.Post("/ingest", s.ingestFile)
		r.Get("/conversations", s.listConversations)
		r.Get("/conversations/{id}", s.getConversation)
		r.Post("/tags/assign", s.assignTag)
		r.Delete("/tags/assign", s.removeTag)
		r.Get("/tags/{conversation_id}", s.listTags)
	})

	return s
}

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	slog.Info("API server starting", "addr", addr)
	return http.ListenAndServe(addr, s.router)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, code int, format string, args ...any) {
	writeJSON(w, code, map[string]string{"error": fmt.Sprintf(format, args...)})
}

// requireStore guards store-backed routes; without a database the rest
// of the tool still works.
func (s *Server) requireStore(w http.ResponseWriter) bool {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "no database configured")
		return false
	}
	return true
}
