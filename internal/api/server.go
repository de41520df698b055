// Package api exposes the session controller to its UI collaborators over
// HTTP: the chat screen, the landing page, and the admin dashboard all talk
// to this surface.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/elicitworks/canvass/internal/interview"
	"github.com/elicitworks/canvass/internal/nav"
	"github.com/elicitworks/canvass/internal/sessionapi"
	"github.com/elicitworks/canvass/internal/transcript"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// RecordFetcher reads full session records for the admin detail view.
type RecordFetcher interface {
	FetchSession(ctx context.Context, sessionID string) (*sessionapi.SessionRecord, error)
}

// Options carries the collaborators the server fronts.
type Options struct {
	Port         int
	APIToken     string
	Store        *transcript.Store
	Engine       *interview.Engine
	Checker      nav.StatusChecker
	Evaluator    *nav.Evaluator
	Records      RecordFetcher
	IdentityPath string
	Logger       *slog.Logger
}

type Server struct {
	router *chi.Mux
	opts   Options
}

func NewServer(opts Options) *Server {
	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	s := &Server{
		router: router,
		opts:   opts,
	}

	router.Get("/health", s.health)

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(bearerAuth(opts.APIToken))

		r.Get("/state", s.state)
		r.Put("/identity", s.putIdentity)

		r.Post("/messages", s.addMessage)
		r.Patch("/messages/{id}", s.updateMessage)
		r.Patch("/qapairs/{id}", s.updateQAPair)
		r.Put("/progress", s.putProgress)

		r.Post("/session/save", s.saveSession)
		r.Post("/session/reset", s.resetSession)
		r.Post("/session/check", s.checkSession)
		r.Post("/navigate", s.navigate)

		r.Post("/interview/begin", s.beginInterview)
		r.Post("/interview/answers", s.submitAnswer)
		r.Post("/interview/stop", s.stopInterview)

		r.Get("/sessions/{id}", s.getSessionRecord)
	})

	return s
}

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.opts.Port)
	slog.Info("API server starting", "addr", addr)
	return http.ListenAndServe(addr, s.router)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// bearerAuth guards the API with a static token. An empty token leaves the
// API open, for local development.
func bearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token != "" && r.Header.Get("Authorization") != "Bearer "+token {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, format string, args ...any) {
	writeJSON(w, status, map[string]string{"error": fmt.Sprintf(format, args...)})
}
