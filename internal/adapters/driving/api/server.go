// Package api serves retrieval and chat sessions over HTTP. Answers are
// streamed to the client as server-sent events.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/custodia-labs/docqa/internal/core/ports/driving"
)

// Config holds HTTP server settings.
type Config struct {
	// APIKey, when set, is required as a bearer token on /api routes.
	APIKey string

	// MaxBodyBytes bounds request bodies. Zero uses 1 MiB.
	MaxBodyBytes int64
}

// Server is the HTTP API server for docqa.
type Server struct {
	router    chi.Router
	retrieval driving.RetrievalService
	sessions  driving.SessionService
	log       *slog.Logger
	cfg       Config
}

// NewServer creates and configures the HTTP server. sessions may be nil,
// in which case only retrieval is served.
func NewServer(
	retrieval driving.RetrievalService,
	sessions driving.SessionService,
	log *slog.Logger,
	cfg Config,
) *Server {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	s := &Server{
		retrieval: retrieval,
		sessions:  sessions,
		log:       log,
		cfg:       cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	// Public endpoints.
	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		if s.cfg.APIKey != "" {
			r.Use(AuthMiddleware(s.cfg.APIKey))
		}

		r.Post("/api/retrieve", s.handleRetrieve)

		r.Post("/api/sessions", s.handleStartSession)
		r.Delete("/api/sessions/{sessionID}", s.handleEndSession)
		r.Get("/api/sessions/{sessionID}/history", s.handleHistory)
		r.Post("/api/sessions/{sessionID}/reset", s.handleReset)
		r.Post("/api/sessions/{sessionID}/messages", s.handleMessage)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`)) //nolint:errcheck
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx) //nolint:errcheck
	}()

	s.log.Info("http server listening", "addr", addr)
	err := httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
