package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/moodmix/internal/services"
	"github.com/desertthunder/moodmix/internal/shared"
	"github.com/desertthunder/moodmix/internal/tasks"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/oauth2"
)

// shutdownTimeout bounds how long in-flight requests may run after a shutdown signal.
const shutdownTimeout = 10 * time.Second

// Server serves the playlist API.
type Server struct {
	config   shared.ServerConfig
	spotify  services.SpotifyAPI
	engine   tasks.Generator
	sessions *MemorySessionStore
	logger   *log.Logger

	mu       sync.Mutex
	fallback *oauth2.Token // configured token for single-user deployments
}

// NewServer creates a Server. The logger may be nil.
func NewServer(config shared.ServerConfig, spotify services.SpotifyAPI, engine tasks.Generator, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		config:   config,
		spotify:  spotify,
		engine:   engine,
		sessions: NewMemorySessionStore(config.TTL()),
		logger:   logger,
	}
}

// WithFallbackToken sets the token used by requests without a logged-in session.
func (s *Server) WithFallbackToken(token *oauth2.Token) *Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fallback = token
	return s
}

// Sessions returns the session store.
func (s *Server) Sessions() *MemorySessionStore {
	return s.sessions
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(RequestLogger(s.logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(CORS(s.config.CORSOrigins))
	r.Use(SessionLoader(s.sessions))

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Get("/login", s.handleLogin)
	r.Get("/callback", s.handleCallback)
	r.Post("/logout", s.handleLogout)

	r.Get("/me", s.handleMe)
	r.Get("/top-artists", s.handleTopArtists)

	r.Group(func(r chi.Router) {
		r.Use(RateLimit(s.config.RateLimit, s.config.Window()))
		r.Post("/generate-recommendations", s.handleGenerateRecommendations)
		r.Post("/generate_playlist", s.handleGeneratePlaylist)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Not Found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	})

	return r
}

// Run serves on the configured address until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Addr(),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go s.sessions.Run(sweepCtx, time.Minute)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}
