package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"videograb/internal/acquisition"
	"videograb/internal/logging"
	"videograb/pkg/models"
)

var (
	ErrServerAlreadyRunning = errors.New("server is already running")
	ErrServerNotRunning     = errors.New("server is not running")
)

// An /analyze request gets at least MinAnalyzeTimeout, and always
// analyzeTimeoutMargin more than the discovery budget so that a discovery
// timeout is answered by the handler rather than the middleware.
const (
	MinAnalyzeTimeout    = 60 * time.Second
	analyzeTimeoutMargin = 10 * time.Second
)

// AnalyzeTimeout returns the whole-request bound for /analyze under cfg
func AnalyzeTimeout(cfg *models.Config) time.Duration {
	timeout := time.Duration(cfg.DiscoverTimeoutSeconds)*time.Second + analyzeTimeoutMargin
	if timeout < MinAnalyzeTimeout {
		return MinAnalyzeTimeout
	}
	return timeout
}

// Server represents the HTTP server
type Server struct {
	config   *models.Config
	orch     *acquisition.Orchestrator
	log      *zap.Logger
	version  string
	router   *chi.Mux
	server   *http.Server
	listener net.Listener
	running  bool
	mu       sync.RWMutex
}

// NewServer creates a new HTTP server
func NewServer(config *models.Config, orch *acquisition.Orchestrator, logger *zap.Logger, version string) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		config:  config,
		orch:    orch,
		log:     logger.Named("api"),
		version: version,
		router:  chi.NewRouter(),
	}

	s.setupRoutes()

	return s
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	// Middleware
	s.router.Use(middleware.RequestID)
	s.router.Use(logging.Middleware(s.log))
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.config.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{"Content-Disposition", "Content-Length"},
		MaxAge:         300,
	}))

	// Downloads are bounded by the fetch timeout and the transfer itself
	s.router.With(middleware.Timeout(AnalyzeTimeout(s.config))).Post("/analyze", s.handleAnalyze)
	s.router.Post("/download", s.handleDownload)

	// API routes
	s.router.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/status", s.handleStatus)
		r.Post("/cookies", s.handleCookies)
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrServerAlreadyRunning
	}

	addr := s.GetAddr()

	// Create listener
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}

	s.listener = listener
	httpServer := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// No write timeout: a transfer may legitimately take minutes
		IdleTimeout: 60 * time.Second,
		ErrorLog:    zap.NewStdLog(s.log),
	}
	s.server = httpServer

	s.running = true

	// Start server in goroutine
	go func() {
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("server error", zap.Error(err))
		}
	}()

	s.log.Info("server listening", zap.String("addr", listener.Addr().String()))

	return nil
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return ErrServerNotRunning
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var result error
	if err := s.server.Shutdown(ctx); err != nil {
		result = multierror.Append(result, fmt.Errorf("server shutdown failed: %w", err))
		if closeErr := s.server.Close(); closeErr != nil {
			result = multierror.Append(result, fmt.Errorf("server close failed: %w", closeErr))
		}
	}

	s.running = false
	s.server = nil
	s.listener = nil

	return result
}

// IsRunning returns whether the server is currently running
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// GetAddr returns the configured listen address
func (s *Server) GetAddr() string {
	return s.config.ListenAddr
}

// GetActualAddr returns the actual listening address (useful when port is 0)
func (s *Server) GetActualAddr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.listener != nil {
		return s.listener.Addr().String()
	}

	return s.GetAddr()
}

// Handler exposes the router, mainly for embedding and tests
func (s *Server) Handler() http.Handler {
	return s.router
}
