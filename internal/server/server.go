// Package server wires the chi router and HTTP server for the compile service.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apperrors "github.com/3leaps/mqlforge/internal/errors"
	"github.com/3leaps/mqlforge/internal/server/handlers"
	"github.com/3leaps/mqlforge/internal/server/middleware"
)

// Server is the HTTP front end.
type Server struct {
	host   string
	port   int
	router chi.Router
	http   *http.Server
	logger *zap.Logger

	compiler  handlers.Compiler
	artifacts handlers.ArtifactSource
	jobs      handlers.JobReader
	version   handlers.VersionInfo

	apiKey       string
	maxBodyBytes int64
	rateLimit    float64
	rateBurst    int
	corsOrigins  []string

	readTimeout  time.Duration
	writeTimeout time.Duration
	idleTimeout  time.Duration
}

// Option configures a Server.
type Option func(*Server)

// WithCompiler enables POST /compile.
func WithCompiler(c handlers.Compiler) Option {
	return func(s *Server) { s.compiler = c }
}

// WithArtifacts enables GET /download/{jobId}.
func WithArtifacts(a handlers.ArtifactSource) Option {
	return func(s *Server) { s.artifacts = a }
}

// WithJobs enables GET /jobs/{jobId}.
func WithJobs(j handlers.JobReader) Option {
	return func(s *Server) { s.jobs = j }
}

func WithAPIKey(key string) Option {
	return func(s *Server) { s.apiKey = key }
}

func WithVersion(info handlers.VersionInfo) Option {
	return func(s *Server) { s.version = info }
}

func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) { s.maxBodyBytes = n }
}

// WithCompileRateLimit limits POST /compile to perSecond with burst.
func WithCompileRateLimit(perSecond float64, burst int) Option {
	return func(s *Server) {
		s.rateLimit = perSecond
		s.rateBurst = burst
	}
}

func WithCORSOrigins(origins []string) Option {
	return func(s *Server) { s.corsOrigins = origins }
}

func WithTimeouts(read, write, idle time.Duration) Option {
	return func(s *Server) {
		s.readTimeout = read
		s.writeTimeout = write
		s.idleTimeout = idle
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// New builds a server listening on host:port. Routes for compile, download
// and job status are only mounted when their dependency is supplied.
func New(host string, port int, opts ...Option) *Server {
	s := &Server{
		host:         host,
		port:         port,
		logger:       zap.NewNop(),
		maxBodyBytes: 10 << 20,
		readTimeout:  30 * time.Second,
		writeTimeout: 90 * time.Second,
		idleTimeout:  120 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	s.http = &http.Server{
		Addr:              net.JoinHostPort(host, fmt.Sprint(port)),
		Handler:           s.router,
		ReadTimeout:       s.readTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.writeTimeout,
		IdleTimeout:       s.idleTimeout,
	}
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogger(s.logger))
	r.Use(middleware.Recovery)
	r.Use(middleware.CORS(s.corsOrigins))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		apperrors.RespondWithError(w, r, apperrors.NewNotFoundError(fmt.Sprintf("route %s not found", r.URL.Path)))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		apperrors.RespondWithError(w, r, apperrors.NewMethodNotAllowedError(r.Method))
	})

	r.Get("/health", handlers.HealthHandler)
	r.Get("/health/live", handlers.LivenessHandler)
	r.Get("/health/ready", handlers.ReadinessHandler)
	r.Get("/health/startup", handlers.StartupHandler)
	r.Get("/version", handlers.VersionHandler(s.version))

	if s.compiler != nil {
		r.With(
			middleware.BearerAuth(s.apiKey),
			middleware.RateLimit(s.rateLimit, s.rateBurst),
			middleware.MaxBodyBytes(s.maxBodyBytes),
		).Method(http.MethodPost, "/compile", handlers.NewCompileHandler(s.compiler, s.logger))
	}
	if s.artifacts != nil {
		r.Method(http.MethodGet, "/download/{jobId}", handlers.NewDownloadHandler(s.artifacts, s.logger))
	}
	if s.jobs != nil {
		r.With(middleware.BearerAuth(s.apiKey)).Get("/jobs/{jobId}", handlers.JobStatusHandler(s.jobs))
	}
	return r
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

// Port returns the configured port.
func (s *Server) Port() int { return s.port }

// Addr returns the configured listen address.
func (s *Server) Addr() string { return s.http.Addr }

// Start listens and serves until Shutdown. It returns nil after a clean
// shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.http.Addr, err)
	}
	return s.Serve(ln)
}

// Serve serves on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("HTTP server listening", zap.String("addr", ln.Addr().String()))
	if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight compiles until
// ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
