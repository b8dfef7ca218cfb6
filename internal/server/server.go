// Package server provides the local diagnosis service: an HTTP endpoint that
// accepts diagnose requests, builds a prompt from the uploaded files, and
// answers through an Oracle.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"

	"github.com/berth-dev/triage/internal/metrics"
)

// Recorder receives one record per diagnose request.
type Recorder interface {
	RecordCall(ctx context.Context, call metrics.Call) error
}

// Server is the diagnosis service.
type Server struct {
	router       *chi.Mux
	oracle       Oracle
	recorder     Recorder
	contextLines int
	retrieveK    int
	maxBody      int64
	httpSrv      *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithOracle replaces the default Simulator.
func WithOracle(o Oracle) Option {
	return func(s *Server) { s.oracle = o }
}

// WithRecorder records per-request metrics.
func WithRecorder(r Recorder) Option {
	return func(s *Server) { s.recorder = r }
}

// WithMaxBodyBytes caps the request body size.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBody = n
		}
	}
}

// New creates a Server with routes and middleware installed.
func New(opts ...Option) *Server {
	s := &Server{
		router:       chi.NewRouter(),
		oracle:       Simulator{},
		contextLines: ContextLines,
		retrieveK:    5,
		maxBody:      32 << 20,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(hlog.NewHandler(log.Logger))
	s.router.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("request_id", middleware.GetReqID(r.Context())).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("request")
	}))
	s.router.Use(middleware.Recoverer)
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	s.router.Post("/diagnose", s.handleDiagnose)
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve accepts connections on ln until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.httpSrv = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpSrv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	}
}

// ListenAndServe binds addr and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("server: binding listener: %w", err)
	}
	log.Info().Str("addr", ln.Addr().String()).Msg("diagnosis service listening")
	return s.Serve(ctx, ln)
}
