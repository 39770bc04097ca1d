// Package server exposes the pipeline over HTTP: the chat endpoint streams
// wire events as server-sent events, the rest are small JSON endpoints.
package server

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/KaranKendre11/VibeOPS/internal/core/domain"
	"github.com/KaranKendre11/VibeOPS/internal/core/ports"
	"github.com/KaranKendre11/VibeOPS/internal/metrics"
	"github.com/KaranKendre11/VibeOPS/internal/storage"
)

// Pipeline produces the event sequence of one chat request.
type Pipeline interface {
	Run(ctx context.Context, input string, history []domain.Turn) iter.Seq[domain.WireEvent]
}

// Deps are the process-wide dependencies shared by all handlers. Pipeline
// is required; a nil Inventory, Runs or Metrics disables its endpoints.
type Deps struct {
	Pipeline  Pipeline
	Inventory ports.Inventory
	Runs      ports.RunStore
	Recorder  *storage.Recorder
	Metrics   *metrics.Metrics
	Logger    *slog.Logger

	Version        string
	CORSOrigins    []string
	RequestTimeout time.Duration
}

type Server struct {
	Router *chi.Mux
	Addr   string

	deps   Deps
	logger *slog.Logger
	http   *http.Server
}

func New(addr string, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if deps.Version == "" {
		deps.Version = "1.0.0"
	}
	s := &Server{Addr: addr, deps: deps, logger: logger}

	r := chi.NewRouter()
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", requestIDHeader},
		ExposedHeaders:   []string{requestIDHeader, runIDHeader},
		AllowCredentials: true,
	}))
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "vibeops")
	})

	r.Get("/", s.handleRoot)
	r.Route("/api", func(r chi.Router) {
		r.Post("/chat", s.handleChat)

		r.Group(func(r chi.Router) {
			r.Use(TimeoutMiddleware(deps.RequestTimeout))
			r.Get("/health", s.handleHealth)
			r.Get("/gcp/resources", s.handleResources)
			r.Get("/deployments", s.handleListRuns)
			r.Get("/deployments/{id}", s.handleGetRun)
			r.Get("/deployments/{id}/events", s.handleRunEvents)
		})
	})
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics.Handler())
	}

	s.Router = r
	s.http = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("starting server", slog.String("addr", s.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Serve serves on an existing listener until Shutdown is called.
func (s *Server) Serve(l net.Listener) error {
	s.logger.Info("starting server", slog.String("addr", l.Addr().String()))
	if err := s.http.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown waits for in-flight requests, including open chat streams, up to
// the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
