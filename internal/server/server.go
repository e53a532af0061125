// Package server implements the netvault HTTP server and route multiplexer.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/netvault/netvault/internal/compress"
	"github.com/netvault/netvault/internal/config"
	"github.com/netvault/netvault/internal/handlers"
	"github.com/netvault/netvault/internal/registry"
	"github.com/netvault/netvault/internal/storage"
	"github.com/netvault/netvault/internal/upload"
)

// Server is the netvault HTTP server. It binds the upload pipeline and the
// read-side endpoints onto a Chi router; all pipeline semantics live below
// the handler layer.
type Server struct {
	cfg        *config.Config
	router     chi.Router
	api        huma.API
	store      *storage.Store
	reg        *registry.SQLiteRegistry
	nets       *handlers.NetHandler
	httpServer *http.Server
}

// HealthBody is the JSON body returned by the health check endpoint.
type HealthBody struct {
	Status string `json:"status" example:"ok" doc:"Health status"`
}

// HealthOutput is the Huma output struct for the health check endpoint.
type HealthOutput struct {
	Body HealthBody
}

// ServerOption is a functional option for configuring the Server.
type ServerOption func(*Server)

// WithStore sets the artifact store for the server.
func WithStore(store *storage.Store) ServerOption {
	return func(s *Server) {
		s.store = store
	}
}

// WithRegistry sets the artifact registry for the server.
func WithRegistry(reg *registry.SQLiteRegistry) ServerOption {
	return func(s *Server) {
		s.reg = reg
	}
}

// New creates a Server with the given configuration and wires up all routes
// on the Chi router with the Huma API. Use ServerOption functions to provide
// the store and registry.
func New(cfg *config.Config, opts ...ServerOption) (*Server, error) {
	router := chi.NewMux()

	humaConfig := huma.DefaultConfig("netvault API", "1.0.0")
	humaConfig.DocsPath = "/docs"
	humaConfig.OpenAPIPath = "/openapi"
	api := humachi.New(router, humaConfig)

	s := &Server{
		cfg:    cfg,
		router: router,
		api:    api,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.store == nil {
		store, err := storage.NewStore(cfg.Storage.RootDir)
		if err != nil {
			return nil, fmt.Errorf("initializing artifact store: %w", err)
		}
		s.store = store
	}

	compressor, err := compress.New(cfg.Storage.GzipLevel)
	if err != nil {
		return nil, fmt.Errorf("initializing compressor: %w", err)
	}

	// The coordinator tolerates a nil recorder; upload.Recorder is an
	// interface, so the nil registry pointer must not be wrapped directly.
	var recorder upload.Recorder
	var index upload.Index
	if s.reg != nil {
		recorder = s.reg
		index = s.reg
	}

	coord := upload.New(compressor, s.store, recorder, cfg.Server.MaxUploadSize)
	s.nets = handlers.NewNetHandler(coord, s.store, index, cfg.Server.MaxUploadSize)

	s.registerRoutes()
	return s, nil
}

// ListenAndServe starts the HTTP server on the given address.
// Middleware chain: metricsMiddleware -> commonHeaders -> router.
func (s *Server) ListenAndServe(addr string) error {
	var handler http.Handler = s.router
	handler = commonHeaders(handler)
	if s.cfg.Observability.Metrics {
		handler = metricsMiddleware(handler)
	}

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: handler,
		// Bound how long a slow client may take to deliver the upload body.
		ReadTimeout: time.Duration(s.cfg.Server.ReadTimeout) * time.Second,
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server, waiting for in-flight
// requests to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the fully wired router for in-process testing.
func (s *Server) Handler() http.Handler {
	var handler http.Handler = s.router
	handler = commonHeaders(handler)
	if s.cfg.Observability.Metrics {
		handler = metricsMiddleware(handler)
	}
	return handler
}

// registerRoutes configures all routes on the Chi router.
func (s *Server) registerRoutes() {
	if s.cfg.Observability.HealthCheck {
		// Register /health via Huma for auto-OpenAPI documentation.
		huma.Register(s.api, huma.Operation{
			OperationID: "get-health",
			Method:      http.MethodGet,
			Path:        "/health",
			Summary:     "Health check",
			Description: "Returns the health status of the netvault server.",
			Tags:        []string{"System"},
		}, func(ctx context.Context, input *struct{}) (*HealthOutput, error) {
			if err := s.store.HealthCheck(ctx); err != nil {
				return nil, huma.Error503ServiceUnavailable("storage unavailable")
			}
			return &HealthOutput{Body: HealthBody{Status: "ok"}}, nil
		})

		// Register HEAD /health separately (Huma only does one method per
		// registration).
		s.router.Head("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
		})
	}

	if s.cfg.Observability.Metrics {
		s.router.Handle("/metrics", promhttp.Handler())
	}

	s.router.Route("/api/v1/nets", func(r chi.Router) {
		r.Post("/", s.nets.Upload)
		r.Get("/", s.nets.List)
		r.Get("/{name}", s.nets.Get)
		r.Head("/{name}", s.nets.Head)
	})
}
