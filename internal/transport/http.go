package transport

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/openpantry/listings/internal/handler"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// HTTPServer implements the Server interface for HTTP transport
type HTTPServer struct {
	server  *http.Server
	router  *mux.Router
	address string
	logger  *zap.Logger
}

// NewHTTPServer creates a new HTTP server
func NewHTTPServer(cfg ServerConfig) *HTTPServer {
	router := mux.NewRouter()

	hs := &HTTPServer{
		address: cfg.Address,
		logger:  cfg.Logger,
		router:  router,
		server: &http.Server{
			Addr:         cfg.Address,
			Handler:      router,
			ReadTimeout:  time.Duration(cfg.ReadTimeout) * time.Second,
			WriteTimeout: time.Duration(cfg.WriteTimeout) * time.Second,
			IdleTimeout:  time.Duration(cfg.IdleTimeout) * time.Second,
		},
	}

	hs.registerRoutes(cfg)
	return hs
}

// registerRoutes registers all HTTP routes
func (hs *HTTPServer) registerRoutes(cfg ServerConfig) {
	health := handler.NewHealthHandler(cfg.Store, cfg.Logger)
	hs.router.HandleFunc("/health", health.HealthCheck()).Methods("GET")

	if cfg.Registry != nil {
		hs.router.Handle("/metrics", promhttp.HandlerFor(cfg.Registry, promhttp.HandlerOpts{}))
	}

	listings := handler.NewListingsHandler(cfg.Service, cfg.Logger)

	// Rate limiting applies to the listing routes only; health and metrics
	// stay reachable for probes during an inbound storm.
	api := hs.router.PathPrefix("/v1").Subrouter()
	for _, mw := range cfg.Middleware {
		api.Use(mux.MiddlewareFunc(mw))
	}

	api.HandleFunc("/listings", listings.List()).Methods("GET")
	api.HandleFunc("/listings/nearby", listings.Nearby()).Methods("GET")
	api.HandleFunc("/listings/recent", listings.Recent()).Methods("GET")
	api.HandleFunc("/listings/trending", listings.Trending()).Methods("GET")
	api.HandleFunc("/listings/{id}", listings.ByID()).Methods("GET")
}

// Start starts the HTTP server
func (hs *HTTPServer) Start(ctx context.Context) error {
	hs.logger.Info("Starting HTTP server", zap.String("address", hs.address))

	go func() {
		if err := hs.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			hs.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (hs *HTTPServer) Stop(ctx context.Context) error {
	hs.logger.Info("Stopping HTTP server")
	return hs.server.Shutdown(ctx)
}

// Addr returns the address the HTTP server is listening on
func (hs *HTTPServer) Addr() string {
	return hs.address
}
