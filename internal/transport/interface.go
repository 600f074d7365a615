package transport

import (
	"context"
	"net/http"

	"github.com/openpantry/listings/internal/handler"
	"github.com/openpantry/listings/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Server defines the interface for different transport implementations (HTTP, gRPC, etc.)
type Server interface {
	// Start starts the transport server
	Start(ctx context.Context) error

	// Stop gracefully stops the transport server
	Stop(ctx context.Context) error

	// Addr returns the address the server is listening on
	Addr() string
}

// ServerConfig contains common configuration for all transport servers
type ServerConfig struct {
	Address      string            // Address to listen on (e.g., "localhost:8080" or ":50051")
	Store        storage.Store     // Shared storage backend
	Logger       *zap.Logger       // Shared logger
	ReadTimeout  int               // Read timeout in seconds
	WriteTimeout int               // Write timeout in seconds
	IdleTimeout  int               // Idle timeout in seconds
	Service      handler.Service   // Listing read operations
	Registry     *prometheus.Registry
	Middleware   []func(http.Handler) http.Handler
}
