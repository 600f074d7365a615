package transport

import (
	"context"
	"net"
	"time"

	"github.com/openpantry/listings/internal/storage"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// healthPollInterval is how often the serving status is refreshed from the
// storage backend.
const healthPollInterval = 5 * time.Second

// GRPCServer implements the Server interface for gRPC transport. It exposes
// only the standard health service; orchestrators probe it to decide whether
// this instance should keep receiving traffic.
type GRPCServer struct {
	server  *grpc.Server
	health  *health.Server
	store   storage.Store
	address string
	logger  *zap.Logger
	done    chan struct{}
}

// NewGRPCServer creates a new gRPC server
func NewGRPCServer(cfg ServerConfig) *GRPCServer {
	gsrv := grpc.NewServer()
	hsrv := health.NewServer()
	grpc_health_v1.RegisterHealthServer(gsrv, hsrv)

	return &GRPCServer{
		server:  gsrv,
		health:  hsrv,
		store:   cfg.Store,
		address: cfg.Address,
		logger:  cfg.Logger,
		done:    make(chan struct{}),
	}
}

// Start starts the gRPC server
func (gs *GRPCServer) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", gs.address)
	if err != nil {
		gs.logger.Error("Failed to listen on address", zap.String("address", gs.address), zap.Error(err))
		return err
	}

	gs.logger.Info("Starting gRPC server", zap.String("address", gs.address))

	gs.refreshStatus(ctx)
	go gs.pollStatus()

	go func() {
		if err := gs.server.Serve(listener); err != nil {
			gs.logger.Error("gRPC server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop gracefully stops the gRPC server
func (gs *GRPCServer) Stop(ctx context.Context) error {
	gs.logger.Info("Stopping gRPC server")
	close(gs.done)
	gs.health.Shutdown()

	stopped := make(chan struct{})
	go func() {
		gs.server.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
		return nil
	case <-ctx.Done():
		gs.server.Stop()
		return ctx.Err()
	}
}

// Addr returns the address the gRPC server is listening on
func (gs *GRPCServer) Addr() string {
	return gs.address
}

func (gs *GRPCServer) pollStatus() {
	ticker := time.NewTicker(healthPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-gs.done:
			return
		case <-ticker.C:
			gs.refreshStatus(context.Background())
		}
	}
}

func (gs *GRPCServer) refreshStatus(ctx context.Context) {
	status := grpc_health_v1.HealthCheckResponse_SERVING
	if err := gs.store.Ping(ctx); err != nil {
		gs.logger.Warn("store ping failed, reporting not serving", zap.Error(err))
		status = grpc_health_v1.HealthCheckResponse_NOT_SERVING
	}
	gs.health.SetServingStatus("", status)
}
