package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/openpantry/listings/internal/storage"
	"go.uber.org/zap"
)

type HealthHandler struct {
	store  storage.Store
	logger *zap.Logger
}

func NewHealthHandler(store storage.Store, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		store:  store,
		logger: logger,
	}
}

// HealthCheck returns a health check handler
func (h *HealthHandler) HealthCheck() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		}

		w.Header().Set("Content-Type", "application/json")

		if err := h.store.Ping(r.Context()); err != nil {
			h.logger.Warn("store ping failed", zap.Error(err))
			status["status"] = "unhealthy"
			status["error"] = err.Error()
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}

		json.NewEncoder(w).Encode(status)
	}
}

// Ping verifies connectivity with the underlying store for non-HTTP health checks.
func (h *HealthHandler) Ping(ctx context.Context) error {
	return h.store.Ping(ctx)
}
