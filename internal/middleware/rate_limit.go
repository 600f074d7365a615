package middleware

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/openpantry/listings/internal/limiter"
	"github.com/openpantry/listings/internal/metrics"
	"go.uber.org/zap"
)

// RateLimit returns an HTTP middleware that throttles inbound requests per
// client key. Rejected requests get a 429 with a Retry-After hint. The
// middleware fails open: a broken limiter never takes the read path down
// with it.
func RateLimit(lim limiter.Limiter, keyExtractor func(*http.Request) string, window time.Duration, m *metrics.Metrics, logger *zap.Logger) func(http.Handler) http.Handler {
	retryAfter := strconv.Itoa(int(window.Seconds()))
	if retryAfter == "0" {
		retryAfter = "1"
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyExtractor(r)

			allowed, err := lim.Allow(r.Context(), key)
			if err != nil {
				logger.Error("rate limiter check failed", zap.String("key", key), zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			if !allowed {
				logger.Debug("request rate limited", zap.String("key", key))
				m.InboundRejected()
				w.Header().Set("Retry-After", retryAfter)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(map[string]string{"error": "rate limit exceeded"})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// IPKeyExtractor extracts the client IP address from the request.
// It checks for X-Forwarded-For header first (for proxied requests),
// then falls back to RemoteAddr.
func IPKeyExtractor(r *http.Request) string {
	if forwardedFor := r.Header.Get("X-Forwarded-For"); forwardedFor != "" {
		// The first entry is the originating client.
		if idx := strings.IndexByte(forwardedFor, ','); idx >= 0 {
			return strings.TrimSpace(forwardedFor[:idx])
		}
		return forwardedFor
	}

	return r.RemoteAddr
}
