package api

import (
	"context"
	"net/http"

	"github.com/sungwon/mailbridge/internal/logger"
)

// Pinger reports database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthChecker reports provider connectivity.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthzHandler handles GET /healthz.
// Always returns 200 OK with {"status":"ok"}.
func HealthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// ReadyzHandler handles GET /readyz.
// Checks database connectivity and, when provider is non-nil, provider
// reachability. Returns 503 with a Retry-After header if either fails.
func ReadyzHandler(db Pinger, provider HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())

		if err := db.Ping(r.Context()); err != nil {
			log.Warn().Err(err).Msg("readiness: database ping failed")
			w.Header().Set("Retry-After", "30")
			respondError(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
		if provider != nil {
			if err := provider.HealthCheck(r.Context()); err != nil {
				log.Warn().Err(err).Msg("readiness: provider check failed")
				w.Header().Set("Retry-After", "30")
				respondError(w, http.StatusServiceUnavailable, "provider unavailable")
				return
			}
		}
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
