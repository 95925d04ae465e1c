package api

import (
	"context"
	"net/http"
	"time"

	"github.com/msrxse/zero2prod/internal/pkg/httputil"
)

// HealthCheck is the liveness probe: always 200 with an empty body,
// regardless of request content or prior state.
//
//	GET /health_check
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// Readiness pings the database and returns 200 only when the service can
// accept traffic. Suitable for load-balancer readiness probes.
//
//	GET /health/ready
func (h *Handlers) Readiness(w http.ResponseWriter, r *http.Request) {
	if h.db == nil {
		httputil.JSON(w, http.StatusServiceUnavailable, map[string]string{
			"ready":  "false",
			"reason": "database not configured",
		})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		httputil.JSON(w, http.StatusServiceUnavailable, map[string]string{
			"ready":  "false",
			"reason": "database unreachable",
		})
		return
	}

	httputil.JSON(w, http.StatusOK, map[string]string{"ready": "true"})
}
