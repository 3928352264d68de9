package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/Orurh/courier-dispatch/internal/logx"
)

// HealthCheck reports whether the store behind the service is reachable.
type HealthCheck func(ctx context.Context) error

const healthTimeout = time.Second

// Handlers serves the service endpoints: ping, healthcheck and 404.
type Handlers struct {
	Logger logx.Logger
	check  HealthCheck
}

// New creates Handlers. A nil check makes the healthcheck always pass.
func New(logger logx.Logger, check HealthCheck) *Handlers {
	if logger == nil {
		logger = logx.Nop()
	}
	return &Handlers{Logger: logger, check: check}
}

// Ping handles GET /ping and returns 200 with {"message":"pong"}.
func (h *Handlers) Ping(w http.ResponseWriter, r *http.Request) {
	writeJSON(h.Logger, w, r, http.StatusOK, map[string]string{"message": "pong"})
}

// HealthcheckHead handles HEAD /healthcheck: 204 when the store answers
// within a second, 503 otherwise.
func (h *Handlers) HealthcheckHead(w http.ResponseWriter, r *http.Request) {
	if h.check != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()
		if err := h.check(ctx); err != nil {
			h.Logger.Warn("healthcheck failed",
				logx.String("req_id", reqID(r.Context())),
				logx.Err(err),
			)
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// NotFound returns a JSON 404 error for unknown routes.
func (h *Handlers) NotFound(w http.ResponseWriter, r *http.Request) {
	writeError(h.Logger, w, r, http.StatusNotFound, "route not found")
}
