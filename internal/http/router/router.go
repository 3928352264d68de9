package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Orurh/courier-dispatch/internal/http/handlers"
	mw "github.com/Orurh/courier-dispatch/internal/http/middleware"
	"github.com/Orurh/courier-dispatch/internal/http/middleware/ratelimit"
	"github.com/Orurh/courier-dispatch/internal/logx"
)

// New constructs a chi-based http.Handler with base middleware and routes.
// A nil rate limiter disables limiting.
func New(
	h *handlers.Handlers,
	d *handlers.DispatchHandler,
	logger logx.Logger,
	rl *ratelimit.Middleware,
) http.Handler {
	if logger == nil {
		logger = logx.Nop()
	}
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mw.Observability(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Second))

	r.Get("/ping", h.Ping)
	r.Method(http.MethodHead, "/healthcheck", http.HandlerFunc(h.HealthcheckHead))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		if rl != nil {
			r.Use(rl.Handler())
		}

		r.Get("/drivers/available", d.AvailableDrivers)
		r.Get("/drivers/{driverID}/assignments/active", d.ActiveAssignments)
		r.Get("/drivers/{driverID}/assignments", d.DriverHistory)
		r.Get("/drivers/{driverID}/analytics", d.DriverAnalytics)
		r.Get("/customers/{customerID}/assignments", d.CustomerHistory)

		r.Post("/orders/{orderID}/dispatch", d.DispatchOrder)
		r.Post("/broadcasts/{broadcastID}/accept", d.AcceptBroadcast)

		r.Route("/assignments/{assignmentID}", func(r chi.Router) {
			r.Get("/", d.Assignment)
			r.Post("/accept", d.AcceptAssignment)
			r.Post("/decline", d.Decline)
			r.Patch("/status", d.UpdateStatus)
		})
	})

	r.NotFound(http.HandlerFunc(h.NotFound))

	return r
}
