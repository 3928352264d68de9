package metrics

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// NewRateLimitExceededTotal returns a Prometheus counter for the number of rejected HTTP requests due to rate limiting
func NewRateLimitExceededTotal() prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rate_limit_exceeded_total",
		Help: "Total number of rejected HTTP requests due to rate limiting",
	})
}

// Dispatch groups the counters of the dispatch engine. A nil *Dispatch is a no-op.
type Dispatch struct {
	broadcastsCreated    prometheus.Counter
	broadcastsExpired    prometheus.Counter
	acceptOutcomes       *prometheus.CounterVec
	assignmentsCreated   *prometheus.CounterVec
	redispatches         *prometheus.CounterVec
	notificationFailures *prometheus.CounterVec
}

// NewDispatch creates unregistered dispatch counters.
func NewDispatch() *Dispatch {
	return &Dispatch{
		broadcastsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dispatch_broadcasts_created_total",
			Help: "Total number of broadcasts offered to couriers",
		}),
		broadcastsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dispatch_broadcasts_expired_total",
			Help: "Total number of broadcasts expired by the sweep",
		}),
		acceptOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_broadcast_accepts_total",
			Help: "Broadcast accept attempts by outcome",
		}, []string{"result"}),
		assignmentsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_assignments_created_total",
			Help: "Assignments created by dispatch mode",
		}, []string{"mode"}),
		redispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_redispatches_total",
			Help: "Automatic redispatch rounds by reason and result",
		}, []string{"reason", "result"}),
		notificationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_notification_failures_total",
			Help: "Notifications that could not be delivered",
		}, []string{"event"}),
	}
}

// Register registers all counters, reusing collectors that are already registered.
func (d *Dispatch) Register(reg prometheus.Registerer) error {
	register := func(name string, c prometheus.Collector) (prometheus.Collector, error) {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				return are.ExistingCollector, nil
			}
			return nil, fmt.Errorf("register %s: %w", name, err)
		}
		return c, nil
	}

	c, err := register("dispatch_broadcasts_created_total", d.broadcastsCreated)
	if err != nil {
		return err
	}
	d.broadcastsCreated = c.(prometheus.Counter)

	if c, err = register("dispatch_broadcasts_expired_total", d.broadcastsExpired); err != nil {
		return err
	}
	d.broadcastsExpired = c.(prometheus.Counter)

	vecs := []struct {
		name string
		vec  **prometheus.CounterVec
	}{
		{"dispatch_broadcast_accepts_total", &d.acceptOutcomes},
		{"dispatch_assignments_created_total", &d.assignmentsCreated},
		{"dispatch_redispatches_total", &d.redispatches},
		{"dispatch_notification_failures_total", &d.notificationFailures},
	}
	for _, v := range vecs {
		c, err := register(v.name, *v.vec)
		if err != nil {
			return err
		}
		*v.vec = c.(*prometheus.CounterVec)
	}
	return nil
}

// BroadcastCreated counts one new broadcast.
func (d *Dispatch) BroadcastCreated() {
	if d != nil {
		d.broadcastsCreated.Inc()
	}
}

// BroadcastsExpired counts n broadcasts moved to expired.
func (d *Dispatch) BroadcastsExpired(n int) {
	if d != nil && n > 0 {
		d.broadcastsExpired.Add(float64(n))
	}
}

// AcceptOutcome counts one accept attempt; result is "won", "lost" or "rejected".
func (d *Dispatch) AcceptOutcome(result string) {
	if d != nil {
		d.acceptOutcomes.WithLabelValues(result).Inc()
	}
}

// AssignmentCreated counts one new assignment by mode.
func (d *Dispatch) AssignmentCreated(mode string) {
	if d != nil {
		d.assignmentsCreated.WithLabelValues(mode).Inc()
	}
}

// Redispatch counts one automatic redispatch round.
func (d *Dispatch) Redispatch(reason, result string) {
	if d != nil {
		d.redispatches.WithLabelValues(reason, result).Inc()
	}
}

// NotificationFailed counts one undeliverable notification.
func (d *Dispatch) NotificationFailed(event string) {
	if d != nil {
		d.notificationFailures.WithLabelValues(event).Inc()
	}
}
