package app

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/dig"

	"github.com/Orurh/courier-dispatch/internal/metrics"
)

type metricsOut struct {
	dig.Out

	RateLimitExceededTotal prometheus.Counter `name:"rate_limit_exceeded_total"`
	Dispatch               *metrics.Dispatch
}

// provideMetrics registers counters on the default registerer, reusing
// collectors that are already there.
func provideMetrics() (metricsOut, error) {
	reg := prometheus.DefaultRegisterer

	rl := metrics.NewRateLimitExceededTotal()
	if err := reg.Register(rl); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return metricsOut{}, fmt.Errorf("register rate_limit_exceeded_total: %w", err)
		}
		existing, ok := are.ExistingCollector.(prometheus.Counter)
		if !ok {
			return metricsOut{}, fmt.Errorf("rate_limit_exceeded_total: unexpected collector %T", are.ExistingCollector)
		}
		rl = existing
	}

	d := metrics.NewDispatch()
	if err := d.Register(reg); err != nil {
		return metricsOut{}, err
	}
	return metricsOut{RateLimitExceededTotal: rl, Dispatch: d}, nil
}
