package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/dig"

	"github.com/Orurh/courier-dispatch/internal/config"
	"github.com/Orurh/courier-dispatch/internal/http/middleware/ratelimit"
	"github.com/Orurh/courier-dispatch/internal/logx"
)

// newRateLimiter builds the per-key token bucket limiter, or a pass-through
// one when rate limiting is switched off.
func newRateLimiter(cfg *config.Config, logger logx.Logger) ratelimit.Limiter {
	rl := cfg.RateLimit
	if !rl.Enabled {
		logger.Warn("rate limiting disabled")
		return ratelimit.NopLimiter{}
	}
	logger.Info("rate limiting enabled",
		logx.Float64("rate", rl.Rate),
		logx.Int("burst", rl.Burst),
		logx.Duration("bucket_ttl", rl.TTL),
	)
	return ratelimit.NewTokenBucketLimiter(ratelimit.RealClock{}, ratelimit.Config{
		Rate:       rl.Rate,
		Burst:      rl.Burst,
		TTL:        rl.TTL,
		MaxBuckets: rl.MaxBuckets,
	})
}

type rateLimitIn struct {
	dig.In

	Logger   logx.Logger
	Rejected prometheus.Counter `name:"rate_limit_exceeded_total"`
	Limiter  ratelimit.Limiter
}

// Driver routes are limited per driver so couriers behind one carrier NAT
// do not share a bucket.
func newRateLimitMiddleware(in rateLimitIn) *ratelimit.Middleware {
	return ratelimit.New(in.Logger, in.Rejected, in.Limiter, ratelimit.WithKey(ratelimit.ByDriverOrClientIP))
}
