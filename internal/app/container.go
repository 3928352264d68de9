package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/dig"

	"github.com/Orurh/courier-dispatch/internal/config"
	"github.com/Orurh/courier-dispatch/internal/http/handlers"
	"github.com/Orurh/courier-dispatch/internal/http/middleware/ratelimit"
	"github.com/Orurh/courier-dispatch/internal/http/router"
	"github.com/Orurh/courier-dispatch/internal/logx"
	"github.com/Orurh/courier-dispatch/internal/metrics"
	"github.com/Orurh/courier-dispatch/internal/notify"
	"github.com/Orurh/courier-dispatch/internal/ports/dispatchtx"
	"github.com/Orurh/courier-dispatch/internal/service/dispatch"
	"github.com/Orurh/courier-dispatch/internal/tracing"
)

type dbConnectFunc func(context.Context, logx.Logger, string, int, time.Duration) (*pgxpool.Pool, error)

// ContainerBuilder is a dig container builder.
type ContainerBuilder struct {
	dbConnect dbConnectFunc
	logFatalf func(string, ...interface{})
	loadCfg   func() (*config.Config, error)
}

// NewContainerBuilder returns a new dig container builder
func NewContainerBuilder() *ContainerBuilder {
	return &ContainerBuilder{
		dbConnect: connectDbWithRetry,
		logFatalf: log.Fatalf,
		loadCfg:   config.Load,
	}
}

// WithDBConnect sets the database connection function
func (b *ContainerBuilder) WithDBConnect(fn dbConnectFunc) *ContainerBuilder {
	if fn != nil {
		b.dbConnect = fn
	}
	return b
}

// WithLogFatalf sets the log.Fatalf function
func (b *ContainerBuilder) WithLogFatalf(fn func(string, ...interface{})) *ContainerBuilder {
	if fn != nil {
		b.logFatalf = fn
	}
	return b
}

// WithConfig replaces config loading with a fixed config
func (b *ContainerBuilder) WithConfig(cfg *config.Config) *ContainerBuilder {
	if cfg != nil {
		b.loadCfg = func() (*config.Config, error) { return cfg, nil }
	}
	return b
}

// MustBuild builds and returns the HTTP service container
func (b *ContainerBuilder) MustBuild(ctx context.Context) *dig.Container {
	container, err := b.build(ctx, false)
	if err != nil {
		b.logFatalf("failed to build container: %v", err)
	}
	return container
}

// MustBuildWorker builds and returns the worker container
func (b *ContainerBuilder) MustBuildWorker(ctx context.Context) *dig.Container {
	container, err := b.build(ctx, true)
	if err != nil {
		b.logFatalf("failed to build worker container: %v", err)
	}
	return container
}

// build builds and returns a new dig container
func (b *ContainerBuilder) build(ctx context.Context, worker bool) (*dig.Container, error) {
	container := dig.New()

	if err := registerCore(container, ctx, b.loadCfg); err != nil {
		return nil, fmt.Errorf("core: %w", err)
	}
	if err := registerDb(container, b.dbConnect); err != nil {
		return nil, fmt.Errorf("DB: %w", err)
	}
	if err := registerService(container); err != nil {
		return nil, fmt.Errorf("service: %w", err)
	}
	if worker {
		if err := registerWorker(container); err != nil {
			return nil, fmt.Errorf("worker: %w", err)
		}
		return container, nil
	}
	if err := registerHTTP(container); err != nil {
		return nil, fmt.Errorf("http: %w", err)
	}
	return container, nil
}

// MustBuildContainer builds and returns the HTTP service container
func MustBuildContainer(ctx context.Context) *dig.Container {
	return NewContainerBuilder().MustBuild(ctx)
}

// MustBuildWorkerContainer builds and returns the worker container
func MustBuildWorkerContainer(ctx context.Context) *dig.Container {
	return NewContainerBuilder().MustBuildWorker(ctx)
}

func provideAll(container *dig.Container, providers ...any) error {
	for _, provider := range providers {
		if err := container.Provide(provider); err != nil {
			return fmt.Errorf("provide %T: %w", provider, err)
		}
	}
	return nil
}

func registerCore(container *dig.Container, ctx context.Context, loadCfg func() (*config.Config, error)) error {
	return provideAll(container,
		func() context.Context { return ctx },
		loadCfg,
		func(cfg *config.Config) logx.Logger { return NewLogger(cfg.LogLevel) },
		provideMetrics,
		provideTracing,
	)
}

func provideTracing(ctx context.Context, cfg *config.Config) (tracing.Shutdown, error) {
	t := cfg.Tracing
	return tracing.Init(ctx, tracing.Config{
		Enabled:     t.Enabled,
		Endpoint:    t.Endpoint,
		ServiceName: t.ServiceName,
		Environment: t.Environment,
		SampleRate:  t.SampleRate,
	})
}

func policyFromConfig(cfg *config.Config) dispatch.Policy {
	d := cfg.Dispatch
	return dispatch.Policy{
		BroadcastWindow:       d.BroadcastTTL,
		FanoutWidth:           d.FanoutWidth,
		StackingLimit:         d.StackingLimit,
		AcceptTimeout:         d.AcceptTimeout,
		SweepBatchSize:        d.SweepBatchSize,
		MaxRedispatchAttempts: d.MaxRedispatchAttempts,
		OperationTimeout:      d.OperationTimeout,
	}
}

func registerService(container *dig.Container) error {
	return provideAll(container,
		provideNotifier,
		func(
			store dispatchtx.Store,
			n notify.Notifier,
			m *metrics.Dispatch,
			cfg *config.Config,
			logger logx.Logger,
		) *dispatch.Service {
			return dispatch.NewService(store, n, m, policyFromConfig(cfg), logger)
		},
	)
}

func newServer(cfg *config.Config, mux http.Handler) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

func registerHTTP(container *dig.Container) error {
	return provideAll(container,
		handlers.New,
		handlers.NewDispatchUsecase,
		handlers.NewDispatchHandler,
		newRateLimiter,
		newRateLimitMiddleware,
		func(
			h *handlers.Handlers,
			d *handlers.DispatchHandler,
			logger logx.Logger,
			rl *ratelimit.Middleware,
		) http.Handler {
			return tracing.WrapHandler(router.New(h, d, logger, rl), "courier-dispatch")
		},
		newServer,
	)
}
