package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/dig"

	"github.com/Orurh/courier-dispatch/internal/logx"
	"github.com/Orurh/courier-dispatch/internal/tracing"
)

// Runner runs the HTTP service
type Runner struct {
	runFn func(*dig.Container) error
}

// NewRunner returns a new Runner
func NewRunner() *Runner {
	return &Runner{runFn: run}
}

// MustRun starts the HTTP server using the provided DI container
func (r *Runner) MustRun(container *dig.Container) {
	err := r.runFn(container)
	if err == nil {
		return
	}
	logger := containerLogger(container)
	switch {
	case errors.Is(err, context.Canceled):
		logger.Info("shutdown requested, exiting")
	case errors.Is(err, context.DeadlineExceeded):
		logger.Error("startup aborted: startup timeout exceeded")
	default:
		logger.Error("run error", logx.Err(err))
		panic(err)
	}
}

// MustRun starts the HTTP server with a default Runner
func MustRun(container *dig.Container) {
	NewRunner().MustRun(container)
}

func containerLogger(container *dig.Container) logx.Logger {
	logger := logx.Nop()
	_ = container.Invoke(func(l logx.Logger) { logger = l })
	return logger
}

// resources is everything the processes release on exit.
type resources struct {
	dig.In

	Logger  logx.Logger
	Store   storeCloser
	Notify  notifyCloser
	Tracing tracing.Shutdown
}

type runIn struct {
	dig.In

	Ctx       context.Context
	Server    *http.Server
	Resources resources
}

func run(container *dig.Container) error {
	return container.Invoke(appRun)
}

func appRun(in runIn) error {
	logger := in.Resources.Logger
	errCh := make(chan error, 1)
	startServer(in.Server, logger, errCh)

	var err error
	select {
	case <-in.Ctx.Done():
		logger.Info("shutting down courier-dispatch")
		err = in.Ctx.Err()
	case err = <-errCh:
	}

	gracefulShutdown(in.Server, logger, 15*time.Second)
	closeResources(in.Resources)
	return err
}

func startServer(server *http.Server, logger logx.Logger, errCh chan<- error) {
	go func() {
		logger.Info("courier-dispatch listening", logx.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
}

func gracefulShutdown(srv *http.Server, logger logx.Logger, timeout time.Duration) {
	shCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shCtx); err != nil {
		logger.Error("graceful shutdown error", logx.Err(err))
	}
}

func closeResources(res resources) {
	logger := res.Logger
	if res.Tracing != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := res.Tracing(ctx); err != nil {
			logger.Error("tracing shutdown error", logx.Err(err))
		}
		cancel()
	}
	if res.Notify != nil {
		if err := res.Notify(); err != nil {
			logger.Error("notify close error", logx.Err(err))
		}
	}
	if res.Store != nil {
		res.Store()
	}
}
