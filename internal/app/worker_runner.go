package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/dig"
	"golang.org/x/sync/errgroup"

	"github.com/Orurh/courier-dispatch/internal/logx"
	"github.com/Orurh/courier-dispatch/internal/transport/kafka"
	"github.com/Orurh/courier-dispatch/internal/worker/expiry"
)

// WorkerRunner runs the order events consumer and the expiry monitor
type WorkerRunner struct {
	runFn func(*dig.Container) error
}

// NewWorkerRunner returns a new WorkerRunner
func NewWorkerRunner() *WorkerRunner {
	return &WorkerRunner{runFn: runWorker}
}

// MustRun starts the worker using the provided DI container
func (r *WorkerRunner) MustRun(container *dig.Container) {
	err := r.runFn(container)
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}
	panic(err)
}

func runWorker(container *dig.Container) error {
	return container.Invoke(workerRun)
}

type workerIn struct {
	dig.In

	Ctx       context.Context
	Consumer  *kafka.Consumer
	Monitor   *expiry.Monitor
	Resources resources
}

func workerRun(in workerIn) error {
	if in.Monitor == nil {
		return fmt.Errorf("expiry monitor is nil: worker container misconfigured")
	}
	logger := in.Resources.Logger
	defer closeWorker(in.Consumer, in.Resources)

	g, ctx := errgroup.WithContext(in.Ctx)
	g.Go(func() error { return in.Monitor.Run(ctx) })
	if in.Consumer != nil {
		g.Go(func() error { return in.Consumer.Run(ctx) })
	} else {
		logger.Warn("kafka not configured, order events disabled")
	}

	logger.Info("courier-dispatch worker started")
	return g.Wait()
}

func closeWorker(kafkaConsumer *kafka.Consumer, res resources) {
	if kafkaConsumer != nil {
		if err := kafkaConsumer.Close(); err != nil {
			res.Logger.Error("kafka close error", logx.Err(err))
		}
	}
	closeResources(res)
}
