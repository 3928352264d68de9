package app

import (
	"go.uber.org/dig"

	"github.com/Orurh/courier-dispatch/internal/config"
	"github.com/Orurh/courier-dispatch/internal/logx"
	"github.com/Orurh/courier-dispatch/internal/service/dispatch"
	"github.com/Orurh/courier-dispatch/internal/service/orders"
	"github.com/Orurh/courier-dispatch/internal/transport/kafka"
	"github.com/Orurh/courier-dispatch/internal/worker/expiry"
)

func registerWorker(container *dig.Container) error {
	return provideAll(container,
		func(svc *dispatch.Service, logger logx.Logger) *orders.Processor {
			return orders.NewProcessor(svc, logger)
		},
		func(p *orders.Processor) kafka.HandleFunc {
			return makeOrdersKafka(p)
		},
		func(cfg *config.Config, logger logx.Logger, h kafka.HandleFunc) (*kafka.Consumer, error) {
			k := cfg.Kafka
			return kafka.NewConsumer(logger, k.Brokers, k.GroupID, k.OrdersTopic, h)
		},
		func(svc *dispatch.Service, cfg *config.Config, logger logx.Logger) (*expiry.Monitor, error) {
			return expiry.NewMonitor(svc, cfg.Dispatch.SweepInterval, logger)
		},
	)
}
