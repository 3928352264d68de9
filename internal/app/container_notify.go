package app

import (
	"errors"

	"github.com/redis/go-redis/v9"
	"go.uber.org/dig"

	"github.com/Orurh/courier-dispatch/internal/config"
	"github.com/Orurh/courier-dispatch/internal/logx"
	"github.com/Orurh/courier-dispatch/internal/notify"
)

// notifyCloser releases notification channel connections.
type notifyCloser func() error

type notifyOut struct {
	dig.Out

	Notifier notify.Notifier
	Closer   notifyCloser
}

var newPush = notify.NewPush

// provideNotifier fans out to the audit store plus whichever of the realtime
// and push channels are configured.
func provideNotifier(cfg *config.Config, logger logx.Logger, audit notify.AuditStore) (notifyOut, error) {
	var (
		channels []notify.Notifier
		closers  []func() error
	)
	closeAll := func() error {
		var errs []error
		for _, c := range closers {
			errs = append(errs, c())
		}
		return errors.Join(errs...)
	}

	if a := notify.NewAudit(audit); a != nil {
		channels = append(channels, a)
	}

	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		channels = append(channels, notify.NewRealtime(client))
		closers = append(closers, client.Close)
		logger.Info("realtime notifications enabled", logx.String("addr", cfg.Redis.Addr))
	}

	push, err := newPush(cfg.Kafka.Brokers, cfg.Kafka.NotificationsTopic)
	if err != nil {
		_ = closeAll()
		return notifyOut{}, err
	}
	if push != nil {
		channels = append(channels, push)
		closers = append(closers, push.Close)
		logger.Info("push notifications enabled", logx.String("topic", cfg.Kafka.NotificationsTopic))
	}

	return notifyOut{Notifier: notify.NewFanout(channels...), Closer: closeAll}, nil
}
