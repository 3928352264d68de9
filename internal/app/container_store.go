package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/dig"

	"github.com/Orurh/courier-dispatch/internal/config"
	"github.com/Orurh/courier-dispatch/internal/http/handlers"
	"github.com/Orurh/courier-dispatch/internal/logx"
	"github.com/Orurh/courier-dispatch/internal/notify"
	"github.com/Orurh/courier-dispatch/internal/ports/dispatchtx"
	"github.com/Orurh/courier-dispatch/internal/repository"
	"github.com/Orurh/courier-dispatch/internal/repository/memory"
)

// storeCloser releases the store backend.
type storeCloser func()

type storeOut struct {
	dig.Out

	Store  dispatchtx.Store
	Audit  notify.AuditStore
	Health handlers.HealthCheck
	Closer storeCloser
}

var migrate = repository.Migrate

func registerDb(container *dig.Container, dbConnect dbConnectFunc) error {
	providerStore := func(ctx context.Context, cfg *config.Config, logger logx.Logger) (storeOut, error) {
		if cfg.Store == config.StoreMemory {
			s := memory.New()
			logger.Warn("using in-memory store, state is lost on restart")
			return storeOut{Store: s, Audit: s, Health: func(context.Context) error { return nil }, Closer: func() {}}, nil
		}

		pool, err := dbConnect(ctx, logger, cfg.DB.DSN(), 10, time.Second)
		if err != nil {
			return storeOut{}, err
		}
		if err := migrate(ctx, pool); err != nil {
			pool.Close()
			return storeOut{}, fmt.Errorf("migrate: %w", err)
		}
		return storeOut{
			Store:  repository.NewDispatchRepo(pool),
			Audit:  repository.NewNotificationRepo(pool),
			Health: pool.Ping,
			Closer: pool.Close,
		}, nil
	}
	return provideAll(container, providerStore)
}
