package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Orurh/courier-dispatch/internal/logx"
	"github.com/Orurh/courier-dispatch/internal/repository"
)

var newPool = repository.NewPool

const (
	dbAttemptTimeout = 3 * time.Second
	dbMaxDelay       = 5 * time.Second
)

// connectDbWithRetry dials Postgres up to retries times. The pause between
// attempts starts at delay and doubles up to dbMaxDelay.
func connectDbWithRetry(ctx context.Context, logger logx.Logger, dsn string, retries int, delay time.Duration) (*pgxpool.Pool, error) {
	if retries < 1 {
		retries = 1
	}
	var lastErr error
	for i := 1; i <= retries; i++ {
		attemptCtx, cancel := context.WithTimeout(ctx, dbAttemptTimeout)
		pool, err := newPool(attemptCtx, dsn)
		cancel()
		if err == nil {
			logger.Info("db connected", logx.Int("attempt", i))
			return pool, nil
		}
		lastErr = err
		logger.Warn("db connect failed",
			logx.Int("attempt", i),
			logx.Int("retries", retries),
			logx.Duration("next_in", delay),
			logx.Err(err),
		)
		if i == retries {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay = min(delay*2, dbMaxDelay)
	}
	return nil, fmt.Errorf("db connect failed after %d attempts: %w", retries, lastErr)
}
