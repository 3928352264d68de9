// Package expiry runs the periodic broadcast expiry sweep.
package expiry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Orurh/courier-dispatch/internal/logx"
)

// Sweeper expires lapsed broadcasts and redispatches their orders.
type Sweeper interface {
	ExpireOldBroadcasts(ctx context.Context) (int, error)
}

// Monitor fires the sweep on a fixed interval. A sweep still running when
// the next tick fires makes that tick a no-op.
type Monitor struct {
	sweeper  Sweeper
	interval time.Duration
	logger   logx.Logger

	mu     sync.Mutex
	cron   *cron.Cron
	cancel context.CancelFunc
}

// NewMonitor - creates a new Monitor. Intervals below one second are raised
// to one second by the scheduler.
func NewMonitor(sweeper Sweeper, interval time.Duration, logger logx.Logger) (*Monitor, error) {
	if sweeper == nil {
		return nil, errors.New("expiry monitor: nil sweeper")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("expiry monitor: invalid interval %s", interval)
	}
	if logger == nil {
		logger = logx.Nop()
	}
	return &Monitor{sweeper: sweeper, interval: interval, logger: logger}, nil
}

// Start schedules the sweep. Sweeps keep running after ctx is cancelled
// until Stop is called.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cron != nil {
		return errors.New("expiry monitor already started")
	}

	cl := cronLogger{l: m.logger}
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	sweepCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	if _, err := c.AddFunc("@every "+m.interval.String(), func() { m.Sweep(sweepCtx) }); err != nil {
		cancel()
		return fmt.Errorf("schedule sweep: %w", err)
	}
	c.Start()
	m.cron, m.cancel = c, cancel

	m.logger.Info("expiry monitor started", logx.Duration("interval", m.interval))
	return nil
}

// Stop waits for a running sweep to finish and stops the scheduler.
func (m *Monitor) Stop() {
	m.mu.Lock()
	c, cancel := m.cron, m.cancel
	m.cron, m.cancel = nil, nil
	m.mu.Unlock()
	if c == nil {
		return
	}

	<-c.Stop().Done()
	cancel()
	m.logger.Info("expiry monitor stopped")
}

// Run starts the monitor and blocks until ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	if err := m.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	m.Stop()
	return nil
}

// Sweep runs one expiry pass.
func (m *Monitor) Sweep(ctx context.Context) {
	started := time.Now()
	n, err := m.sweeper.ExpireOldBroadcasts(ctx)
	if err != nil {
		m.logger.Error("expiry sweep failed",
			logx.String("event", "expiry_sweep_failed"),
			logx.Err(err),
		)
		return
	}
	if n > 0 {
		m.logger.Info("expiry sweep",
			logx.String("event", "expiry_sweep"),
			logx.Int("expired", n),
			logx.Duration("took", time.Since(started)),
		)
	}
}

// cronLogger routes scheduler logs to logx; scheduler chatter goes to debug.
type cronLogger struct {
	l logx.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug("cron: "+msg, kvFields(keysAndValues)...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error("cron: "+msg, append(kvFields(keysAndValues), logx.Err(err))...)
}

func kvFields(kv []interface{}) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}
		out = append(out, logx.Any(key, kv[i+1]))
	}
	return out
}
