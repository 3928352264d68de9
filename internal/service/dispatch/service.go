// Package dispatch matches orders to couriers: manual assignment, competitive
// broadcasts with a single winner, the assignment lifecycle and redispatch on
// decline or broadcast expiry.
package dispatch

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Orurh/courier-dispatch/internal/logx"
	"github.com/Orurh/courier-dispatch/internal/metrics"
	"github.com/Orurh/courier-dispatch/internal/notify"
	"github.com/Orurh/courier-dispatch/internal/ports/dispatchtx"
)

const tracerName = "github.com/Orurh/courier-dispatch/internal/service/dispatch"

// Policy holds the tunable dispatch constants.
type Policy struct {
	BroadcastWindow       time.Duration
	FanoutWidth           int
	StackingLimit         int
	AcceptTimeout         time.Duration
	SweepBatchSize        int
	// MaxRedispatchAttempts caps automatic redispatch rounds (decline, expiry)
	// since the order was last accepted by a courier. 0 means unlimited.
	MaxRedispatchAttempts int
	OperationTimeout      time.Duration
}

// DefaultPolicy returns a 30s window, five candidates and a stacking limit of three.
func DefaultPolicy() Policy {
	return Policy{
		BroadcastWindow:  30 * time.Second,
		FanoutWidth:      5,
		StackingLimit:    3,
		AcceptTimeout:    30 * time.Second,
		SweepBatchSize:   100,
		OperationTimeout: 3 * time.Second,
	}
}

func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.BroadcastWindow <= 0 {
		p.BroadcastWindow = d.BroadcastWindow
	}
	if p.FanoutWidth <= 0 {
		p.FanoutWidth = d.FanoutWidth
	}
	if p.StackingLimit <= 0 {
		p.StackingLimit = d.StackingLimit
	}
	if p.AcceptTimeout <= 0 {
		p.AcceptTimeout = d.AcceptTimeout
	}
	if p.SweepBatchSize <= 0 {
		p.SweepBatchSize = d.SweepBatchSize
	}
	if p.MaxRedispatchAttempts < 0 {
		p.MaxRedispatchAttempts = 0
	}
	if p.OperationTimeout <= 0 {
		p.OperationTimeout = d.OperationTimeout
	}
	return p
}

// Service - dispatch engine over a transactional store.
type Service struct {
	store            dispatchtx.Store
	notifier         notify.Notifier
	metrics          *metrics.Dispatch
	policy           Policy
	operationTimeout time.Duration
	logger           logx.Logger
	tracer           trace.Tracer
	now              func() time.Time
	newBatchID       func() uuid.UUID
}

// Option customizes a Service.
type Option func(*Service)

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService - creates a new dispatch Service. A nil notifier discards notifications.
func NewService(store dispatchtx.Store, notifier notify.Notifier, m *metrics.Dispatch, policy Policy, logger logx.Logger, opts ...Option) *Service {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if logger == nil {
		logger = logx.Nop()
	}
	policy = policy.withDefaults()
	s := &Service{
		store:            store,
		notifier:         notifier,
		metrics:          m,
		policy:           policy,
		operationTimeout: policy.OperationTimeout,
		logger:           logger,
		tracer:           otel.Tracer(tracerName),
		now:              func() time.Time { return time.Now().UTC() },
		newBatchID:       uuid.New,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Policy returns the effective policy after defaults.
func (s *Service) Policy() Policy { return s.policy }

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.operationTimeout)
}

func (s *Service) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// deliver sends notifications collected inside a committed transaction.
// Failures are logged and counted only.
func (s *Service) deliver(ctx context.Context, batch []notify.Notification) {
	for _, n := range batch {
		if err := s.notifier.Notify(ctx, n); err != nil {
			s.metrics.NotificationFailed(string(n.Event))
			s.logger.Warn("notification failed",
				logx.String("event", "notification_failed"),
				logx.String("notification", string(n.Event)),
				logx.Int64("target_id", n.TargetID),
				logx.Err(err),
			)
		}
	}
}

func validateOrderID(raw string) (string, error) {
	orderID := strings.TrimSpace(raw)
	if orderID == "" {
		return "", ErrInvalidOrderID
	}
	return orderID, nil
}
