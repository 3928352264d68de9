package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/Orurh/courier-dispatch/internal/domain"
	"github.com/Orurh/courier-dispatch/internal/logx"
	"github.com/Orurh/courier-dispatch/internal/notify"
	"github.com/Orurh/courier-dispatch/internal/ports/dispatchtx"
)

// ExpireOldBroadcasts expires lapsed pending broadcasts and starts a new
// round for each of their orders. It returns how many were expired.
func (s *Service) ExpireOldBroadcasts(ctx context.Context) (_ int, err error) {
	ctx, span := s.startSpan(ctx, "dispatch.ExpireOldBroadcasts")
	defer func() { endSpan(span, err) }()

	sweepCtx, cancel := s.withTimeout(ctx)
	expired, err := s.store.ExpirePending(sweepCtx, s.now(), s.policy.SweepBatchSize)
	cancel()
	if err != nil {
		return 0, fmt.Errorf("expire pending: %w", err)
	}
	s.metrics.BroadcastsExpired(len(expired))

	for _, e := range expired {
		s.logger.Info("broadcast expired",
			logx.String("event", "broadcast_expired"),
			logx.Int64("broadcast_id", e.ID),
			logx.String("order_id", e.OrderID),
		)

		rctx, cancel := s.withTimeout(ctx)
		s.redispatch(rctx, e.OrderID, "expiry")
		cancel()
	}
	return len(expired), nil
}

// redispatch starts a broadcast round for an order that lost its courier.
// It never returns an error: failures leave the order without an active
// assignment until a later round or a manual dispatch.
func (s *Service) redispatch(ctx context.Context, orderID, reason string) {
	var (
		session domain.DispatchSession
		order   *domain.Order
	)
	err := s.store.WithTx(ctx, func(tx dispatchtx.Repository) error {
		var err error
		session, err = tx.BumpRedispatch(ctx, orderID, s.policy.MaxRedispatchAttempts)
		if err != nil {
			return fmt.Errorf("bump redispatch: %w", err)
		}
		if session.Exhausted {
			order, err = tx.GetOrder(ctx, orderID)
			if err != nil {
				return fmt.Errorf("get order: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		s.metrics.Redispatch(reason, "error")
		s.logger.Error("redispatch failed",
			logx.String("event", "redispatch_failed"),
			logx.String("order_id", orderID),
			logx.String("reason", reason),
			logx.Err(err),
		)
		return
	}

	if session.Exhausted {
		s.metrics.Redispatch(reason, "exhausted")
		s.logger.Warn("redispatch attempts exhausted",
			logx.String("event", "redispatch_exhausted"),
			logx.String("order_id", orderID),
			logx.String("reason", reason),
			logx.Int("redispatches", session.Redispatches),
		)
		if order != nil && order.VendorUserID != 0 {
			s.deliver(ctx, []notify.Notification{{
				TargetID: order.VendorUserID,
				Event:    notify.EventDispatchExhausted,
				Title:    "No courier found",
				Message:  fmt.Sprintf("No courier accepted order %s", orderID),
				Metadata: map[string]any{
					"order_id":     orderID,
					"redispatches": session.Redispatches,
				},
				CreatedAt: s.now(),
			}})
		}
		return
	}

	res, err := s.assign(ctx, orderID, nil)
	if err != nil {
		result := "error"
		if errors.Is(err, ErrNoDriversAvailable) {
			result = "no_drivers"
		}
		s.metrics.Redispatch(reason, result)
		s.logger.Warn("redispatch failed",
			logx.String("event", "redispatch_failed"),
			logx.String("order_id", orderID),
			logx.String("reason", reason),
			logx.Err(err),
		)
		return
	}

	s.metrics.Redispatch(reason, "broadcast")
	s.logger.Info("order redispatched",
		logx.String("event", "order_redispatched"),
		logx.String("order_id", orderID),
		logx.String("reason", reason),
		logx.Int64("broadcast_id", res.Broadcast.ID),
		logx.Int("round", session.Redispatches),
	)
}
