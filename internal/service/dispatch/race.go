package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/Orurh/courier-dispatch/internal/domain"
	"github.com/Orurh/courier-dispatch/internal/logx"
	"github.com/Orurh/courier-dispatch/internal/notify"
	"github.com/Orurh/courier-dispatch/internal/ports/dispatchtx"
)

// AcceptBroadcast lets an offered courier (by user id) take a pending
// broadcast. Exactly one concurrent caller wins; the others get
// ErrBroadcastAlreadyResolved.
func (s *Service) AcceptBroadcast(ctx context.Context, broadcastID, driverID int64) (_ *domain.Assignment, err error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	ctx, span := s.startSpan(ctx, "dispatch.AcceptBroadcast",
		attribute.Int64("broadcast.id", broadcastID),
		attribute.Int64("driver.id", driverID),
	)
	defer func() { endSpan(span, err) }()

	var (
		assignment *domain.Assignment
		outbox     []notify.Notification
	)
	now := s.now()

	err = s.store.WithTx(ctx, func(tx dispatchtx.Repository) error {
		b, err := tx.GetBroadcast(ctx, broadcastID)
		if err != nil {
			return fmt.Errorf("get broadcast: %w", err)
		}
		if b == nil {
			return ErrBroadcastNotFound
		}
		if b.Status != domain.BroadcastPending {
			return ErrBroadcastAlreadyResolved
		}
		if !b.Offered(driverID) {
			return ErrCourierNotOffered
		}

		courier, err := tx.LockCourierByUserID(ctx, driverID)
		if err != nil {
			return fmt.Errorf("lock courier: %w", err)
		}
		if courier == nil {
			return ErrCourierProfileMissing
		}
		counts, err := tx.ActiveCounts(ctx, []int64{courier.ID})
		if err != nil {
			return fmt.Errorf("active counts: %w", err)
		}
		if counts[courier.ID] >= s.policy.StackingLimit {
			return ErrCourierUnavailableOrOverStack
		}

		// conditional on the row still being pending; a concurrent winner leaves zero rows
		won, err := tx.ResolveBroadcast(ctx, b.ID, driverID)
		if err != nil {
			return fmt.Errorf("resolve broadcast: %w", err)
		}
		if !won {
			return ErrBroadcastAlreadyResolved
		}

		accepted := now
		a := &domain.Assignment{
			OrderID:        b.OrderID,
			CourierID:      courier.ID,
			Status:         domain.AssignmentAccepted,
			AcceptedAt:     &accepted,
			TimeoutSeconds: int(s.policy.AcceptTimeout / time.Second),
			Attempts:       1,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := insertAssignment(ctx, tx, a); err != nil {
			return err
		}
		a.CourierUserID = courier.UserID
		if err := tx.ResetRedispatch(ctx, b.OrderID); err != nil {
			return fmt.Errorf("reset redispatch: %w", err)
		}

		order, err := tx.GetOrder(ctx, b.OrderID)
		if err != nil {
			return fmt.Errorf("get order: %w", err)
		}

		assignment = a
		outbox = acceptedNotifications(*b, a, courier, order, now)
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrBroadcastAlreadyResolved) {
			s.metrics.AcceptOutcome("lost")
		} else {
			s.metrics.AcceptOutcome("rejected")
		}
		return nil, err
	}

	s.metrics.AcceptOutcome("won")
	s.logger.Info("broadcast accepted",
		logx.String("event", "broadcast_accepted"),
		logx.Int64("broadcast_id", broadcastID),
		logx.String("order_id", assignment.OrderID),
		logx.Int64("driver_id", driverID),
		logx.Int64("assignment_id", assignment.ID),
	)
	s.deliver(ctx, outbox)
	return assignment, nil
}

func acceptedNotifications(b domain.Broadcast, a *domain.Assignment, courier *domain.Courier, order *domain.Order, now time.Time) []notify.Notification {
	out := make([]notify.Notification, 0, len(b.DriverIDs)+2)
	for _, id := range b.DriverIDs {
		if id == courier.UserID {
			continue
		}
		out = append(out, notify.Notification{
			TargetID: id,
			Event:    notify.EventDeliveryExpired,
			Title:    "Delivery taken",
			Message:  fmt.Sprintf("Order %s was accepted by another courier", b.OrderID),
			Metadata: map[string]any{
				"broadcast_id": b.ID,
				"order_id":     b.OrderID,
			},
			CreatedAt: now,
		})
	}

	out = append(out, notify.Notification{
		TargetID: courier.UserID,
		Event:    notify.EventDeliveryAccepted,
		Title:    "Delivery confirmed",
		Message:  fmt.Sprintf("You accepted order %s", b.OrderID),
		Metadata: map[string]any{
			"broadcast_id":  b.ID,
			"order_id":      b.OrderID,
			"assignment_id": a.ID,
		},
		CreatedAt: now,
	})

	if order != nil {
		out = append(out, orderUpdate(courier.UserID, order, a, now)...)
	}
	return out
}

// orderUpdate addresses the customer and the vendor of the order.
func orderUpdate(actorID int64, order *domain.Order, a *domain.Assignment, now time.Time) []notify.Notification {
	meta := map[string]any{
		"order_id":      order.ID,
		"assignment_id": a.ID,
		"status":        string(a.Status),
	}
	var out []notify.Notification
	for _, target := range []int64{order.CustomerID, order.VendorUserID} {
		if target == 0 {
			continue
		}
		out = append(out, notify.Notification{
			ActorID:   actorID,
			TargetID:  target,
			Event:     notify.EventOrderUpdate,
			Title:     "Delivery update",
			Message:   fmt.Sprintf("Delivery of order %s is now %s", order.ID, a.Status),
			Metadata:  meta,
			CreatedAt: now,
		})
	}
	return out
}
