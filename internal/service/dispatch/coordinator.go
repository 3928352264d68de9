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

// Mode tells how an order was dispatched.
type Mode string

// Dispatch modes.
const (
	ModeManual    Mode = "manual"
	ModeBroadcast Mode = "broadcast"
)

// Result of AssignOrder. Manual mode fills Assignment, broadcast mode fills Broadcast.
type Result struct {
	Mode       Mode
	Assignment *domain.Assignment
	Broadcast  *domain.Broadcast
}

// AssignOrder dispatches an order. With driverID (a courier user id) the
// courier is assigned directly, otherwise the order is broadcast to the
// nearest eligible couriers.
func (s *Service) AssignOrder(ctx context.Context, orderID string, driverID *int64) (_ Result, err error) {
	orderID, err = validateOrderID(orderID)
	if err != nil {
		return Result{}, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	ctx, span := s.startSpan(ctx, "dispatch.AssignOrder",
		attribute.String("order.id", orderID),
		attribute.Bool("manual", driverID != nil),
	)
	defer func() { endSpan(span, err) }()

	return s.assign(ctx, orderID, driverID)
}

func (s *Service) assign(ctx context.Context, orderID string, driverID *int64) (Result, error) {
	var (
		result Result
		outbox []notify.Notification
	)
	now := s.now()

	err := s.store.WithTx(ctx, func(tx dispatchtx.Repository) error {
		order, err := tx.GetOrder(ctx, orderID)
		if err != nil {
			return fmt.Errorf("get order: %w", err)
		}
		if order == nil {
			return ErrOrderNotFound
		}
		if order.VendorLocation == nil || !order.VendorLocation.Valid() {
			return ErrVendorLocationMissing
		}

		active, err := tx.OrderHasActiveAssignment(ctx, orderID)
		if err != nil {
			return fmt.Errorf("check active assignment: %w", err)
		}
		if active {
			return ErrOrderAlreadyAssigned
		}

		candidates, err := s.eligible(ctx, tx, *order.VendorLocation)
		if err != nil {
			return err
		}

		if driverID != nil {
			a, n, err := s.assignManual(ctx, tx, order, candidates, *driverID, now)
			if err != nil {
				return err
			}
			// a manual pick ends any open offer round of the order
			withdrawn, err := tx.SupersedeBroadcasts(ctx, orderID)
			if err != nil {
				return fmt.Errorf("supersede broadcasts: %w", err)
			}
			n = append(n, withdrawnNotifications(withdrawn, a.CourierUserID, now)...)
			result, outbox = Result{Mode: ModeManual, Assignment: a}, n
			return nil
		}

		b, n, err := s.broadcast(ctx, tx, order, candidates, now)
		if err != nil {
			return err
		}
		result, outbox = Result{Mode: ModeBroadcast, Broadcast: b}, n
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	s.metrics.AssignmentCreated(string(result.Mode))
	switch result.Mode {
	case ModeManual:
		s.logger.Info("courier assigned",
			logx.String("event", "courier_assigned"),
			logx.String("order_id", orderID),
			logx.Int64("assignment_id", result.Assignment.ID),
			logx.Int64("courier_id", result.Assignment.CourierID),
			logx.Any("distance_km", result.Assignment.DistanceKm),
		)
	case ModeBroadcast:
		s.metrics.BroadcastCreated()
		s.logger.Info("broadcast created",
			logx.String("event", "broadcast_created"),
			logx.String("order_id", orderID),
			logx.Int64("broadcast_id", result.Broadcast.ID),
			logx.Int("candidates", len(result.Broadcast.DriverIDs)),
			logx.Time("expires_at", result.Broadcast.ExpiresAt),
		)
	}

	s.deliver(ctx, outbox)
	return result, nil
}

func (s *Service) assignManual(ctx context.Context, tx dispatchtx.Repository, order *domain.Order, candidates []domain.AvailableCourier, userID int64, now time.Time) (*domain.Assignment, []notify.Notification, error) {
	var picked *domain.AvailableCourier
	for i := range candidates {
		if candidates[i].UserID == userID {
			picked = &candidates[i]
			break
		}
	}
	if picked == nil {
		return nil, nil, ErrCourierUnavailableOrOverStack
	}

	// recount under the courier row lock, the ranking read was unlocked
	courier, err := tx.LockCourierByUserID(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("lock courier: %w", err)
	}
	if courier == nil {
		return nil, nil, ErrCourierUnavailableOrOverStack
	}
	counts, err := tx.ActiveCounts(ctx, []int64{courier.ID})
	if err != nil {
		return nil, nil, fmt.Errorf("active counts: %w", err)
	}
	load := counts[courier.ID]
	if load >= s.policy.StackingLimit {
		return nil, nil, ErrCourierUnavailableOrOverStack
	}

	a := &domain.Assignment{
		OrderID:        order.ID,
		CourierID:      courier.ID,
		Status:         domain.AssignmentAssigned,
		TimeoutSeconds: int(s.policy.AcceptTimeout / time.Second),
		Attempts:       1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if load >= 1 {
		batch := s.newBatchID()
		a.BatchID = &batch
	}
	if err := insertAssignment(ctx, tx, a); err != nil {
		return nil, nil, err
	}
	a.CourierUserID = courier.UserID
	a.DistanceKm = picked.DistanceKm

	n := notify.Notification{
		TargetID: courier.UserID,
		Event:    notify.EventNewDeliveryAssigned,
		Title:    "New delivery assigned",
		Message:  fmt.Sprintf("Order %s has been assigned to you", order.ID),
		Metadata: map[string]any{
			"assignment_id": a.ID,
			"order_id":      order.ID,
			"distance_km":   a.DistanceKm,
		},
		CreatedAt: now,
	}
	return a, []notify.Notification{n}, nil
}

func (s *Service) broadcast(ctx context.Context, tx dispatchtx.Repository, order *domain.Order, candidates []domain.AvailableCourier, now time.Time) (*domain.Broadcast, []notify.Notification, error) {
	if len(candidates) == 0 {
		return nil, nil, ErrNoDriversAvailable
	}
	top := candidates[:min(len(candidates), s.policy.FanoutWidth)]

	if _, err := tx.SupersedeBroadcasts(ctx, order.ID); err != nil {
		return nil, nil, fmt.Errorf("supersede broadcasts: %w", err)
	}

	b := &domain.Broadcast{
		OrderID:   order.ID,
		DriverIDs: make([]int64, 0, len(top)),
		Status:    domain.BroadcastPending,
		ExpiresAt: now.Add(s.policy.BroadcastWindow),
		CreatedAt: now,
	}
	for _, c := range top {
		b.DriverIDs = append(b.DriverIDs, c.UserID)
	}
	if err := tx.InsertBroadcast(ctx, b); err != nil {
		return nil, nil, fmt.Errorf("insert broadcast: %w", err)
	}

	outbox := make([]notify.Notification, 0, len(top)+1)
	for _, c := range top {
		outbox = append(outbox, notify.Notification{
			TargetID: c.UserID,
			Event:    notify.EventDeliveryRequest,
			Title:    "New delivery request",
			Message:  fmt.Sprintf("Order %s is %.2f km away", order.ID, c.DistanceKm),
			Metadata: map[string]any{
				"broadcast_id": b.ID,
				"order_id":     order.ID,
				"expires_at":   b.ExpiresAt,
				"distance_km":  c.DistanceKm,
			},
			CreatedAt: now,
		})
	}
	if order.VendorUserID != 0 {
		outbox = append(outbox, notify.Notification{
			TargetID: order.VendorUserID,
			Event:    notify.EventBroadcastStarted,
			Title:    "Looking for a courier",
			Message:  fmt.Sprintf("Order %s was offered to %d couriers", order.ID, len(top)),
			Metadata: map[string]any{
				"broadcast_id": b.ID,
				"order_id":     order.ID,
				"candidates":   len(top),
			},
			CreatedAt: now,
		})
	}
	return b, outbox, nil
}

// CancelOffers expires every pending broadcast of the order.
func (s *Service) CancelOffers(ctx context.Context, orderID string) (_ int, err error) {
	orderID, err = validateOrderID(orderID)
	if err != nil {
		return 0, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	ctx, span := s.startSpan(ctx, "dispatch.CancelOffers", attribute.String("order.id", orderID))
	defer func() { endSpan(span, err) }()

	var withdrawn []domain.Broadcast
	err = s.store.WithTx(ctx, func(tx dispatchtx.Repository) error {
		withdrawn, err = tx.SupersedeBroadcasts(ctx, orderID)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("supersede broadcasts: %w", err)
	}
	if len(withdrawn) > 0 {
		s.logger.Info("broadcasts cancelled",
			logx.String("event", "broadcasts_cancelled"),
			logx.String("order_id", orderID),
			logx.Int("count", len(withdrawn)),
		)
		s.deliver(ctx, withdrawnNotifications(withdrawn, 0, s.now()))
	}
	return len(withdrawn), nil
}

// withdrawnNotifications tells every courier offered one of the broadcasts
// that the offer is gone. keep is a user id that is skipped, 0 skips none.
func withdrawnNotifications(withdrawn []domain.Broadcast, keep int64, now time.Time) []notify.Notification {
	var out []notify.Notification
	seen := make(map[int64]struct{})
	for _, b := range withdrawn {
		for _, id := range b.DriverIDs {
			if _, dup := seen[id]; dup || id == keep {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, notify.Notification{
				TargetID: id,
				Event:    notify.EventDeliveryExpired,
				Title:    "Delivery request withdrawn",
				Message:  fmt.Sprintf("Order %s is no longer available", b.OrderID),
				Metadata: map[string]any{
					"broadcast_id": b.ID,
					"order_id":     b.OrderID,
				},
				CreatedAt: now,
			})
		}
	}
	return out
}

func insertAssignment(ctx context.Context, tx dispatchtx.Repository, a *domain.Assignment) error {
	if err := tx.InsertAssignment(ctx, a); err != nil {
		if errors.Is(err, dispatchtx.ErrActiveAssignmentExists) {
			return ErrOrderAlreadyAssigned
		}
		return fmt.Errorf("insert assignment: %w", err)
	}
	return nil
}
