package dispatch

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/Orurh/courier-dispatch/internal/domain"
	"github.com/Orurh/courier-dispatch/internal/logx"
	"github.com/Orurh/courier-dispatch/internal/notify"
	"github.com/Orurh/courier-dispatch/internal/ports/dispatchtx"
)

// UpdateStatus moves an assignment owned by driverID (a courier user id) to
// status and mirrors the order status in the same transaction. Repeating the
// current status is a no-op. Declines go through Decline.
func (s *Service) UpdateStatus(ctx context.Context, assignmentID, driverID int64, status domain.AssignmentStatus) (*domain.Assignment, error) {
	if !status.Valid() {
		return nil, ErrInvalidStatus
	}
	if status == domain.AssignmentDeclined {
		return nil, ErrInvalidTransition
	}
	return s.advance(ctx, "dispatch.UpdateStatus", assignmentID, driverID, status)
}

// AcceptAssignment confirms a manually assigned delivery.
func (s *Service) AcceptAssignment(ctx context.Context, assignmentID, driverID int64) (*domain.Assignment, error) {
	return s.advance(ctx, "dispatch.AcceptAssignment", assignmentID, driverID, domain.AssignmentAccepted)
}

func (s *Service) advance(ctx context.Context, op string, assignmentID, driverID int64, status domain.AssignmentStatus) (_ *domain.Assignment, err error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	ctx, span := s.startSpan(ctx, op,
		attribute.Int64("assignment.id", assignmentID),
		attribute.Int64("driver.id", driverID),
		attribute.String("status", string(status)),
	)
	defer func() { endSpan(span, err) }()

	var (
		result    *domain.Assignment
		outbox    []notify.Notification
		unchanged bool
		from      domain.AssignmentStatus
	)
	now := s.now()

	err = s.store.WithTx(ctx, func(tx dispatchtx.Repository) error {
		a, err := tx.GetAssignmentForUpdate(ctx, assignmentID)
		if err != nil {
			return fmt.Errorf("get assignment: %w", err)
		}
		if a == nil {
			return ErrAssignmentNotFound
		}
		if a.CourierUserID != driverID {
			return ErrAssignmentNotOwned
		}
		result = a
		if a.Status == status {
			unchanged = true
			return nil
		}
		if !domain.CanTransition(a.Status, status) {
			return ErrInvalidTransition
		}

		from = a.Status
		a.Status = status
		a.UpdatedAt = now
		if status == domain.AssignmentAccepted && a.AcceptedAt == nil {
			accepted := now
			a.AcceptedAt = &accepted
		}
		if err := tx.UpdateAssignment(ctx, a); err != nil {
			return fmt.Errorf("update assignment: %w", err)
		}
		if status == domain.AssignmentAccepted {
			if err := tx.ResetRedispatch(ctx, a.OrderID); err != nil {
				return fmt.Errorf("reset redispatch: %w", err)
			}
		}

		if orderStatus, ok := domain.OrderStatusFor(status); ok {
			if err := tx.UpdateOrderStatus(ctx, a.OrderID, orderStatus); err != nil {
				return fmt.Errorf("update order status: %w", err)
			}
		}

		order, err := tx.GetOrder(ctx, a.OrderID)
		if err != nil {
			return fmt.Errorf("get order: %w", err)
		}
		if order != nil {
			outbox = orderUpdate(driverID, order, a, now)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if unchanged {
		return result, nil
	}

	s.logger.Info("assignment status changed",
		logx.String("event", "assignment_status_changed"),
		logx.Int64("assignment_id", result.ID),
		logx.String("order_id", result.OrderID),
		logx.String("from", string(from)),
		logx.String("to", string(status)),
	)
	s.deliver(ctx, outbox)
	return result, nil
}

// Decline releases an assigned or accepted delivery and redispatches the
// order. Redispatch problems are logged; the declined assignment is still
// returned.
func (s *Service) Decline(ctx context.Context, assignmentID int64) (_ *domain.Assignment, err error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	ctx, span := s.startSpan(ctx, "dispatch.Decline", attribute.Int64("assignment.id", assignmentID))
	defer func() { endSpan(span, err) }()

	var declined *domain.Assignment
	now := s.now()

	err = s.store.WithTx(ctx, func(tx dispatchtx.Repository) error {
		a, err := tx.GetAssignmentForUpdate(ctx, assignmentID)
		if err != nil {
			return fmt.Errorf("get assignment: %w", err)
		}
		if a == nil {
			return ErrAssignmentNotFound
		}
		if !domain.CanTransition(a.Status, domain.AssignmentDeclined) {
			return ErrInvalidTransition
		}

		a.Status = domain.AssignmentDeclined
		a.Attempts++
		a.UpdatedAt = now
		if err := tx.UpdateAssignment(ctx, a); err != nil {
			return fmt.Errorf("update assignment: %w", err)
		}
		declined = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("assignment declined",
		logx.String("event", "assignment_declined"),
		logx.Int64("assignment_id", declined.ID),
		logx.String("order_id", declined.OrderID),
		logx.Int("attempts", declined.Attempts),
	)
	s.redispatch(ctx, declined.OrderID, "decline")
	return declined, nil
}
