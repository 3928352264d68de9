package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/Orurh/courier-dispatch/internal/domain"
)

const assignmentColumns = `a.id, a.order_id, a.courier_id, c.user_id, a.status, a.accepted_at,
	a.timeout_seconds, a.attempts, a.batch_id, a.created_at, a.updated_at`

func scanAssignment(row pgx.Row) (domain.Assignment, error) {
	var (
		a     domain.Assignment
		batch pgtype.UUID
	)
	err := row.Scan(&a.ID, &a.OrderID, &a.CourierID, &a.CourierUserID, &a.Status, &a.AcceptedAt,
		&a.TimeoutSeconds, &a.Attempts, &batch, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return domain.Assignment{}, err
	}
	if batch.Valid {
		id := uuid.UUID(batch.Bytes)
		a.BatchID = &id
	}
	return a, nil
}

func (r *DispatchRepo) listAssignments(ctx context.Context, what, where string, args ...any) ([]domain.Assignment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+assignmentColumns+`
		FROM delivery_assignments a
		JOIN couriers c ON c.id = a.courier_id
		`+where, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", what, err)
	}
	defer rows.Close()

	out := make([]domain.Assignment, 0)
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan: %w", what, err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", what, err)
	}
	return out, nil
}

// ActiveAssignments returns the stacking-status assignments of a courier user.
func (r *DispatchRepo) ActiveAssignments(ctx context.Context, userID int64) ([]domain.Assignment, error) {
	return r.listAssignments(ctx, "active assignments",
		`WHERE c.user_id = $1 AND a.status = ANY($2) ORDER BY a.created_at, a.id`,
		userID, statusStrings(domain.StackingStatuses))
}

// GetAssignment returns one assignment or nil.
func (r *DispatchRepo) GetAssignment(ctx context.Context, id int64) (*domain.Assignment, error) {
	a, err := scanAssignment(r.db.QueryRow(ctx, `
		SELECT `+assignmentColumns+`
		FROM delivery_assignments a
		JOIN couriers c ON c.id = a.courier_id
		WHERE a.id = $1
	`, id))
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get assignment %d: %w", id, err)
	}
	return &a, nil
}

// DriverHistory returns every assignment of a courier user, newest first.
func (r *DispatchRepo) DriverHistory(ctx context.Context, userID int64) ([]domain.Assignment, error) {
	return r.listAssignments(ctx, "driver history",
		`WHERE c.user_id = $1 ORDER BY a.created_at DESC, a.id DESC`, userID)
}

// CustomerHistory returns every assignment of the customer's orders, newest first.
func (r *DispatchRepo) CustomerHistory(ctx context.Context, customerID int64) ([]domain.Assignment, error) {
	return r.listAssignments(ctx, "customer history",
		`JOIN orders o ON o.id = a.order_id
		WHERE o.customer_id = $1 ORDER BY a.created_at DESC, a.id DESC`, customerID)
}

// DriverAnalytics counts delivered and failed assignments of a courier user.
func (r *DispatchRepo) DriverAnalytics(ctx context.Context, userID int64) (domain.DriverAnalytics, error) {
	var out domain.DriverAnalytics
	err := r.db.QueryRow(ctx, `
		SELECT
			count(*) FILTER (WHERE a.status = $2),
			count(*) FILTER (WHERE a.status = ANY($3))
		FROM delivery_assignments a
		JOIN couriers c ON c.id = a.courier_id
		WHERE c.user_id = $1
	`, userID, string(domain.AssignmentDelivered), []string{
		string(domain.AssignmentFailed), string(domain.AssignmentCancelled), string(domain.AssignmentReturned),
	}).Scan(&out.Completed, &out.Failed)
	if err != nil {
		return out, fmt.Errorf("driver analytics %d: %w", userID, err)
	}
	return out, nil
}

// ExpirePending moves lapsed pending broadcasts to expired in one statement
// and returns what it moved.
func (r *DispatchRepo) ExpirePending(ctx context.Context, now time.Time, limit int) ([]domain.ExpiredBroadcast, error) {
	rows, err := r.db.Query(ctx, `
		UPDATE delivery_broadcasts b
		SET status = $2, version = b.version + 1
		WHERE b.id IN (
			SELECT id FROM delivery_broadcasts
			WHERE status = $3 AND expires_at < $1
			ORDER BY expires_at
			LIMIT $4
			FOR UPDATE SKIP LOCKED
		) AND b.status = $3
		RETURNING b.id, b.order_id
	`, now, string(domain.BroadcastExpired), string(domain.BroadcastPending), limit)
	if err != nil {
		return nil, fmt.Errorf("expire broadcasts: %w", err)
	}
	defer rows.Close()

	var out []domain.ExpiredBroadcast
	for rows.Next() {
		var e domain.ExpiredBroadcast
		if err := rows.Scan(&e.ID, &e.OrderID); err != nil {
			return nil, fmt.Errorf("expire broadcasts: scan: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
