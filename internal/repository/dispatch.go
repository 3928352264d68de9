package repository

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Orurh/courier-dispatch/internal/domain"
	"github.com/Orurh/courier-dispatch/internal/geo"
	"github.com/Orurh/courier-dispatch/internal/ports/dispatchtx"
)

// DispatchRepo is the Postgres store of assignments and broadcasts.
type DispatchRepo struct {
	db *pgxpool.Pool
}

// NewDispatchRepo creates a new DispatchRepo.
func NewDispatchRepo(db *pgxpool.Pool) *DispatchRepo {
	return &DispatchRepo{db: db}
}

var _ dispatchtx.Store = (*DispatchRepo)(nil)

// maxTxAttempts bounds re-runs of a transaction aborted by a deadlock or a
// serialization failure.
const maxTxAttempts = 3

// WithTx runs fn in a transaction, re-running it when Postgres aborts the
// transaction with a retryable error. fn must not keep side effects outside
// the transaction between attempts.
func (r *DispatchRepo) WithTx(ctx context.Context, fn func(tx dispatchtx.Repository) error) error {
	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		if err = r.runTx(ctx, fn); err == nil || !IsRetryable(err) {
			return err
		}
		if ctx.Err() != nil {
			return err
		}
	}
	return fmt.Errorf("tx aborted after %d attempts: %w", maxTxAttempts, err)
}

func (r *DispatchRepo) runTx(ctx context.Context, fn func(tx dispatchtx.Repository) error) (err error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	// откатываем при панике
	defer func() {
		if p := recover(); p != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				panic(rbErr)
			}
			panic(p)
		}
	}()

	if err := fn(&TxRepo{tx: tx}); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("rollback tx: %w (original error: %s)", rbErr, err.Error())
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// TxRepo runs dispatch queries inside one transaction.
type TxRepo struct {
	tx pgx.Tx
}

// GetOrder returns the order with the vendor's default address coordinates.
func (r *TxRepo) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	var (
		o        domain.Order
		lat, lon *float64
	)
	err := r.tx.QueryRow(ctx, `
		SELECT o.id, o.vendor_id, v.user_id, o.customer_id, o.status, va.latitude, va.longitude
		FROM orders o
		JOIN vendors v ON v.id = o.vendor_id
		LEFT JOIN vendor_addresses va ON va.vendor_id = v.id AND va.is_default
		WHERE o.id = $1
	`, orderID).Scan(&o.ID, &o.VendorID, &o.VendorUserID, &o.CustomerID, &o.Status, &lat, &lon)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get order %q: %w", orderID, err)
	}
	o.VendorLocation = geo.NewPoint(lat, lon)
	return &o, nil
}

// UpdateOrderStatus writes the order status mirrored from an assignment.
func (r *TxRepo) UpdateOrderStatus(ctx context.Context, orderID string, status domain.OrderStatus) error {
	ct, err := r.tx.Exec(ctx, `
		UPDATE orders SET status = $2, updated_at = now() WHERE id = $1
	`, orderID, string(status))
	if err != nil {
		return fmt.Errorf("update order status %q: %w", orderID, err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("order %q not found", orderID)
	}
	return nil
}

const courierColumns = `c.id, c.user_id, c.name, c.latitude, c.longitude, c.is_online, c.status, u.is_verified`

func scanCourier(row pgx.Row) (domain.Courier, error) {
	var (
		c        domain.Courier
		lat, lon *float64
	)
	if err := row.Scan(&c.ID, &c.UserID, &c.Name, &lat, &lon, &c.Online, &c.Status, &c.Verified); err != nil {
		return domain.Courier{}, err
	}
	c.Location = geo.NewPoint(lat, lon)
	return c, nil
}

// ListDispatchableCouriers returns online, active and verified couriers.
func (r *TxRepo) ListDispatchableCouriers(ctx context.Context) ([]domain.Courier, error) {
	rows, err := r.tx.Query(ctx, `
		SELECT `+courierColumns+`
		FROM couriers c
		JOIN users u ON u.id = c.user_id
		WHERE c.is_online AND c.status = $1 AND u.is_verified
		ORDER BY c.id
	`, string(domain.CourierActive))
	if err != nil {
		return nil, fmt.Errorf("list couriers: %w", err)
	}
	defer rows.Close()

	var out []domain.Courier
	for rows.Next() {
		c, err := scanCourier(rows)
		if err != nil {
			return nil, fmt.Errorf("scan courier: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ActiveCounts returns stacking-status assignment counts keyed by courier id.
func (r *TxRepo) ActiveCounts(ctx context.Context, courierIDs []int64) (map[int64]int, error) {
	out := make(map[int64]int, len(courierIDs))
	if len(courierIDs) == 0 {
		return out, nil
	}
	rows, err := r.tx.Query(ctx, `
		SELECT courier_id, count(*)
		FROM delivery_assignments
		WHERE courier_id = ANY($1) AND status = ANY($2)
		GROUP BY courier_id
	`, courierIDs, statusStrings(domain.StackingStatuses))
	if err != nil {
		return nil, fmt.Errorf("count active assignments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id int64
			n  int
		)
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("scan active count: %w", err)
		}
		out[id] = n
	}
	return out, rows.Err()
}

// LockCourierByUserID returns the courier of a user and locks its row.
func (r *TxRepo) LockCourierByUserID(ctx context.Context, userID int64) (*domain.Courier, error) {
	c, err := scanCourier(r.tx.QueryRow(ctx, `
		SELECT `+courierColumns+`
		FROM couriers c
		JOIN users u ON u.id = c.user_id
		WHERE c.user_id = $1
		FOR UPDATE OF c
	`, userID))
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("lock courier of user %d: %w", userID, err)
	}
	return &c, nil
}

// OrderHasActiveAssignment reports whether the order already has a live assignment.
func (r *TxRepo) OrderHasActiveAssignment(ctx context.Context, orderID string) (bool, error) {
	var ok bool
	err := r.tx.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM delivery_assignments WHERE order_id = $1 AND status = ANY($2)
		)
	`, orderID, statusStrings(domain.OrderActiveStatuses)).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("check active assignment of %q: %w", orderID, err)
	}
	return ok, nil
}

// InsertAssignment stores a new assignment and fills its id and timestamps.
func (r *TxRepo) InsertAssignment(ctx context.Context, a *domain.Assignment) error {
	err := r.tx.QueryRow(ctx, `
		INSERT INTO delivery_assignments
			(order_id, courier_id, status, accepted_at, timeout_seconds, attempts, batch_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		RETURNING id, created_at, updated_at
	`, a.OrderID, a.CourierID, string(a.Status), a.AcceptedAt, a.TimeoutSeconds, a.Attempts,
		toPgUUID(a), a.CreatedAt,
	).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if violates(err, activeOrderIndex) {
			return fmt.Errorf("insert assignment for %q: %w", a.OrderID, dispatchtx.ErrActiveAssignmentExists)
		}
		return fmt.Errorf("insert assignment: %w", err)
	}
	return nil
}

// GetAssignmentForUpdate loads and locks an assignment row.
func (r *TxRepo) GetAssignmentForUpdate(ctx context.Context, id int64) (*domain.Assignment, error) {
	a, err := scanAssignment(r.tx.QueryRow(ctx, `
		SELECT `+assignmentColumns+`
		FROM delivery_assignments a
		JOIN couriers c ON c.id = a.courier_id
		WHERE a.id = $1
		FOR UPDATE OF a
	`, id))
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get assignment %d: %w", id, err)
	}
	return &a, nil
}

// UpdateAssignment writes the mutable fields of an assignment.
func (r *TxRepo) UpdateAssignment(ctx context.Context, a *domain.Assignment) error {
	err := r.tx.QueryRow(ctx, `
		UPDATE delivery_assignments
		SET status = $2, accepted_at = $3, attempts = $4, updated_at = $5
		WHERE id = $1
		RETURNING updated_at
	`, a.ID, string(a.Status), a.AcceptedAt, a.Attempts, a.UpdatedAt).Scan(&a.UpdatedAt)
	if err != nil {
		if IsNotFound(err) {
			return fmt.Errorf("assignment %d not found", a.ID)
		}
		return fmt.Errorf("update assignment %d: %w", a.ID, err)
	}
	return nil
}

// InsertBroadcast stores a pending broadcast and fills its id.
func (r *TxRepo) InsertBroadcast(ctx context.Context, b *domain.Broadcast) error {
	err := r.tx.QueryRow(ctx, `
		INSERT INTO delivery_broadcasts (order_id, driver_ids, status, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, version
	`, b.OrderID, b.DriverIDs, string(b.Status), b.ExpiresAt, b.CreatedAt).Scan(&b.ID, &b.Version)
	if err != nil {
		return fmt.Errorf("insert broadcast: %w", err)
	}
	return nil
}

// GetBroadcast loads a broadcast without locking it; ResolveBroadcast does the CAS.
func (r *TxRepo) GetBroadcast(ctx context.Context, id int64) (*domain.Broadcast, error) {
	var b domain.Broadcast
	err := r.tx.QueryRow(ctx, `
		SELECT id, order_id, driver_ids, status, expires_at, accepted_driver_id, version, created_at
		FROM delivery_broadcasts
		WHERE id = $1
	`, id).Scan(&b.ID, &b.OrderID, &b.DriverIDs, &b.Status, &b.ExpiresAt, &b.AcceptedDriverID, &b.Version, &b.CreatedAt)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get broadcast %d: %w", id, err)
	}
	return &b, nil
}

// ResolveBroadcast marks a still-pending broadcast accepted by driverID.
func (r *TxRepo) ResolveBroadcast(ctx context.Context, id, driverID int64) (bool, error) {
	ct, err := r.tx.Exec(ctx, `
		UPDATE delivery_broadcasts
		SET status = $3, accepted_driver_id = $2, version = version + 1
		WHERE id = $1 AND status = $4
	`, id, driverID, string(domain.BroadcastAccepted), string(domain.BroadcastPending))
	if err != nil {
		return false, fmt.Errorf("resolve broadcast %d: %w", id, err)
	}
	return ct.RowsAffected() == 1, nil
}

// SupersedeBroadcasts expires every pending broadcast of the order. The
// returned rows keep their pending status and version.
func (r *TxRepo) SupersedeBroadcasts(ctx context.Context, orderID string) ([]domain.Broadcast, error) {
	rows, err := r.tx.Query(ctx, `
		UPDATE delivery_broadcasts
		SET status = $2, version = version + 1
		WHERE order_id = $1 AND status = $3
		RETURNING id, order_id, driver_ids, $3::text, expires_at, accepted_driver_id, version - 1, created_at
	`, orderID, string(domain.BroadcastExpired), string(domain.BroadcastPending))
	if err != nil {
		return nil, fmt.Errorf("supersede broadcasts of %q: %w", orderID, err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Broadcast, error) {
		var b domain.Broadcast
		err := row.Scan(&b.ID, &b.OrderID, &b.DriverIDs, &b.Status, &b.ExpiresAt, &b.AcceptedDriverID, &b.Version, &b.CreatedAt)
		return b, err
	})
	if err != nil {
		return nil, fmt.Errorf("supersede broadcasts of %q: %w", orderID, err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// BumpRedispatch counts one automatic redispatch of orderID. With max > 0
// the session is marked exhausted instead once max rounds have run.
func (r *TxRepo) BumpRedispatch(ctx context.Context, orderID string, max int) (domain.DispatchSession, error) {
	var (
		s         domain.DispatchSession
		exhausted *time.Time
	)
	err := r.tx.QueryRow(ctx, `
		INSERT INTO dispatch_sessions (order_id) VALUES ($1)
		ON CONFLICT (order_id) DO UPDATE SET updated_at = now()
		RETURNING order_id, redispatches, exhausted_at
	`, orderID).Scan(&s.OrderID, &s.Redispatches, &exhausted)
	if err != nil {
		return s, fmt.Errorf("load dispatch session %q: %w", orderID, err)
	}
	if exhausted != nil {
		s.Exhausted = true
		return s, nil
	}

	if max > 0 && s.Redispatches >= max {
		if _, err := r.tx.Exec(ctx, `
			UPDATE dispatch_sessions SET exhausted_at = now() WHERE order_id = $1
		`, orderID); err != nil {
			return s, fmt.Errorf("exhaust dispatch session %q: %w", orderID, err)
		}
		s.Exhausted = true
		return s, nil
	}

	if err := r.tx.QueryRow(ctx, `
		UPDATE dispatch_sessions SET redispatches = redispatches + 1, updated_at = now()
		WHERE order_id = $1
		RETURNING redispatches
	`, orderID).Scan(&s.Redispatches); err != nil {
		return s, fmt.Errorf("bump dispatch session %q: %w", orderID, err)
	}
	return s, nil
}

// ResetRedispatch drops the dispatch session of the order, so the ceiling
// counts automatic rounds since the last accept.
func (r *TxRepo) ResetRedispatch(ctx context.Context, orderID string) error {
	if _, err := r.tx.Exec(ctx, `DELETE FROM dispatch_sessions WHERE order_id = $1`, orderID); err != nil {
		return fmt.Errorf("reset dispatch session %q: %w", orderID, err)
	}
	return nil
}

func statusStrings(in []domain.AssignmentStatus) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}

func toPgUUID(a *domain.Assignment) pgtype.UUID {
	if a.BatchID == nil {
		return pgtype.UUID{}
	}
	return pgtype.UUID{Bytes: *a.BatchID, Valid: true}
}
