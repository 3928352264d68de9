package dispatchtx

import (
	"context"
	"errors"
	"time"

	"github.com/Orurh/courier-dispatch/internal/domain"
)

// ErrActiveAssignmentExists is returned by InsertAssignment when the order
// already has a live assignment.
var ErrActiveAssignmentExists = errors.New("order already has an active assignment")

// Repository is the set of store operations a dispatch transaction may use.
// Lookups return nil, nil when the row does not exist.
type Repository interface {
	GetOrder(ctx context.Context, orderID string) (*domain.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID string, status domain.OrderStatus) error

	ListDispatchableCouriers(ctx context.Context) ([]domain.Courier, error)
	// ActiveCounts returns the stacking-status assignment count per courier profile id.
	ActiveCounts(ctx context.Context, courierIDs []int64) (map[int64]int, error)
	// LockCourierByUserID locks the courier row for the rest of the transaction.
	LockCourierByUserID(ctx context.Context, userID int64) (*domain.Courier, error)

	OrderHasActiveAssignment(ctx context.Context, orderID string) (bool, error)
	InsertAssignment(ctx context.Context, a *domain.Assignment) error
	GetAssignmentForUpdate(ctx context.Context, id int64) (*domain.Assignment, error)
	UpdateAssignment(ctx context.Context, a *domain.Assignment) error

	InsertBroadcast(ctx context.Context, b *domain.Broadcast) error
	GetBroadcast(ctx context.Context, id int64) (*domain.Broadcast, error)
	// ResolveBroadcast moves a pending broadcast to accepted. It reports false
	// when the row was no longer pending.
	ResolveBroadcast(ctx context.Context, id, driverID int64) (bool, error)
	// SupersedeBroadcasts expires every pending broadcast of the order and
	// returns them as they were before the update, oldest first.
	SupersedeBroadcasts(ctx context.Context, orderID string) ([]domain.Broadcast, error)

	// BumpRedispatch increments the automatic redispatch counter of the order.
	BumpRedispatch(ctx context.Context, orderID string, max int) (domain.DispatchSession, error)
	// ResetRedispatch clears the counter and the exhausted mark of the order.
	ResetRedispatch(ctx context.Context, orderID string) error
}

// Runner is a transaction runner
type Runner interface {
	WithTx(ctx context.Context, fn func(tx Repository) error) error
}

// Reader serves the read-only queries outside transactions.
type Reader interface {
	ActiveAssignments(ctx context.Context, userID int64) ([]domain.Assignment, error)
	GetAssignment(ctx context.Context, id int64) (*domain.Assignment, error)
	DriverHistory(ctx context.Context, userID int64) ([]domain.Assignment, error)
	CustomerHistory(ctx context.Context, customerID int64) ([]domain.Assignment, error)
	DriverAnalytics(ctx context.Context, userID int64) (domain.DriverAnalytics, error)
}

// Sweeper expires lapsed broadcasts in one conditional statement.
type Sweeper interface {
	ExpirePending(ctx context.Context, now time.Time, limit int) ([]domain.ExpiredBroadcast, error)
}

// Store is everything the dispatch service needs from persistence.
type Store interface {
	Runner
	Reader
	Sweeper
}
