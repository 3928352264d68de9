//go:generate mockgen -source=contracts.go -destination=orders_mocks_test.go -package=orders_test

package orders

import (
	"context"

	"github.com/Orurh/courier-dispatch/internal/service/dispatch"
)

// DispatchPort abstracts the subset of dispatch operations
// needed by orders Processor when handling order events
type DispatchPort interface {
	AssignOrder(ctx context.Context, orderID string, driverID *int64) (dispatch.Result, error)
	CancelOffers(ctx context.Context, orderID string) (int, error)
}
