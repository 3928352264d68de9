package dispatch_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Orurh/courier-dispatch/internal/domain"
	"github.com/Orurh/courier-dispatch/internal/geo"
	"github.com/Orurh/courier-dispatch/internal/logx"
	"github.com/Orurh/courier-dispatch/internal/notify"
	"github.com/Orurh/courier-dispatch/internal/ports/dispatchtx"
	"github.com/Orurh/courier-dispatch/internal/repository/memory"
	"github.com/Orurh/courier-dispatch/internal/service/dispatch"
)

var (
	vendorAt = geo.Point{Lat: 6.5244, Lon: 3.3792}
	t0       = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
)

const (
	vendorUserID   = int64(900)
	customerUserID = int64(800)
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recorder struct {
	mu  sync.Mutex
	got []notify.Notification
	err error
}

func (r *recorder) Notify(_ context.Context, n notify.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, n)
	return r.err
}

func (r *recorder) byEvent(e notify.Event) []notify.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []notify.Notification
	for _, n := range r.got {
		if n.Event == e {
			out = append(out, n)
		}
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = nil
}

// north returns a point km kilometers north of the vendor.
func north(km float64) *geo.Point {
	return &geo.Point{Lat: vendorAt.Lat + km/111.195, Lon: vendorAt.Lon}
}

// courier builds a dispatchable courier; the user id is 100 + id.
func courier(id int64, km float64) domain.Courier {
	return domain.Courier{
		ID:       id,
		UserID:   100 + id,
		Name:     "courier",
		Location: north(km),
		Online:   true,
		Status:   domain.CourierActive,
		Verified: true,
	}
}

func order(id string) domain.Order {
	loc := vendorAt
	return domain.Order{
		ID:             id,
		VendorID:       1,
		VendorUserID:   vendorUserID,
		CustomerID:     customerUserID,
		VendorLocation: &loc,
	}
}

type fixture struct {
	store    *memory.Store
	notifier *recorder
	clock    *clock
	svc      *dispatch.Service
}

func newFixture(t *testing.T, policy dispatch.Policy, logger logx.Logger) *fixture {
	t.Helper()
	if logger == nil {
		logger = logx.Nop()
	}
	f := &fixture{
		store:    memory.New(),
		notifier: &recorder{},
		clock:    &clock{now: t0},
	}
	f.svc = dispatch.NewService(f.store, f.notifier, nil, policy, logger, dispatch.WithClock(f.clock.Now))
	return f
}

// load gives courier id n active assignments on unrelated orders.
func (f *fixture) load(t *testing.T, courierID int64, n int) {
	t.Helper()
	require.NoError(t, f.store.WithTx(context.Background(), func(tx dispatchtx.Repository) error {
		for i := 0; i < n; i++ {
			a := &domain.Assignment{
				OrderID:   fmt.Sprintf("busy-%d-%d", courierID, i),
				CourierID: courierID,
				Status:    domain.AssignmentAccepted,
				Attempts:  1,
			}
			if err := tx.InsertAssignment(context.Background(), a); err != nil {
				return err
			}
		}
		return nil
	}))
}

func ptr[T any](v T) *T { return &v }
