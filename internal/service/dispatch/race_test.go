package dispatch_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Orurh/courier-dispatch/internal/apperr"
	"github.com/Orurh/courier-dispatch/internal/domain"
	"github.com/Orurh/courier-dispatch/internal/notify"
	"github.com/Orurh/courier-dispatch/internal/ports/dispatchtx"
	"github.com/Orurh/courier-dispatch/internal/service/dispatch"
)

func broadcastTo(t *testing.T, f *fixture, orderID string, n int) *domain.Broadcast {
	t.Helper()
	for i := int64(1); i <= int64(n); i++ {
		f.store.PutCourier(courier(i, float64(i)))
	}
	f.store.PutOrder(order(orderID))

	res, err := f.svc.AssignOrder(context.Background(), orderID, nil)
	require.NoError(t, err)
	f.notifier.reset()
	return res.Broadcast
}

func TestAcceptBroadcast_ExactlyOneWinner(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t, dispatch.DefaultPolicy(), nil)
	b := broadcastTo(t, f, "o-1", 5)
	require.Len(t, b.DriverIDs, 5)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []int64
		losses  int
		start   = make(chan struct{})
	)
	for _, id := range b.DriverIDs {
		wg.Add(1)
		go func(driverID int64) {
			defer wg.Done()
			<-start
			a, err := f.svc.AcceptBroadcast(ctx, b.ID, driverID)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				assert.Equal(t, domain.AssignmentAccepted, a.Status)
				winners = append(winners, driverID)
			case errors.Is(err, dispatch.ErrBroadcastAlreadyResolved):
				losses++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(id)
	}
	close(start)
	wg.Wait()

	require.Len(t, winners, 1)
	require.Equal(t, 4, losses)

	bs := f.store.Broadcasts("o-1")
	require.Len(t, bs, 1)
	require.Equal(t, domain.BroadcastAccepted, bs[0].Status)
	require.Equal(t, winners[0], *bs[0].AcceptedDriverID)

	as := f.store.Assignments("o-1")
	require.Len(t, as, 1)
	require.Equal(t, winners[0], as[0].CourierUserID)
}

func TestAcceptBroadcast_Success(t *testing.T) {
	t.Parallel()

	f := newFixture(t, dispatch.DefaultPolicy(), nil)
	b := broadcastTo(t, f, "o-1", 3)

	a, err := f.svc.AcceptBroadcast(context.Background(), b.ID, 102)
	require.NoError(t, err)
	require.Equal(t, "o-1", a.OrderID)
	require.Equal(t, int64(2), a.CourierID)
	require.Equal(t, domain.AssignmentAccepted, a.Status)
	require.Equal(t, 1, a.Attempts)
	require.NotNil(t, a.AcceptedAt)
	require.Equal(t, t0, *a.AcceptedAt)

	expired := f.notifier.byEvent(notify.EventDeliveryExpired)
	require.Len(t, expired, 2)
	targets := []int64{expired[0].TargetID, expired[1].TargetID}
	require.ElementsMatch(t, []int64{101, 103}, targets)

	won := f.notifier.byEvent(notify.EventDeliveryAccepted)
	require.Len(t, won, 1)
	require.Equal(t, int64(102), won[0].TargetID)
	require.Equal(t, a.ID, won[0].Metadata["assignment_id"])

	updates := f.notifier.byEvent(notify.EventOrderUpdate)
	require.Len(t, updates, 2)
}

func TestAcceptBroadcast_AfterExpiryWindowStillPending(t *testing.T) {
	t.Parallel()

	f := newFixture(t, dispatch.DefaultPolicy(), nil)
	b := broadcastTo(t, f, "o-1", 1)
	f.clock.Advance(45 * time.Second)

	_, err := f.svc.AcceptBroadcast(context.Background(), b.ID, 101)
	require.NoError(t, err)
}

func TestAcceptBroadcast_Rejections(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t, dispatch.DefaultPolicy(), nil)
	b := broadcastTo(t, f, "o-1", 2)

	var ghost int64
	require.NoError(t, f.store.WithTx(ctx, func(tx dispatchtx.Repository) error {
		g := &domain.Broadcast{OrderID: "o-1", DriverIDs: []int64{999}, Status: domain.BroadcastPending, ExpiresAt: t0.Add(time.Minute)}
		if err := tx.InsertBroadcast(ctx, g); err != nil {
			return err
		}
		ghost = g.ID
		return nil
	}))

	_, err := f.svc.AcceptBroadcast(ctx, 12345, 101)
	require.ErrorIs(t, err, dispatch.ErrBroadcastNotFound)
	require.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = f.svc.AcceptBroadcast(ctx, b.ID, 555)
	require.ErrorIs(t, err, dispatch.ErrCourierNotOffered)
	require.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = f.svc.AcceptBroadcast(ctx, ghost, 999)
	require.ErrorIs(t, err, dispatch.ErrCourierProfileMissing)

	require.Empty(t, f.store.Assignments("o-1"))
}

func TestAcceptBroadcast_WinnerOverStackIsRejected(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t, dispatch.DefaultPolicy(), nil)
	b := broadcastTo(t, f, "o-1", 2)
	f.load(t, 1, 3)

	_, err := f.svc.AcceptBroadcast(ctx, b.ID, 101)
	require.ErrorIs(t, err, dispatch.ErrCourierUnavailableOrOverStack)

	_, err = f.svc.AcceptBroadcast(ctx, b.ID, 102)
	require.NoError(t, err)
}

func TestAcceptBroadcast_SecondAcceptLoses(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t, dispatch.DefaultPolicy(), nil)
	b := broadcastTo(t, f, "o-1", 2)

	_, err := f.svc.AcceptBroadcast(ctx, b.ID, 101)
	require.NoError(t, err)
	_, err = f.svc.AcceptBroadcast(ctx, b.ID, 102)
	require.ErrorIs(t, err, dispatch.ErrBroadcastAlreadyResolved)
	_, err = f.svc.AcceptBroadcast(ctx, b.ID, 101)
	require.ErrorIs(t, err, dispatch.ErrBroadcastAlreadyResolved)
}
