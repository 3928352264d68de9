package dispatch_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Orurh/courier-dispatch/internal/domain"
	"github.com/Orurh/courier-dispatch/internal/notify"
	"github.com/Orurh/courier-dispatch/internal/service/dispatch"
	testlog "github.com/Orurh/courier-dispatch/internal/testutil"
)

func acceptedAssignment(t *testing.T, f *fixture) *domain.Assignment {
	t.Helper()
	b := broadcastTo(t, f, "o-1", 1)
	a, err := f.svc.AcceptBroadcast(context.Background(), b.ID, 101)
	require.NoError(t, err)
	f.notifier.reset()
	return a
}

func orderStatus(t *testing.T, f *fixture, id string) domain.OrderStatus {
	t.Helper()
	o, ok := f.store.Order(id)
	require.True(t, ok)
	return o.Status
}

func TestUpdateStatus_MirrorsOrderStatus(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t, dispatch.DefaultPolicy(), nil)
	a := acceptedAssignment(t, f)

	got, err := f.svc.UpdateStatus(ctx, a.ID, 101, domain.AssignmentPickedUp)
	require.NoError(t, err)
	require.Equal(t, domain.AssignmentPickedUp, got.Status)
	require.Equal(t, domain.OrderOutForDelivery, orderStatus(t, f, "o-1"))

	updates := f.notifier.byEvent(notify.EventOrderUpdate)
	require.Len(t, updates, 2)
	require.ElementsMatch(t, []int64{customerUserID, vendorUserID}, []int64{updates[0].TargetID, updates[1].TargetID})
	require.Equal(t, "PICKED_UP", updates[0].Metadata["status"])

	_, err = f.svc.UpdateStatus(ctx, a.ID, 101, domain.AssignmentEnRoute)
	require.NoError(t, err)
	require.Equal(t, domain.OrderOutForDelivery, orderStatus(t, f, "o-1"))

	_, err = f.svc.UpdateStatus(ctx, a.ID, 101, domain.AssignmentDelivered)
	require.NoError(t, err)
	require.Equal(t, domain.OrderCompleted, orderStatus(t, f, "o-1"))

	stats, err := f.svc.DriverAnalytics(ctx, 101)
	require.NoError(t, err)
	require.Equal(t, domain.DriverAnalytics{Completed: 1}, stats)
}

func TestUpdateStatus_RepeatedDeliveredIsNoop(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t, dispatch.DefaultPolicy(), nil)
	a := acceptedAssignment(t, f)

	_, err := f.svc.UpdateStatus(ctx, a.ID, 101, domain.AssignmentPickedUp)
	require.NoError(t, err)
	_, err = f.svc.UpdateStatus(ctx, a.ID, 101, domain.AssignmentDelivered)
	require.NoError(t, err)
	before := len(f.notifier.byEvent(notify.EventOrderUpdate))

	for i := 0; i < 3; i++ {
		got, err := f.svc.UpdateStatus(ctx, a.ID, 101, domain.AssignmentDelivered)
		require.NoError(t, err)
		require.Equal(t, domain.AssignmentDelivered, got.Status)
	}
	require.Equal(t, domain.OrderCompleted, orderStatus(t, f, "o-1"))
	require.Len(t, f.notifier.byEvent(notify.EventOrderUpdate), before)
}

func TestUpdateStatus_FailureMarksOrderFailed(t *testing.T) {
	t.Parallel()

	f := newFixture(t, dispatch.DefaultPolicy(), nil)
	a := acceptedAssignment(t, f)

	_, err := f.svc.UpdateStatus(context.Background(), a.ID, 101, domain.AssignmentReturned)
	require.NoError(t, err)
	require.Equal(t, domain.OrderFailedDelivery, orderStatus(t, f, "o-1"))
}

func TestUpdateStatus_Rejections(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t, dispatch.DefaultPolicy(), nil)
	a := acceptedAssignment(t, f)

	tests := []struct {
		name     string
		id       int64
		driverID int64
		status   domain.AssignmentStatus
		wantErr  error
	}{
		{"unknown status", a.ID, 101, domain.AssignmentStatus("FLYING"), dispatch.ErrInvalidStatus},
		{"decline through update", a.ID, 101, domain.AssignmentDeclined, dispatch.ErrInvalidTransition},
		{"missing assignment", 999, 101, domain.AssignmentPickedUp, dispatch.ErrAssignmentNotFound},
		{"other courier", a.ID, 202, domain.AssignmentPickedUp, dispatch.ErrAssignmentNotOwned},
		{"skipping pickup", a.ID, 101, domain.AssignmentDelivered, dispatch.ErrInvalidTransition},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.UpdateStatus(ctx, tt.id, tt.driverID, tt.status)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
	require.Empty(t, orderStatus(t, f, "o-1"))
}

func TestAcceptAssignment(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t, dispatch.DefaultPolicy(), nil)
	f.store.PutCourier(courier(1, 1))
	f.store.PutOrder(order("o-1"))
	res, err := f.svc.AssignOrder(ctx, "o-1", ptr(int64(101)))
	require.NoError(t, err)

	f.clock.Advance(5 * time.Second)
	a, err := f.svc.AcceptAssignment(ctx, res.Assignment.ID, 101)
	require.NoError(t, err)
	require.Equal(t, domain.AssignmentAccepted, a.Status)
	require.Equal(t, t0.Add(5*time.Second), *a.AcceptedAt)

	f.clock.Advance(5 * time.Second)
	again, err := f.svc.AcceptAssignment(ctx, res.Assignment.ID, 101)
	require.NoError(t, err)
	require.Equal(t, t0.Add(5*time.Second), *again.AcceptedAt)

	_, err = f.svc.AcceptAssignment(ctx, res.Assignment.ID, 102)
	require.ErrorIs(t, err, dispatch.ErrAssignmentNotOwned)
}

func TestDecline_RedispatchesOrder(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t, dispatch.DefaultPolicy(), nil)
	f.store.PutCourier(courier(1, 1))
	f.store.PutCourier(courier(2, 2))
	f.store.PutOrder(order("o-1"))
	res, err := f.svc.AssignOrder(ctx, "o-1", ptr(int64(101)))
	require.NoError(t, err)

	declined, err := f.svc.Decline(ctx, res.Assignment.ID)
	require.NoError(t, err)
	require.Equal(t, domain.AssignmentDeclined, declined.Status)
	require.Equal(t, 2, declined.Attempts)

	bs := f.store.Broadcasts("o-1")
	require.Len(t, bs, 1)
	require.Equal(t, domain.BroadcastPending, bs[0].Status)
	require.Equal(t, []int64{101, 102}, bs[0].DriverIDs)

	as := f.store.Assignments("o-1")
	require.Len(t, as, 1)
	require.Equal(t, domain.AssignmentDeclined, as[0].Status)

	a, err := f.svc.AcceptBroadcast(ctx, bs[0].ID, 102)
	require.NoError(t, err)
	require.Len(t, f.store.Assignments("o-1"), 2)
	require.Equal(t, int64(102), a.CourierUserID)
}

func TestDecline_NoDriversIsLogged(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	rec := testlog.New()
	f := newFixture(t, dispatch.DefaultPolicy(), rec.Logger())
	f.store.PutCourier(courier(1, 1))
	f.store.PutOrder(order("o-1"))
	res, err := f.svc.AssignOrder(ctx, "o-1", ptr(int64(101)))
	require.NoError(t, err)

	gone := courier(1, 1)
	gone.Online = false
	f.store.PutCourier(gone)

	declined, err := f.svc.Decline(ctx, res.Assignment.ID)
	require.NoError(t, err)
	require.Equal(t, domain.AssignmentDeclined, declined.Status)
	require.Empty(t, f.store.Broadcasts("o-1"))

	e, ok := rec.Find("redispatch failed")
	require.True(t, ok)
	v, _ := e.Field("order_id")
	require.Equal(t, "o-1", v)
	v, _ = e.Field("reason")
	require.Equal(t, "decline", v)
}

func TestDecline_Rejections(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t, dispatch.DefaultPolicy(), nil)
	a := acceptedAssignment(t, f)

	_, err := f.svc.Decline(ctx, 999)
	require.ErrorIs(t, err, dispatch.ErrAssignmentNotFound)

	_, err = f.svc.UpdateStatus(ctx, a.ID, 101, domain.AssignmentPickedUp)
	require.NoError(t, err)
	_, err = f.svc.Decline(ctx, a.ID)
	require.ErrorIs(t, err, dispatch.ErrInvalidTransition)
}

func TestDecline_RedispatchCeiling(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	policy := dispatch.DefaultPolicy()
	policy.MaxRedispatchAttempts = 1
	rec := testlog.New()
	f := newFixture(t, policy, rec.Logger())
	f.store.PutCourier(courier(1, 1))
	f.store.PutOrder(order("o-1"))

	res, err := f.svc.AssignOrder(ctx, "o-1", ptr(int64(101)))
	require.NoError(t, err)
	_, err = f.svc.Decline(ctx, res.Assignment.ID)
	require.NoError(t, err)
	require.Len(t, f.store.Broadcasts("o-1"), 1)

	// nobody takes the redispatched offer, the second round hits the ceiling
	f.clock.Advance(policy.BroadcastWindow + time.Second)
	n, err := f.svc.ExpireOldBroadcasts(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Len(t, f.store.Broadcasts("o-1"), 1)

	exhausted := f.notifier.byEvent(notify.EventDispatchExhausted)
	require.Len(t, exhausted, 1)
	require.Equal(t, vendorUserID, exhausted[0].TargetID)
	_, ok := rec.Find("redispatch attempts exhausted")
	require.True(t, ok)

	_, err = f.svc.AssignOrder(ctx, "o-1", nil)
	require.NoError(t, err)
}

func TestDecline_CeilingResetsOnAccept(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	policy := dispatch.DefaultPolicy()
	policy.MaxRedispatchAttempts = 1
	f := newFixture(t, policy, nil)
	f.store.PutCourier(courier(1, 1))
	f.store.PutOrder(order("o-1"))

	res, err := f.svc.AssignOrder(ctx, "o-1", ptr(int64(101)))
	require.NoError(t, err)
	_, err = f.svc.Decline(ctx, res.Assignment.ID)
	require.NoError(t, err)

	bs := f.store.Broadcasts("o-1")
	require.Len(t, bs, 1)
	a, err := f.svc.AcceptBroadcast(ctx, bs[0].ID, 101)
	require.NoError(t, err)

	// the accept starts a fresh budget, so this decline is redispatched again
	_, err = f.svc.Decline(ctx, a.ID)
	require.NoError(t, err)
	bs = f.store.Broadcasts("o-1")
	require.Len(t, bs, 2)
	require.Equal(t, domain.BroadcastPending, bs[1].Status)
	require.Empty(t, f.notifier.byEvent(notify.EventDispatchExhausted))

	// accepting a manual assignment resets the budget too
	res, err = f.svc.AssignOrder(ctx, "o-1", ptr(int64(101)))
	require.NoError(t, err)
	_, err = f.svc.AcceptAssignment(ctx, res.Assignment.ID, 101)
	require.NoError(t, err)
	_, err = f.svc.Decline(ctx, res.Assignment.ID)
	require.NoError(t, err)
	require.Len(t, f.store.Broadcasts("o-1"), 3)
	require.Empty(t, f.notifier.byEvent(notify.EventDispatchExhausted))
}

func TestHistoryQueries(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t, dispatch.DefaultPolicy(), nil)
	a := acceptedAssignment(t, f)

	got, err := f.svc.Assignment(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, a.ID, got.ID)

	_, err = f.svc.Assignment(ctx, 404)
	require.ErrorIs(t, err, dispatch.ErrAssignmentNotFound)

	driver, err := f.svc.DriverHistory(ctx, 101)
	require.NoError(t, err)
	require.Len(t, driver, 1)

	customer, err := f.svc.CustomerHistory(ctx, customerUserID)
	require.NoError(t, err)
	require.Len(t, customer, 1)

	none, err := f.svc.CustomerHistory(ctx, 1)
	require.NoError(t, err)
	require.Empty(t, none)
}
