package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Orurh/courier-dispatch/internal/domain"
	"github.com/Orurh/courier-dispatch/internal/ports/dispatchtx"
	"github.com/Orurh/courier-dispatch/internal/repository/memory"
)

func seeded(t *testing.T) *memory.Store {
	t.Helper()
	s := memory.New()
	s.PutCourier(domain.Courier{ID: 1, UserID: 101, Online: true, Status: domain.CourierActive, Verified: true})
	s.PutOrder(domain.Order{ID: "o-1", CustomerID: 7})
	return s
}

func TestWithTx_ErrorRestoresSnapshot(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := seeded(t)
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(tx dispatchtx.Repository) error {
		require.NoError(t, tx.InsertAssignment(ctx, &domain.Assignment{OrderID: "o-1", CourierID: 1, Status: domain.AssignmentAssigned}))
		require.NoError(t, tx.UpdateOrderStatus(ctx, "o-1", domain.OrderCompleted))
		return boom
	})
	require.ErrorIs(t, err, boom)

	require.Empty(t, s.Assignments("o-1"))
	o, _ := s.Order("o-1")
	require.Empty(t, o.Status)
}

func TestWithTx_PanicRestoresSnapshot(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := seeded(t)

	require.Panics(t, func() {
		_ = s.WithTx(ctx, func(tx dispatchtx.Repository) error {
			_ = tx.UpdateOrderStatus(ctx, "o-1", domain.OrderCompleted)
			panic("boom")
		})
	})
	o, _ := s.Order("o-1")
	require.Empty(t, o.Status)
}

func TestResolveBroadcast_OnlyOnce(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := seeded(t)

	var id int64
	require.NoError(t, s.WithTx(ctx, func(tx dispatchtx.Repository) error {
		b := &domain.Broadcast{OrderID: "o-1", DriverIDs: []int64{101, 102}, Status: domain.BroadcastPending, ExpiresAt: time.Now().Add(time.Minute)}
		if err := tx.InsertBroadcast(ctx, b); err != nil {
			return err
		}
		id = b.ID
		return nil
	}))

	require.NoError(t, s.WithTx(ctx, func(tx dispatchtx.Repository) error {
		ok, err := tx.ResolveBroadcast(ctx, id, 101)
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = tx.ResolveBroadcast(ctx, id, 102)
		require.NoError(t, err)
		require.False(t, ok)
		return nil
	}))

	bs := s.Broadcasts("o-1")
	require.Len(t, bs, 1)
	require.Equal(t, domain.BroadcastAccepted, bs[0].Status)
	require.Equal(t, int64(101), *bs[0].AcceptedDriverID)
	require.Equal(t, int64(1), bs[0].Version)
}

func TestInsertAssignment_OneActivePerOrder(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := seeded(t)

	err := s.WithTx(ctx, func(tx dispatchtx.Repository) error {
		require.NoError(t, tx.InsertAssignment(ctx, &domain.Assignment{OrderID: "o-1", CourierID: 1, Status: domain.AssignmentAccepted}))
		return tx.InsertAssignment(ctx, &domain.Assignment{OrderID: "o-1", CourierID: 1, Status: domain.AssignmentAssigned})
	})
	require.ErrorIs(t, err, dispatchtx.ErrActiveAssignmentExists)
}

func TestBumpRedispatch_Ceiling(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := seeded(t)

	var got []domain.DispatchSession
	for i := 0; i < 3; i++ {
		require.NoError(t, s.WithTx(ctx, func(tx dispatchtx.Repository) error {
			sess, err := tx.BumpRedispatch(ctx, "o-1", 2)
			got = append(got, sess)
			return err
		}))
	}
	require.False(t, got[0].Exhausted)
	require.False(t, got[1].Exhausted)
	require.Equal(t, 2, got[1].Redispatches)
	require.True(t, got[2].Exhausted)
}

func TestResetRedispatch(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := seeded(t)

	bump := func() (sess domain.DispatchSession) {
		require.NoError(t, s.WithTx(ctx, func(tx dispatchtx.Repository) error {
			var err error
			sess, err = tx.BumpRedispatch(ctx, "o-1", 1)
			return err
		}))
		return sess
	}
	bump()
	require.True(t, bump().Exhausted)

	require.NoError(t, s.WithTx(ctx, func(tx dispatchtx.Repository) error {
		return tx.ResetRedispatch(ctx, "o-1")
	}))
	require.Equal(t, domain.DispatchSession{OrderID: "o-1", Redispatches: 1}, bump())
}

func TestSupersedeBroadcasts_ReturnsWithdrawn(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := seeded(t)

	require.NoError(t, s.WithTx(ctx, func(tx dispatchtx.Repository) error {
		for _, ids := range [][]int64{{101, 102}, {103}} {
			b := &domain.Broadcast{OrderID: "o-1", DriverIDs: ids, Status: domain.BroadcastPending}
			if err := tx.InsertBroadcast(ctx, b); err != nil {
				return err
			}
		}
		got, err := tx.SupersedeBroadcasts(ctx, "o-1")
		require.NoError(t, err)
		require.Len(t, got, 2)
		require.Equal(t, []int64{101, 102}, got[0].DriverIDs)
		require.Equal(t, domain.BroadcastPending, got[0].Status)
		require.Less(t, got[0].ID, got[1].ID)
		return nil
	}))
	for _, b := range s.Broadcasts("o-1") {
		require.Equal(t, domain.BroadcastExpired, b.Status)
	}
}

func TestExpirePending_OnlyLapsed(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := seeded(t)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.WithTx(ctx, func(tx dispatchtx.Repository) error {
		_ = tx.InsertBroadcast(ctx, &domain.Broadcast{OrderID: "o-1", Status: domain.BroadcastPending, ExpiresAt: now.Add(-time.Second)})
		_ = tx.InsertBroadcast(ctx, &domain.Broadcast{OrderID: "o-1", Status: domain.BroadcastPending, ExpiresAt: now.Add(time.Second)})
		return nil
	}))

	expired, err := s.ExpirePending(ctx, now, 10)
	require.NoError(t, err)
	require.Equal(t, []domain.ExpiredBroadcast{{ID: 1, OrderID: "o-1"}}, expired)

	again, err := s.ExpirePending(ctx, now, 10)
	require.NoError(t, err)
	require.Empty(t, again)
}
