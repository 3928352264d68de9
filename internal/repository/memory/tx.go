package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Orurh/courier-dispatch/internal/domain"
	"github.com/Orurh/courier-dispatch/internal/ports/dispatchtx"
)

type tx struct {
	st  *state
	now func() time.Time
}

func (t *tx) GetOrder(_ context.Context, orderID string) (*domain.Order, error) {
	o, ok := t.st.orders[orderID]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

func (t *tx) UpdateOrderStatus(_ context.Context, orderID string, status domain.OrderStatus) error {
	o, ok := t.st.orders[orderID]
	if !ok {
		return fmt.Errorf("order %q not found", orderID)
	}
	o.Status = status
	t.st.orders[orderID] = o
	return nil
}

func (t *tx) ListDispatchableCouriers(context.Context) ([]domain.Courier, error) {
	var out []domain.Courier
	for _, c := range t.st.couriers {
		if c.Dispatchable() {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *tx) ActiveCounts(_ context.Context, courierIDs []int64) (map[int64]int, error) {
	want := make(map[int64]bool, len(courierIDs))
	for _, id := range courierIDs {
		want[id] = true
	}
	out := make(map[int64]int, len(courierIDs))
	for _, a := range t.st.assignments {
		if want[a.CourierID] && a.Status.Stacking() {
			out[a.CourierID]++
		}
	}
	return out, nil
}

func (t *tx) LockCourierByUserID(_ context.Context, userID int64) (*domain.Courier, error) {
	for _, c := range t.st.couriers {
		if c.UserID == userID {
			return &c, nil
		}
	}
	return nil, nil
}

func (t *tx) OrderHasActiveAssignment(_ context.Context, orderID string) (bool, error) {
	for _, a := range t.st.assignments {
		if a.OrderID == orderID && a.Status.OrderActive() {
			return true, nil
		}
	}
	return false, nil
}

func (t *tx) InsertAssignment(ctx context.Context, a *domain.Assignment) error {
	if active, _ := t.OrderHasActiveAssignment(ctx, a.OrderID); active {
		return fmt.Errorf("insert assignment for %q: %w", a.OrderID, dispatchtx.ErrActiveAssignmentExists)
	}
	c, ok := t.st.couriers[a.CourierID]
	if !ok {
		return fmt.Errorf("insert assignment: courier %d not found", a.CourierID)
	}
	t.st.nextAssign++
	a.ID = t.st.nextAssign
	a.CourierUserID = c.UserID
	if a.CreatedAt.IsZero() {
		a.CreatedAt = t.now()
	}
	a.UpdatedAt = a.CreatedAt
	t.st.assignments[a.ID] = *a
	return nil
}

func (t *tx) GetAssignmentForUpdate(_ context.Context, id int64) (*domain.Assignment, error) {
	a, ok := t.st.assignments[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (t *tx) UpdateAssignment(_ context.Context, a *domain.Assignment) error {
	cur, ok := t.st.assignments[a.ID]
	if !ok {
		return fmt.Errorf("assignment %d not found", a.ID)
	}
	cur.Status = a.Status
	cur.AcceptedAt = a.AcceptedAt
	cur.Attempts = a.Attempts
	cur.UpdatedAt = a.UpdatedAt
	t.st.assignments[a.ID] = cur
	return nil
}

func (t *tx) InsertBroadcast(_ context.Context, b *domain.Broadcast) error {
	t.st.nextBroadcast++
	b.ID = t.st.nextBroadcast
	b.Version = 0
	if b.CreatedAt.IsZero() {
		b.CreatedAt = t.now()
	}
	cp := *b
	cp.DriverIDs = append([]int64(nil), b.DriverIDs...)
	t.st.broadcasts[b.ID] = cp
	return nil
}

func (t *tx) GetBroadcast(_ context.Context, id int64) (*domain.Broadcast, error) {
	b, ok := t.st.broadcasts[id]
	if !ok {
		return nil, nil
	}
	b.DriverIDs = append([]int64(nil), b.DriverIDs...)
	return &b, nil
}

func (t *tx) ResolveBroadcast(_ context.Context, id, driverID int64) (bool, error) {
	b, ok := t.st.broadcasts[id]
	if !ok || b.Status != domain.BroadcastPending {
		return false, nil
	}
	b.Status = domain.BroadcastAccepted
	b.AcceptedDriverID = &driverID
	b.Version++
	t.st.broadcasts[id] = b
	return true, nil
}

func (t *tx) SupersedeBroadcasts(_ context.Context, orderID string) ([]domain.Broadcast, error) {
	var out []domain.Broadcast
	for id, b := range t.st.broadcasts {
		if b.OrderID != orderID || b.Status != domain.BroadcastPending {
			continue
		}
		prev := b
		prev.DriverIDs = append([]int64(nil), b.DriverIDs...)
		out = append(out, prev)

		b.Status = domain.BroadcastExpired
		b.Version++
		t.st.broadcasts[id] = b
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *tx) BumpRedispatch(_ context.Context, orderID string, max int) (domain.DispatchSession, error) {
	s := t.st.sessions[orderID]
	s.OrderID = orderID
	switch {
	case s.Exhausted:
	case max > 0 && s.Redispatches >= max:
		s.Exhausted = true
	default:
		s.Redispatches++
	}
	t.st.sessions[orderID] = s
	return s, nil
}

func (t *tx) ResetRedispatch(_ context.Context, orderID string) error {
	delete(t.st.sessions, orderID)
	return nil
}
