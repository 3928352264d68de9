// Package memory is an in-process dispatch store. Transactions are serialized
// behind one mutex and roll back by restoring a snapshot, which gives the same
// linearizable broadcast acceptance as the Postgres conditional update.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Orurh/courier-dispatch/internal/domain"
	"github.com/Orurh/courier-dispatch/internal/notify"
	"github.com/Orurh/courier-dispatch/internal/ports/dispatchtx"
)

var (
	_ dispatchtx.Store  = (*Store)(nil)
	_ notify.AuditStore = (*Store)(nil)
)

type state struct {
	couriers      map[int64]domain.Courier
	orders        map[string]domain.Order
	assignments   map[int64]domain.Assignment
	broadcasts    map[int64]domain.Broadcast
	sessions      map[string]domain.DispatchSession
	notifications []notify.Notification
	nextAssign    int64
	nextBroadcast int64
}

func newState() state {
	return state{
		couriers:    make(map[int64]domain.Courier),
		orders:      make(map[string]domain.Order),
		assignments: make(map[int64]domain.Assignment),
		broadcasts:  make(map[int64]domain.Broadcast),
		sessions:    make(map[string]domain.DispatchSession),
	}
}

func (s state) clone() state {
	c := state{
		couriers:      make(map[int64]domain.Courier, len(s.couriers)),
		orders:        make(map[string]domain.Order, len(s.orders)),
		assignments:   make(map[int64]domain.Assignment, len(s.assignments)),
		broadcasts:    make(map[int64]domain.Broadcast, len(s.broadcasts)),
		sessions:      make(map[string]domain.DispatchSession, len(s.sessions)),
		notifications: append([]notify.Notification(nil), s.notifications...),
		nextAssign:    s.nextAssign,
		nextBroadcast: s.nextBroadcast,
	}
	for k, v := range s.couriers {
		c.couriers[k] = v
	}
	for k, v := range s.orders {
		c.orders[k] = v
	}
	for k, v := range s.assignments {
		c.assignments[k] = v
	}
	for k, v := range s.broadcasts {
		v.DriverIDs = append([]int64(nil), v.DriverIDs...)
		c.broadcasts[k] = v
	}
	for k, v := range s.sessions {
		c.sessions[k] = v
	}
	return c
}

// Store keeps every table in memory.
type Store struct {
	mu  sync.Mutex
	st  state
	now func() time.Time
}

// New returns an empty Store.
func New() *Store {
	return &Store{st: newState(), now: func() time.Time { return time.Now().UTC() }}
}

// PutCourier inserts or replaces a courier profile.
func (s *Store) PutCourier(c domain.Courier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.couriers[c.ID] = c
}

// PutOrder inserts or replaces an order.
func (s *Store) PutOrder(o domain.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.orders[o.ID] = o
}

// Order returns a copy of a stored order.
func (s *Store) Order(id string) (domain.Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.st.orders[id]
	return o, ok
}

// Broadcasts returns every broadcast of an order in creation order.
func (s *Store) Broadcasts(orderID string) []domain.Broadcast {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Broadcast
	for _, b := range s.st.broadcasts {
		if b.OrderID == orderID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Assignments returns every assignment of an order in creation order.
func (s *Store) Assignments(orderID string) []domain.Assignment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.filterAssignments(func(a domain.Assignment) bool { return a.OrderID == orderID }, false)
}

// Notifications returns the audit trail.
func (s *Store) Notifications() []notify.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]notify.Notification(nil), s.st.notifications...)
}

// WithTx runs fn with exclusive access; an error or panic restores the previous state.
func (s *Store) WithTx(_ context.Context, fn func(tx dispatchtx.Repository) error) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	defer func() {
		if p := recover(); p != nil {
			s.st = snapshot
			panic(p)
		}
	}()

	if err := fn(&tx{st: &s.st, now: s.now}); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

// InsertNotification appends to the audit trail.
func (s *Store) InsertNotification(_ context.Context, n notify.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.notifications = append(s.st.notifications, n)
	return nil
}

// ActiveAssignments returns the stacking-status assignments of a courier user.
func (s *Store) ActiveAssignments(_ context.Context, userID int64) ([]domain.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.filterAssignments(func(a domain.Assignment) bool {
		return a.CourierUserID == userID && a.Status.Stacking()
	}, false), nil
}

// GetAssignment returns one assignment or nil.
func (s *Store) GetAssignment(_ context.Context, id int64) (*domain.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.st.assignments[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

// DriverHistory returns every assignment of a courier user, newest first.
func (s *Store) DriverHistory(_ context.Context, userID int64) ([]domain.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.filterAssignments(func(a domain.Assignment) bool { return a.CourierUserID == userID }, true), nil
}

// CustomerHistory returns every assignment of the customer's orders, newest first.
func (s *Store) CustomerHistory(_ context.Context, customerID int64) ([]domain.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.filterAssignments(func(a domain.Assignment) bool {
		o, ok := s.st.orders[a.OrderID]
		return ok && o.CustomerID == customerID
	}, true), nil
}

// DriverAnalytics counts delivered and failed assignments of a courier user.
func (s *Store) DriverAnalytics(_ context.Context, userID int64) (domain.DriverAnalytics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out domain.DriverAnalytics
	for _, a := range s.st.assignments {
		if a.CourierUserID != userID {
			continue
		}
		switch a.Status {
		case domain.AssignmentDelivered:
			out.Completed++
		case domain.AssignmentFailed, domain.AssignmentCancelled, domain.AssignmentReturned:
			out.Failed++
		}
	}
	return out, nil
}

// ExpirePending moves lapsed pending broadcasts to expired.
func (s *Store) ExpirePending(_ context.Context, now time.Time, limit int) ([]domain.ExpiredBroadcast, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []domain.Broadcast
	for _, b := range s.st.broadcasts {
		if b.Status == domain.BroadcastPending && b.ExpiresAt.Before(now) {
			due = append(due, b)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ExpiresAt.Before(due[j].ExpiresAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	out := make([]domain.ExpiredBroadcast, 0, len(due))
	for _, b := range due {
		b.Status = domain.BroadcastExpired
		b.Version++
		s.st.broadcasts[b.ID] = b
		out = append(out, domain.ExpiredBroadcast{ID: b.ID, OrderID: b.OrderID})
	}
	return out, nil
}

func (s *state) filterAssignments(keep func(domain.Assignment) bool, newestFirst bool) []domain.Assignment {
	out := make([]domain.Assignment, 0)
	for _, a := range s.assignments {
		if keep(a) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if newestFirst {
			return out[i].ID > out[j].ID
		}
		return out[i].ID < out[j].ID
	})
	return out
}
