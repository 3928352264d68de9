package domain

import (
	"time"

	"github.com/google/uuid"
)

// AssignmentStatus is the delivery status of one assignment.
type AssignmentStatus string

// List of assignment statuses
const (
	AssignmentAssigned  AssignmentStatus = "ASSIGNED"
	AssignmentAccepted  AssignmentStatus = "ACCEPTED"
	AssignmentPickedUp  AssignmentStatus = "PICKED_UP"
	AssignmentEnRoute   AssignmentStatus = "EN_ROUTE"
	AssignmentDelivered AssignmentStatus = "DELIVERED"
	AssignmentDeclined  AssignmentStatus = "DECLINED"
	AssignmentCancelled AssignmentStatus = "CANCELLED"
	AssignmentFailed    AssignmentStatus = "FAILED"
	AssignmentReturned  AssignmentStatus = "RETURNED"
)

// StackingStatuses count against the courier's concurrent-job limit.
var StackingStatuses = []AssignmentStatus{
	AssignmentAssigned, AssignmentAccepted, AssignmentPickedUp,
}

// OrderActiveStatuses mark the single live assignment of an order.
var OrderActiveStatuses = []AssignmentStatus{
	AssignmentAssigned, AssignmentAccepted, AssignmentPickedUp, AssignmentEnRoute,
}

var allowedAssignmentStatuses = [...]AssignmentStatus{
	AssignmentAssigned, AssignmentAccepted, AssignmentPickedUp, AssignmentEnRoute,
	AssignmentDelivered, AssignmentDeclined, AssignmentCancelled, AssignmentFailed,
	AssignmentReturned,
}

// Valid checks if the AssignmentStatus is valid
func (s AssignmentStatus) Valid() bool {
	for _, v := range allowedAssignmentStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// Terminal reports whether the delivery attempt has finished. A declined
// assignment is not terminal for the order: it is superseded by a new one.
func (s AssignmentStatus) Terminal() bool {
	switch s {
	case AssignmentDelivered, AssignmentCancelled, AssignmentFailed, AssignmentReturned:
		return true
	}
	return false
}

// Stacking reports whether s counts toward the stacking limit.
func (s AssignmentStatus) Stacking() bool {
	return containsStatus(StackingStatuses, s)
}

// OrderActive reports whether s keeps the order bound to this assignment.
func (s AssignmentStatus) OrderActive() bool {
	return containsStatus(OrderActiveStatuses, s)
}

func containsStatus(set []AssignmentStatus, s AssignmentStatus) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

var transitions = map[AssignmentStatus][]AssignmentStatus{
	AssignmentAssigned: {
		AssignmentAccepted, AssignmentDeclined,
		AssignmentCancelled, AssignmentFailed, AssignmentReturned,
	},
	AssignmentAccepted: {
		AssignmentAccepted, AssignmentPickedUp, AssignmentDeclined,
		AssignmentCancelled, AssignmentFailed, AssignmentReturned,
	},
	AssignmentPickedUp: {
		AssignmentEnRoute, AssignmentDelivered,
		AssignmentCancelled, AssignmentFailed, AssignmentReturned,
	},
	AssignmentEnRoute: {
		AssignmentDelivered,
		AssignmentCancelled, AssignmentFailed, AssignmentReturned,
	},
}

// CanTransition reports whether an assignment in from may move to to.
func CanTransition(from, to AssignmentStatus) bool {
	return containsStatus(transitions[from], to)
}

// OrderStatusFor returns the order status mirrored by an assignment entering s.
func OrderStatusFor(s AssignmentStatus) (OrderStatus, bool) {
	switch s {
	case AssignmentPickedUp:
		return OrderOutForDelivery, true
	case AssignmentDelivered:
		return OrderCompleted, true
	case AssignmentCancelled, AssignmentFailed, AssignmentReturned:
		return OrderFailedDelivery, true
	}
	return "", false
}

// Assignment binds one courier profile to one order for one delivery attempt.
// CourierUserID is the user identity behind CourierID; DistanceKm is
// computed at dispatch time and not persisted.
type Assignment struct {
	ID             int64
	OrderID        string
	CourierID      int64
	CourierUserID  int64
	Status         AssignmentStatus
	AcceptedAt     *time.Time
	TimeoutSeconds int
	Attempts       int
	BatchID        *uuid.UUID
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DistanceKm     float64
}

// DriverAnalytics summarises finished work of one courier.
type DriverAnalytics struct {
	Completed int
	Failed    int
}
