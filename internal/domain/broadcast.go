package domain

import "time"

// BroadcastStatus is the state of one competitive offering round.
type BroadcastStatus string

// List of broadcast statuses. A broadcast leaves pending exactly once.
const (
	BroadcastPending  BroadcastStatus = "PENDING"
	BroadcastAccepted BroadcastStatus = "ACCEPTED"
	BroadcastExpired  BroadcastStatus = "EXPIRED"
)

// Broadcast offers one order to DriverIDs, nearest first. DriverIDs and
// AcceptedDriverID are courier user identities.
type Broadcast struct {
	ID               int64
	OrderID          string
	DriverIDs        []int64
	Status           BroadcastStatus
	ExpiresAt        time.Time
	AcceptedDriverID *int64
	Version          int64
	CreatedAt        time.Time
}

// Offered reports whether userID is one of the broadcast's candidates.
func (b Broadcast) Offered(userID int64) bool {
	for _, id := range b.DriverIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// ExpiredBroadcast identifies a broadcast moved to expired by a sweep.
type ExpiredBroadcast struct {
	ID      int64
	OrderID string
}
