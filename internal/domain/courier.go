package domain

import "github.com/Orurh/courier-dispatch/internal/geo"

// CourierStatus represents the operational status of a courier profile.
type CourierStatus string

// List of possible courier statuses
const (
	CourierActive   CourierStatus = "active"
	CourierInactive CourierStatus = "inactive"
)

// Valid checks if the CourierStatus is valid
func (s CourierStatus) Valid() bool {
	return s == CourierActive || s == CourierInactive
}

// Courier is a delivery person profile linked to a user identity.
// Location is the last heartbeat position and may be nil.
type Courier struct {
	ID       int64
	UserID   int64
	Name     string
	Location *geo.Point
	Online   bool
	Status   CourierStatus
	Verified bool
}

// Dispatchable reports whether the courier may receive new work at all,
// regardless of load.
func (c Courier) Dispatchable() bool {
	return c.Online && c.Status == CourierActive && c.Verified
}

// AvailableCourier is a dispatchable courier under the stacking limit,
// enriched with its distance to the reference point and current load.
type AvailableCourier struct {
	Courier
	DistanceKm  float64
	ActiveCount int
}
