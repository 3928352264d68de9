package domain

import "github.com/Orurh/courier-dispatch/internal/geo"

// OrderStatus is the coarse lifecycle status of an order.
type OrderStatus string

// Order statuses written by dispatch. Other statuses belong to the order service.
const (
	OrderOutForDelivery OrderStatus = "OUT_FOR_DELIVERY"
	OrderCompleted      OrderStatus = "COMPLETED"
	OrderFailedDelivery OrderStatus = "FAILED_DELIVERY"
)

// Order is the part of an order dispatch reads. VendorLocation comes from
// the vendor's default address and is nil when that address has no coordinates.
type Order struct {
	ID             string
	VendorID       int64
	VendorUserID   int64
	CustomerID     int64
	Status         OrderStatus
	VendorLocation *geo.Point
}

// DispatchSession counts automatic redispatch rounds of one order.
type DispatchSession struct {
	OrderID      string
	Redispatches int
	Exhausted    bool
}
