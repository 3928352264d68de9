package orders

import "time"

// Event is one order lifecycle change from the orders topic. DriverID is
// set when the order service pins the order to a courier user.
type Event struct {
	OrderID   string
	Status    string
	DriverID  *int64
	CreatedAt time.Time
}
