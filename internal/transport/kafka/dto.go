package kafka

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Orurh/courier-dispatch/internal/service/orders"
)

// EventDTO is the wire shape of an order event.
type EventDTO struct {
	OrderID   string    `json:"order_id"`
	Status    string    `json:"status"`
	DriverID  *int64    `json:"driver_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ToDomain converts EventDTO to orders.Event. Non-positive driver ids are dropped.
func ToDomain(dto EventDTO) orders.Event {
	ev := orders.Event{
		OrderID:   strings.TrimSpace(dto.OrderID),
		Status:    strings.TrimSpace(dto.Status),
		CreatedAt: dto.CreatedAt,
	}
	if dto.DriverID != nil && *dto.DriverID > 0 {
		id := *dto.DriverID
		ev.DriverID = &id
	}
	return ev
}

func decodeEvent(raw []byte) (orders.Event, error) {
	var dto EventDTO
	if err := json.Unmarshal(raw, &dto); err != nil {
		return orders.Event{}, fmt.Errorf("decode order event: %w", err)
	}
	return ToDomain(dto), nil
}
