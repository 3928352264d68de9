package app

import (
	"context"

	"github.com/Orurh/courier-dispatch/internal/apperr"
	"github.com/Orurh/courier-dispatch/internal/service/orders"
	"github.com/Orurh/courier-dispatch/internal/transport/kafka"
)

type ordersHandler interface {
	Handle(ctx context.Context, e orders.Event) error
}

// makeOrdersKafka marks domain errors permanent so the consumer skips the
// message; errors without a kind are retried.
func makeOrdersKafka(h ordersHandler) kafka.HandleFunc {
	return func(ctx context.Context, event orders.Event) error {
		err := h.Handle(ctx, event)
		if err != nil && apperr.Kind(err) != nil {
			return kafka.Permanent(err)
		}
		return err
	}
}
