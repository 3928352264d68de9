package orders

import (
	"context"
	"errors"

	"github.com/Orurh/courier-dispatch/internal/logx"
	"github.com/Orurh/courier-dispatch/internal/service/dispatch"
)

// Processor turns order lifecycle events into dispatch calls
type Processor struct {
	dispatch DispatchPort
	logger   logx.Logger
	factory  *actionFactory
}

// NewProcessor creates a new orders.Processor
func NewProcessor(d DispatchPort, logger logx.Logger) *Processor {
	if logger == nil {
		logger = logx.Nop()
	}
	p := &Processor{
		dispatch: d,
		logger:   logger,
	}
	p.factory = newActionFactory(p.onReady, p.onClosed)
	return p
}

// Handle processes a single orders.Event
func (p *Processor) Handle(ctx context.Context, e Event) error {
	if p.factory == nil {
		return nil
	}
	fn, ok := p.factory.get(e.Status)
	if !ok {
		return nil
	}
	return fn(ctx, e)
}

func (p *Processor) onReady(ctx context.Context, e Event) error {
	res, err := p.dispatch.AssignOrder(ctx, e.OrderID, e.DriverID)
	if e.DriverID != nil && pinnedUnavailable(err) {
		// pinned courier cannot take it, offer the order to everyone nearby
		p.logger.Warn("pinned courier unavailable, broadcasting",
			logx.String("event", "pinned_courier_unavailable"),
			logx.String("order_id", e.OrderID),
			logx.Int64("driver_id", *e.DriverID),
			logx.Err(err),
		)
		res, err = p.dispatch.AssignOrder(ctx, e.OrderID, nil)
	}
	switch {
	case errors.Is(err, dispatch.ErrNoDriversAvailable), errors.Is(err, dispatch.ErrOrderAlreadyAssigned):
		p.logger.Warn("order not dispatched",
			logx.String("event", "order_not_dispatched"),
			logx.String("order_id", e.OrderID),
			logx.Err(err),
		)
		return nil
	case err != nil:
		return err
	}

	switch {
	case res.Broadcast != nil:
		p.logger.Debug("order dispatched from event",
			logx.String("order_id", e.OrderID),
			logx.Int64("broadcast_id", res.Broadcast.ID),
		)
	case res.Assignment != nil:
		p.logger.Debug("order assigned from event",
			logx.String("order_id", e.OrderID),
			logx.Int64("assignment_id", res.Assignment.ID),
		)
	}
	return nil
}

func pinnedUnavailable(err error) bool {
	return errors.Is(err, dispatch.ErrCourierUnavailableOrOverStack) ||
		errors.Is(err, dispatch.ErrCourierProfileMissing)
}

// onClosed withdraws pending offers of an order that will never ship.
func (p *Processor) onClosed(ctx context.Context, e Event) error {
	n, err := p.dispatch.CancelOffers(ctx, e.OrderID)
	if err != nil {
		return err
	}
	if n > 0 {
		p.logger.Info("offers withdrawn",
			logx.String("event", "offers_withdrawn"),
			logx.String("order_id", e.OrderID),
			logx.String("status", e.Status),
			logx.Int("broadcasts", n),
		)
	}
	return nil
}
