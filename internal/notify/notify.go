// Package notify delivers dispatch events to users over realtime, push and
// audit channels. Dispatch treats every channel as best effort.
package notify

import (
	"context"
	"errors"
	"time"
)

// Event names the kind of notification a user receives.
type Event string

// Events emitted by dispatch.
const (
	EventDeliveryRequest     Event = "deliveryRequest"
	EventDeliveryAccepted    Event = "deliveryAccepted"
	EventDeliveryExpired     Event = "deliveryExpired"
	EventNewDeliveryAssigned Event = "newDeliveryAssigned"
	EventBroadcastStarted    Event = "deliveryBroadcastStarted"
	EventOrderUpdate         Event = "orderUpdate"
	EventDispatchExhausted   Event = "dispatchExhausted"
)

// Notification is addressed to TargetID. ActorID is zero for system events.
type Notification struct {
	ActorID   int64          `json:"actor_id,omitempty"`
	TargetID  int64          `json:"target_id"`
	Event     Event          `json:"event"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Notifier delivers one notification over one channel.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n Notification) error

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, n Notification) error { return f(ctx, n) }

// Fanout sends every notification to all channels and joins their errors.
type Fanout struct {
	channels []Notifier
}

// NewFanout builds a Fanout; nil channels are skipped.
func NewFanout(channels ...Notifier) *Fanout {
	f := &Fanout{}
	for _, c := range channels {
		if c != nil {
			f.channels = append(f.channels, c)
		}
	}
	return f
}

// Notify delivers n to every channel even if some of them fail.
func (f *Fanout) Notify(ctx context.Context, n Notification) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	var errs []error
	for _, c := range f.channels {
		if err := c.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards notifications.
type Nop struct{}

// Notify does nothing.
func (Nop) Notify(context.Context, Notification) error { return nil }
