package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

const userChannelPrefix = "user:"

// Publisher is the part of a Redis client Realtime needs.
type Publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// Realtime publishes notifications on the per-user Redis channel "user:<id>".
type Realtime struct {
	client Publisher
}

// NewRealtime returns nil when client is nil.
func NewRealtime(client Publisher) *Realtime {
	if client == nil {
		return nil
	}
	return &Realtime{client: client}
}

// UserChannel is the channel a user's sockets subscribe to.
func UserChannel(userID int64) string {
	return userChannelPrefix + strconv.FormatInt(userID, 10)
}

// Notify publishes n to the target's channel.
func (r *Realtime) Notify(ctx context.Context, n Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("realtime: marshal: %w", err)
	}
	if err := r.client.Publish(ctx, UserChannel(n.TargetID), payload).Err(); err != nil {
		return fmt.Errorf("realtime: publish to user %d: %w", n.TargetID, err)
	}
	return nil
}
