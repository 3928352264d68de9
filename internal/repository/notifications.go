package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Orurh/courier-dispatch/internal/notify"
)

// NotificationRepo stores the notification audit trail.
type NotificationRepo struct {
	db *pgxpool.Pool
}

// NewNotificationRepo creates a new NotificationRepo.
func NewNotificationRepo(db *pgxpool.Pool) *NotificationRepo {
	return &NotificationRepo{db: db}
}

// InsertNotification appends one notification.
func (r *NotificationRepo) InsertNotification(ctx context.Context, n notify.Notification) error {
	meta := n.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal notification metadata: %w", err)
	}

	var actor *int64
	if n.ActorID != 0 {
		actor = &n.ActorID
	}
	if _, err := r.db.Exec(ctx, `
		INSERT INTO notifications (actor_id, target_id, event, title, message, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, actor, n.TargetID, string(n.Event), n.Title, n.Message, raw, n.CreatedAt); err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}
