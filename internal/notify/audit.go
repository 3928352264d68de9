package notify

import (
	"context"
	"fmt"
)

// AuditStore persists notifications for the in-app inbox.
type AuditStore interface {
	InsertNotification(ctx context.Context, n Notification) error
}

// Audit writes every notification to an AuditStore.
type Audit struct {
	store AuditStore
}

// NewAudit returns nil when store is nil.
func NewAudit(store AuditStore) *Audit {
	if store == nil {
		return nil
	}
	return &Audit{store: store}
}

// Notify records n.
func (a *Audit) Notify(ctx context.Context, n Notification) error {
	if err := a.store.InsertNotification(ctx, n); err != nil {
		return fmt.Errorf("audit: %w", err)
	}
	return nil
}
