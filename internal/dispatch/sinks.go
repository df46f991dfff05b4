package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/campusgo/internal/domain"
	"github.com/kirinyoku/campusgo/internal/repository"
)

// NotificationSink stores in-app notifications.
type NotificationSink struct {
	store repository.NotificationStore
	now   func() time.Time
}

func NewNotificationSink(store repository.NotificationStore) *NotificationSink {
	return &NotificationSink{store: store, now: time.Now}
}

func (s *NotificationSink) Notify(
	ctx context.Context,
	userID uuid.UUID,
	typ domain.NotificationType,
	title, message string,
) error {
	return s.NotifyBulk(ctx, []uuid.UUID{userID}, typ, title, message)
}

func (s *NotificationSink) NotifyBulk(
	ctx context.Context,
	userIDs []uuid.UUID,
	typ domain.NotificationType,
	title, message string,
) error {
	const op = "dispatch.NotificationSink.NotifyBulk"

	if len(userIDs) == 0 {
		return nil
	}

	now := s.now().UTC()
	ns := make([]domain.Notification, 0, len(userIDs))
	for _, id := range userIDs {
		ns = append(ns, domain.Notification{
			ID:      uuid.New(),
			UserID:  id,
			Type:    typ,
			Title:   title,
			Message: message,
			SentAt:  now,
		})
	}

	if err := s.store.InsertMany(ctx, ns); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// AuditSink appends to the audit log.
type AuditSink struct {
	store repository.AuditStore
	now   func() time.Time
}

func NewAuditSink(store repository.AuditStore) *AuditSink {
	return &AuditSink{store: store, now: time.Now}
}

func (s *AuditSink) LogAction(
	ctx context.Context,
	actorID uuid.UUID,
	action, entityType string,
	entityID uuid.UUID,
	details map[string]any,
) error {
	const op = "dispatch.AuditSink.LogAction"

	entry := &domain.AuditEntry{
		ID:         uuid.New(),
		ActorID:    nilIfZero(actorID),
		Action:     action,
		EntityType: entityType,
		EntityID:   nilIfZero(entityID),
		Details:    details,
		CreatedAt:  s.now().UTC(),
	}

	if err := s.store.Append(ctx, entry); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func nilIfZero(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}
