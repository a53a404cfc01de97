package application

import (
	"context"
	"errors"
	"time"

	notifications "signal-alerts/internal/notifications/domain"

	"github.com/google/uuid"
)

// InboxStore is the read side of the notification store.
type InboxStore interface {
	ListForUser(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit int) ([]notifications.InboxItem, error)
	MarkRead(ctx context.Context, notificationID, userID uuid.UUID, at time.Time) error
	Acknowledge(ctx context.Context, notificationID, userID uuid.UUID, at time.Time) error
}

// Inbox serves a user's notifications.
type Inbox struct {
	store InboxStore
	clock Clock
}

// NewInbox constructs an inbox. A nil clock uses the system clock.
func NewInbox(store InboxStore, clock Clock) (*Inbox, error) {
	if store == nil {
		return nil, errors.New("inbox: nil store")
	}
	if clock == nil {
		clock = systemClock{}
	}
	return &Inbox{store: store, clock: clock}, nil
}

// List returns the user's notifications, newest first.
func (i *Inbox) List(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit int) ([]notifications.InboxItem, error) {
	if userID == uuid.Nil {
		return nil, errors.New("inbox: empty user id")
	}
	return i.store.ListForUser(ctx, userID, unreadOnly, limit)
}

// MarkRead marks one notification read. Returns notifications.ErrNotFound when the user is not a recipient.
func (i *Inbox) MarkRead(ctx context.Context, notificationID, userID uuid.UUID) error {
	return i.store.MarkRead(ctx, notificationID, userID, i.clock.Now().UTC())
}

// Acknowledge marks one notification acknowledged.
func (i *Inbox) Acknowledge(ctx context.Context, notificationID, userID uuid.UUID) error {
	return i.store.Acknowledge(ctx, notificationID, userID, i.clock.Now().UTC())
}
