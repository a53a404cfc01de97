package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	notifications "signal-alerts/internal/notifications/domain"

	"github.com/google/uuid"
)

const (
	defaultNotificationsTable = "notifications"
	defaultRecipientsTable    = "notification_recipients"
)

// NotificationStore is a Postgres implementation for notifications and their recipients.
type NotificationStore struct {
	db            *sql.DB
	notifications string
	recipients    string
}

// StoreOption configures the store.
type StoreOption func(*NotificationStore)

// WithNotificationsTable overrides the notifications table name.
func WithNotificationsTable(table string) StoreOption {
	return func(s *NotificationStore) {
		if table != "" {
			s.notifications = table
		}
	}
}

// WithRecipientsTable overrides the recipients table name.
func WithRecipientsTable(table string) StoreOption {
	return func(s *NotificationStore) {
		if table != "" {
			s.recipients = table
		}
	}
}

// NewNotificationStore constructs a store.
func NewNotificationStore(db *sql.DB, opts ...StoreOption) *NotificationStore {
	store := &NotificationStore{
		db:            db,
		notifications: defaultNotificationsTable,
		recipients:    defaultRecipientsTable,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// Create writes a notification and one recipient row per user in one transaction.
func (s *NotificationStore) Create(ctx context.Context, n notifications.Notification, userIDs []uuid.UUID) error {
	if s == nil || s.db == nil {
		return errors.New("notification store: nil db")
	}
	if n.ID == uuid.Nil {
		return errors.New("notification store: empty notification id")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	insertNotification := fmt.Sprintf(`
INSERT INTO %s (
	notification_id,
	kind,
	alert_id,
	title,
	text,
	priority,
	created_utc,
	expires_utc
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8
)`, s.notifications)
	if _, err := tx.ExecContext(ctx, insertNotification,
		n.ID,
		string(n.Kind),
		n.AlertID,
		n.Title,
		n.Text,
		n.Priority,
		n.CreatedUTC.UTC(),
		n.ExpiresUTC.UTC(),
	); err != nil {
		_ = tx.Rollback()
		return err
	}

	if len(userIDs) > 0 {
		stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
INSERT INTO %s (notification_id, user_id, is_read, is_acknowledged)
VALUES ($1, $2, FALSE, FALSE)
ON CONFLICT (notification_id, user_id) DO NOTHING`, s.recipients))
		if err != nil {
			_ = tx.Rollback()
			return err
		}
		defer stmt.Close()
		for _, userID := range userIDs {
			if _, err := stmt.ExecContext(ctx, n.ID, userID); err != nil {
				_ = tx.Rollback()
				return err
			}
		}
	}

	return tx.Commit()
}

// ListForUser returns a user's notifications, newest first.
func (s *NotificationStore) ListForUser(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit int) ([]notifications.InboxItem, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("notification store: nil db")
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := fmt.Sprintf(`
SELECT n.notification_id, n.kind, n.alert_id, n.title, n.text, n.priority, n.created_utc, n.expires_utc,
	r.is_read, r.read_utc, r.is_acknowledged, r.acknowledged_utc
FROM %s r
JOIN %s n ON n.notification_id = r.notification_id
WHERE r.user_id = $1 AND ($2 = FALSE OR r.is_read = FALSE)
ORDER BY n.created_utc DESC
LIMIT $3`, s.recipients, s.notifications)

	rows, err := s.db.QueryContext(ctx, query, userID, unreadOnly, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []notifications.InboxItem
	for rows.Next() {
		var item notifications.InboxItem
		var kind string
		var readUTC, ackUTC sql.NullTime
		if err := rows.Scan(
			&item.ID,
			&kind,
			&item.AlertID,
			&item.Title,
			&item.Text,
			&item.Priority,
			&item.CreatedUTC,
			&item.ExpiresUTC,
			&item.IsRead,
			&readUTC,
			&item.IsAcknowledged,
			&ackUTC,
		); err != nil {
			return nil, err
		}
		item.Kind = notifications.Kind(kind)
		item.CreatedUTC = item.CreatedUTC.UTC()
		item.ExpiresUTC = item.ExpiresUTC.UTC()
		if readUTC.Valid {
			item.ReadUTC = readUTC.Time.UTC()
		}
		if ackUTC.Valid {
			item.AcknowledgedUTC = ackUTC.Time.UTC()
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// MarkRead flags a notification as read for one user.
func (s *NotificationStore) MarkRead(ctx context.Context, notificationID, userID uuid.UUID, at time.Time) error {
	if s == nil || s.db == nil {
		return errors.New("notification store: nil db")
	}
	query := fmt.Sprintf(`
UPDATE %s
SET is_read = TRUE, read_utc = COALESCE(read_utc, $3)
WHERE notification_id = $1 AND user_id = $2`, s.recipients)
	return s.updateRecipient(ctx, query, notificationID, userID, at.UTC())
}

// Acknowledge flags a notification as acknowledged, which also marks it read.
func (s *NotificationStore) Acknowledge(ctx context.Context, notificationID, userID uuid.UUID, at time.Time) error {
	if s == nil || s.db == nil {
		return errors.New("notification store: nil db")
	}
	query := fmt.Sprintf(`
UPDATE %s
SET is_read = TRUE,
	read_utc = COALESCE(read_utc, $3),
	is_acknowledged = TRUE,
	acknowledged_utc = COALESCE(acknowledged_utc, $3)
WHERE notification_id = $1 AND user_id = $2`, s.recipients)
	return s.updateRecipient(ctx, query, notificationID, userID, at.UTC())
}

func (s *NotificationStore) updateRecipient(ctx context.Context, query string, args ...any) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return notifications.ErrNotFound
	}
	return nil
}
