package postgres

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"signal-alerts/internal/queue"
)

const defaultDeadLetterTable = "dead_letter_messages"

// DeadLetterStore is a Postgres implementation for dropped queue messages.
type DeadLetterStore struct {
	db    *sql.DB
	table string
	now   func() time.Time
}

// NewDeadLetterStore constructs a dead letter store.
func NewDeadLetterStore(db *sql.DB, opts ...DeadLetterOption) *DeadLetterStore {
	store := &DeadLetterStore{db: db, table: defaultDeadLetterTable, now: time.Now}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// DeadLetterOption configures the store.
type DeadLetterOption func(*DeadLetterStore)

// WithDeadLetterTable overrides the table name.
func WithDeadLetterTable(table string) DeadLetterOption {
	return func(store *DeadLetterStore) {
		if table != "" {
			store.table = table
		}
	}
}

// RecordDeadLetter inserts a dropped payload or bumps its attempt count.
// Payloads are keyed by their SHA-256 so redeliveries collapse into one row.
func (s *DeadLetterStore) RecordDeadLetter(ctx context.Context, letter queue.DeadLetter) error {
	if s == nil || s.db == nil {
		return errors.New("dead letter store: nil db")
	}
	if letter.Reason == "" {
		return errors.New("dead letter store: empty reason")
	}
	sum := sha256.Sum256(letter.Payload)
	hash := hex.EncodeToString(sum[:])

	query := fmt.Sprintf(`
INSERT INTO %s (
	payload_hash,
	transport,
	reason,
	payload,
	first_seen_at,
	last_seen_at,
	attempts
) VALUES (
	$1, $2, $3, $4, $5, $5, 1
)
ON CONFLICT (payload_hash)
DO UPDATE SET
	reason = EXCLUDED.reason,
	last_seen_at = EXCLUDED.last_seen_at,
	attempts = %s.attempts + 1`, s.table, s.table)

	now := s.now().UTC()
	_, err := s.db.ExecContext(ctx, query, hash, letter.Transport, letter.Reason, letter.Payload, now)
	return err
}
