package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	telemetry "signal-alerts/internal/telemetry/domain"

	"github.com/google/uuid"
)

const defaultReadingsTable = "signal_readings"

// ReadingRepository is a Postgres implementation for signal readings.
type ReadingRepository struct {
	db    *sql.DB
	table string
}

// NewReadingRepository constructs a repository with default table name.
func NewReadingRepository(db *sql.DB, opts ...RepositoryOption) *ReadingRepository {
	repo := &ReadingRepository{db: db, table: defaultReadingsTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// RepositoryOption configures the repository.
type RepositoryOption func(*ReadingRepository)

// WithTable overrides the default table name.
func WithTable(table string) RepositoryOption {
	return func(repo *ReadingRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// InsertReadings upserts a batch of readings in one transaction.
func (r *ReadingRepository) InsertReadings(ctx context.Context, readings []telemetry.Reading) error {
	if r == nil || r.db == nil {
		return errors.New("reading repo: nil db")
	}
	if len(readings) == 0 {
		return nil
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	signal_id,
	asset_id,
	device_id,
	signal_type_id,
	signal_name,
	unit,
	value,
	ts
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8
)
ON CONFLICT (signal_id, ts)
DO UPDATE SET
	value = EXCLUDED.value,
	signal_name = EXCLUDED.signal_name,
	unit = EXCLUDED.unit,
	updated_at = NOW()`, r.table)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, reading := range readings {
		if reading.SignalID == uuid.Nil || reading.TS.IsZero() {
			_ = tx.Rollback()
			return errors.New("reading repo: invalid reading")
		}
		if _, err := stmt.ExecContext(
			ctx,
			reading.SignalID,
			reading.AssetID,
			reading.DeviceID,
			reading.SignalTypeID,
			reading.SignalName,
			reading.Unit,
			reading.Value,
			reading.TS.UTC(),
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}
