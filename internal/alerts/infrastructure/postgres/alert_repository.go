package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	alerts "signal-alerts/internal/alerts/domain"

	"github.com/google/uuid"
)

const defaultAlertsTable = "alerts"

const alertColumns = `alert_id, signal_id, asset_id, asset_name, signal_name,
	min_threshold, max_threshold, min_observed_value, max_observed_value,
	alert_start_utc, alert_end_utc, is_active, is_analyzed, created_utc, updated_utc`

// Querier is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// AlertRepository is a Postgres repository for alerts.
type AlertRepository struct {
	db    Querier
	table string
}

// AlertOption configures the repository.
type AlertOption func(*AlertRepository)

// WithAlertsTable overrides the table name.
func WithAlertsTable(table string) AlertOption {
	return func(repo *AlertRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// NewAlertRepository constructs a repository.
func NewAlertRepository(db Querier, opts ...AlertOption) *AlertRepository {
	repo := &AlertRepository{db: db, table: defaultAlertsTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// FindActiveBySignal returns the active alert of a signal, nil when idle.
func (r *AlertRepository) FindActiveBySignal(ctx context.Context, signalID uuid.UUID) (*alerts.Alert, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("alert repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT %s
FROM %s
WHERE signal_id = $1 AND is_active
ORDER BY alert_start_utc DESC
LIMIT 1`, alertColumns, r.table)
	return scanAlert(r.db.QueryRowContext(ctx, query, signalID))
}

// CreateActive inserts an active alert unless the signal already has one.
// It reports whether a row was inserted.
func (r *AlertRepository) CreateActive(ctx context.Context, alert *alerts.Alert) (bool, error) {
	if r == nil || r.db == nil {
		return false, errors.New("alert repo: nil db")
	}
	if alert == nil {
		return false, errors.New("alert repo: nil alert")
	}
	if err := alert.Validate(); err != nil {
		return false, err
	}
	if !alert.IsActive {
		return false, errors.New("alert repo: alert is not active")
	}
	if alert.CreatedUTC.IsZero() {
		alert.CreatedUTC = time.Now().UTC()
	}
	if alert.UpdatedUTC.IsZero() {
		alert.UpdatedUTC = alert.CreatedUTC
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	alert_id, signal_id, asset_id, asset_name, signal_name,
	min_threshold, max_threshold, min_observed_value, max_observed_value,
	alert_start_utc, alert_end_utc, is_active, is_analyzed, created_utc, updated_utc
) VALUES (
	$1, $2, $3, $4, $5,
	$6, $7, $8, $9,
	$10, NULL, TRUE, FALSE, $11, $12
)
ON CONFLICT (signal_id) WHERE is_active DO NOTHING`, r.table)

	result, err := r.db.ExecContext(ctx, query,
		alert.ID,
		alert.SignalID,
		alert.AssetID,
		alert.AssetName,
		alert.SignalName,
		alert.MinThreshold,
		alert.MaxThreshold,
		alert.MinObservedValue,
		alert.MaxObservedValue,
		alert.StartUTC.UTC(),
		alert.CreatedUTC.UTC(),
		alert.UpdatedUTC.UTC(),
	)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// ExtendObserved folds value into the observed extremes of an active alert and
// returns the stored extremes. ok is false when the alert is no longer active.
func (r *AlertRepository) ExtendObserved(ctx context.Context, alertID uuid.UUID, value float64, at time.Time) (min, max float64, ok bool, err error) {
	if r == nil || r.db == nil {
		return 0, 0, false, errors.New("alert repo: nil db")
	}
	query := fmt.Sprintf(`
UPDATE %s
SET min_observed_value = LEAST(min_observed_value, $1),
	max_observed_value = GREATEST(max_observed_value, $1),
	updated_utc = $2
WHERE alert_id = $3 AND is_active
RETURNING min_observed_value, max_observed_value`, r.table)

	if err := r.db.QueryRowContext(ctx, query, value, at.UTC(), alertID).Scan(&min, &max); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, 0, false, nil
		}
		return 0, 0, false, err
	}
	return min, max, true, nil
}

// CloseActive closes an active alert and returns the closed episode.
// ok is false when the alert was already closed.
func (r *AlertRepository) CloseActive(ctx context.Context, alertID uuid.UUID, at time.Time) (alerts.Snapshot, bool, error) {
	if r == nil || r.db == nil {
		return alerts.Snapshot{}, false, errors.New("alert repo: nil db")
	}
	query := fmt.Sprintf(`
UPDATE %s
SET is_active = FALSE, alert_end_utc = $1, updated_utc = $1
WHERE alert_id = $2 AND is_active
RETURNING alert_start_utc, min_observed_value, max_observed_value`, r.table)

	snapshot := alerts.Snapshot{AlertID: alertID, EndUTC: at.UTC()}
	err := r.db.QueryRowContext(ctx, query, at.UTC(), alertID).Scan(
		&snapshot.StartUTC,
		&snapshot.MinValue,
		&snapshot.MaxValue,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return alerts.Snapshot{}, false, nil
		}
		return alerts.Snapshot{}, false, err
	}
	snapshot.StartUTC = snapshot.StartUTC.UTC()
	return snapshot, true, nil
}

// ListActive returns every active alert.
func (r *AlertRepository) ListActive(ctx context.Context) ([]alerts.Alert, error) {
	return r.List(ctx, alerts.Filter{ActiveOnly: true})
}

// GetByID fetches an alert by id.
func (r *AlertRepository) GetByID(ctx context.Context, id uuid.UUID) (*alerts.Alert, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("alert repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT %s
FROM %s
WHERE alert_id = $1`, alertColumns, r.table)
	return scanAlert(r.db.QueryRowContext(ctx, query, id))
}

// List returns alerts matching filter, newest first.
func (r *AlertRepository) List(ctx context.Context, filter alerts.Filter) ([]alerts.Alert, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("alert repo: nil db")
	}

	var conditions []string
	var args []any
	if filter.ActiveOnly {
		conditions = append(conditions, "is_active")
	}
	if filter.SignalID != uuid.Nil {
		args = append(args, filter.SignalID)
		conditions = append(conditions, fmt.Sprintf("signal_id = $%d", len(args)))
	}
	if !filter.From.IsZero() {
		args = append(args, filter.From.UTC())
		conditions = append(conditions, fmt.Sprintf("alert_start_utc >= $%d", len(args)))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To.UTC())
		conditions = append(conditions, fmt.Sprintf("alert_start_utc < $%d", len(args)))
	}

	query := fmt.Sprintf("SELECT %s FROM %s", alertColumns, r.table)
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY alert_start_utc DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []alerts.Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *alert)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

type alertScanner interface {
	Scan(dest ...any) error
}

func scanAlert(row alertScanner) (*alerts.Alert, error) {
	var alert alerts.Alert
	var endUTC sql.NullTime
	if err := row.Scan(
		&alert.ID,
		&alert.SignalID,
		&alert.AssetID,
		&alert.AssetName,
		&alert.SignalName,
		&alert.MinThreshold,
		&alert.MaxThreshold,
		&alert.MinObservedValue,
		&alert.MaxObservedValue,
		&alert.StartUTC,
		&endUTC,
		&alert.IsActive,
		&alert.IsAnalyzed,
		&alert.CreatedUTC,
		&alert.UpdatedUTC,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	alert.StartUTC = alert.StartUTC.UTC()
	alert.CreatedUTC = alert.CreatedUTC.UTC()
	alert.UpdatedUTC = alert.UpdatedUTC.UTC()
	if endUTC.Valid {
		alert.EndUTC = endUTC.Time.UTC()
	}
	return &alert, nil
}
