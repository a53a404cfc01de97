package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	masterdata "signal-alerts/internal/masterdata/domain"

	"github.com/google/uuid"
)

const (
	defaultSignalsTable     = "signals"
	defaultAssetsTable      = "assets"
	defaultSignalTypesTable = "signal_types"
)

// Querier is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type Querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SignalRepository is a Postgres implementation of the signal directory read path.
type SignalRepository struct {
	db          Querier
	signals     string
	assets      string
	signalTypes string
}

// SignalOption configures the repository.
type SignalOption func(*SignalRepository)

// WithSignalsTable overrides the signals table name.
func WithSignalsTable(table string) SignalOption {
	return func(repo *SignalRepository) {
		if table != "" {
			repo.signals = table
		}
	}
}

// WithAssetsTable overrides the assets table name.
func WithAssetsTable(table string) SignalOption {
	return func(repo *SignalRepository) {
		if table != "" {
			repo.assets = table
		}
	}
}

// WithSignalTypesTable overrides the signal types table name.
func WithSignalTypesTable(table string) SignalOption {
	return func(repo *SignalRepository) {
		if table != "" {
			repo.signalTypes = table
		}
	}
}

// NewSignalRepository constructs a repository.
func NewSignalRepository(db Querier, opts ...SignalOption) *SignalRepository {
	repo := &SignalRepository{
		db:          db,
		signals:     defaultSignalsTable,
		assets:      defaultAssetsTable,
		signalTypes: defaultSignalTypesTable,
	}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// GetSignalByID loads a signal by id.
func (r *SignalRepository) GetSignalByID(ctx context.Context, id uuid.UUID) (*masterdata.Signal, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("signal repo: nil db")
	}
	if id == uuid.Nil {
		return nil, errors.New("signal repo: nil signal id")
	}

	query := fmt.Sprintf(`
SELECT signal_id, signal_key, asset_id, device_id, signal_type_id, signal_name, unit
FROM %s
WHERE signal_id = $1`, r.signals)

	var signal masterdata.Signal
	var unit sql.NullString
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&signal.ID,
		&signal.Key,
		&signal.AssetID,
		&signal.DeviceID,
		&signal.SignalTypeID,
		&signal.Name,
		&unit,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if unit.Valid {
		signal.Unit = unit.String
	}
	return &signal, nil
}

// GetAssetName returns the asset display name, empty when the asset is missing.
func (r *SignalRepository) GetAssetName(ctx context.Context, assetID uuid.UUID) (string, error) {
	if r == nil || r.db == nil {
		return "", errors.New("signal repo: nil db")
	}

	query := fmt.Sprintf(`
SELECT name
FROM %s
WHERE asset_id = $1`, r.assets)

	var name string
	if err := r.db.QueryRowContext(ctx, query, assetID).Scan(&name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return name, nil
}

// GetSignalType loads the threshold template typeID while signalID is still mapped to it.
func (r *SignalRepository) GetSignalType(ctx context.Context, signalID, typeID uuid.UUID) (*masterdata.SignalType, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("signal repo: nil db")
	}

	query := fmt.Sprintf(`
SELECT t.signal_type_id, t.min_threshold, t.max_threshold, t.default_register, t.display_unit
FROM %s t
JOIN %s s ON s.signal_type_id = t.signal_type_id
WHERE s.signal_id = $1 AND t.signal_type_id = $2`, r.signalTypes, r.signals)

	var signalType masterdata.SignalType
	var register, displayUnit sql.NullString
	err := r.db.QueryRowContext(ctx, query, signalID, typeID).Scan(
		&signalType.ID,
		&signalType.MinThreshold,
		&signalType.MaxThreshold,
		&register,
		&displayUnit,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if register.Valid {
		signalType.DefaultRegister = register.String
	}
	if displayUnit.Valid {
		signalType.DisplayUnit = displayUnit.String
	}
	return &signalType, nil
}
