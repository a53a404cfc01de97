package postgres

import (
	"context"
	"database/sql"
	"errors"

	alerts "signal-alerts/internal/alerts/domain"
	masterdata "signal-alerts/internal/masterdata/domain"
	masterpg "signal-alerts/internal/masterdata/infrastructure/postgres"
)

// UnitOfWork holds one pooled connection for the duration of one reading.
// Every repository it hands out runs on that connection.
type UnitOfWork struct {
	conn    *sql.Conn
	signals *masterpg.SignalRepository
	alerts  *AlertRepository
}

var _ alerts.Repository = (*AlertRepository)(nil)

// Signals returns the signal directory reader bound to the connection.
func (u *UnitOfWork) Signals() masterdata.SignalReader {
	return u.signals
}

// Alerts returns the alert repository bound to the connection.
func (u *UnitOfWork) Alerts() alerts.Repository {
	return u.alerts
}

// Close returns the connection to the pool.
func (u *UnitOfWork) Close() error {
	if u == nil || u.conn == nil {
		return nil
	}
	return u.conn.Close()
}

// UnitOfWorkFactory checks out connections from a pool.
type UnitOfWorkFactory struct {
	db         *sql.DB
	alertOpts  []AlertOption
	signalOpts []masterpg.SignalOption
}

// NewUnitOfWorkFactory constructs a factory over db.
func NewUnitOfWorkFactory(db *sql.DB, alertOpts []AlertOption, signalOpts []masterpg.SignalOption) (*UnitOfWorkFactory, error) {
	if db == nil {
		return nil, errors.New("unit of work: nil db")
	}
	return &UnitOfWorkFactory{db: db, alertOpts: alertOpts, signalOpts: signalOpts}, nil
}

// Begin checks out a connection. The caller must Close the unit of work.
func (f *UnitOfWorkFactory) Begin(ctx context.Context) (*UnitOfWork, error) {
	if f == nil || f.db == nil {
		return nil, errors.New("unit of work: nil db")
	}
	conn, err := f.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	return &UnitOfWork{
		conn:    conn,
		signals: masterpg.NewSignalRepository(conn, f.signalOpts...),
		alerts:  NewAlertRepository(conn, f.alertOpts...),
	}, nil
}
