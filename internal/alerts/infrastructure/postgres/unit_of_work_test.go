package postgres

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
)

func TestUnitOfWorkBindsRepositoriesToConnection(t *testing.T) {
	db, mock := newMock(t)
	factory, err := NewUnitOfWorkFactory(db, []AlertOption{WithAlertsTable("alerts_v2")}, nil)
	if err != nil {
		t.Fatalf("factory: %v", err)
	}

	signalID := uuid.New()
	mock.ExpectQuery(`FROM signals WHERE signal_id = \$1`).
		WithArgs(signalID).
		WillReturnRows(sqlmock.NewRows([]string{"signal_id"}))
	mock.ExpectQuery(`FROM alerts_v2`).
		WithArgs(signalID).
		WillReturnRows(sqlmock.NewRows(alertRowColumns))

	uow, err := factory.Begin(context.Background())
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer uow.Close()

	signal, err := uow.Signals().GetSignalByID(context.Background(), signalID)
	if err != nil {
		t.Fatalf("get signal: %v", err)
	}
	if signal != nil {
		t.Fatalf("expected missing signal, got %+v", signal)
	}
	active, err := uow.Alerts().FindActiveBySignal(context.Background(), signalID)
	if err != nil {
		t.Fatalf("find active: %v", err)
	}
	if active != nil {
		t.Fatalf("expected no active alert")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestNewUnitOfWorkFactoryRequiresDB(t *testing.T) {
	if _, err := NewUnitOfWorkFactory(nil, nil, nil); err == nil {
		t.Fatalf("expected error for nil db")
	}
}
