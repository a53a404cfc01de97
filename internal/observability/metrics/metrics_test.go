package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestHelpersAreSafeAndCount(t *testing.T) {
	Init(nil, nil)

	ObserveMessage("processed", 10*time.Millisecond)
	ObserveMessage("processed", 20*time.Millisecond)
	IncAlertTransition("start")
	IncNotification("email", ResultError)
	AddTimeseriesWrites(ResultSuccess, 3)
	AddTimeseriesWrites(ResultSuccess, 0)
	AddInFlight(2)
	AddInFlight(-1)

	if got := testutil.ToFloat64(messagesTotal.WithLabelValues("processed")); got != 2 {
		t.Fatalf("expected 2 processed messages, got %v", got)
	}
	if got := testutil.ToFloat64(alertTransitionsTotal.WithLabelValues("start")); got != 1 {
		t.Fatalf("expected 1 start transition, got %v", got)
	}
	if got := testutil.ToFloat64(notificationsTotal.WithLabelValues("email", ResultError)); got != 1 {
		t.Fatalf("expected 1 email error, got %v", got)
	}
	if got := testutil.ToFloat64(timeseriesWritesTotal.WithLabelValues(ResultSuccess)); got != 3 {
		t.Fatalf("expected 3 timeseries writes, got %v", got)
	}
	if got := testutil.ToFloat64(inFlight); got != 1 {
		t.Fatalf("expected in-flight 1, got %v", got)
	}
}

func TestQueryCount(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM alerts WHERE is_active`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))
	mock.ExpectQuery(`FROM dead_letter_messages`).WillReturnError(errors.New("relation does not exist"))

	if got := queryCount(db, nil, storeGauges[0].query); got != 4 {
		t.Fatalf("expected 4 active alerts, got %v", got)
	}
	if got := queryCount(db, nil, storeGauges[2].query); got != 0 {
		t.Fatalf("expected 0 on query error, got %v", got)
	}
	if got := queryCount(nil, nil, storeGauges[0].query); got != 0 {
		t.Fatalf("expected 0 without db, got %v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
