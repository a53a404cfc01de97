package audit

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
)

func TestRepositoryLog(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	id, actor := uuid.New(), uuid.New()
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	meta := []byte(`{"signal_id":"abc"}`)
	mock.ExpectExec(`INSERT INTO audit_logs`).
		WithArgs(id, actor, "admin", ActionSignalInvalidate, "signal", "abc",
			meta, DigestJSON(meta), "10.0.0.1", "curl", at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = NewRepository(db).Log(context.Background(), Entry{
		ID:           id,
		Actor:        actor,
		Role:         "admin",
		Action:       ActionSignalInvalidate,
		ResourceType: "signal",
		ResourceID:   "abc",
		Metadata:     meta,
		IP:           "10.0.0.1",
		UserAgent:    "curl",
		CreatedAt:    at,
	})
	if err != nil {
		t.Fatalf("log: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestRepositoryLogRequiresAction(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	if err := NewRepository(db, WithTable("audit_v2")).Log(context.Background(), Entry{}); err == nil {
		t.Fatalf("expected error for empty action")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestRepositoryNilDB(t *testing.T) {
	if repo := NewRepository(nil); repo != nil {
		t.Fatalf("expected nil repository for nil db")
	}
	var repo *Repository
	if err := repo.Log(context.Background(), Entry{Action: "x"}); err == nil {
		t.Fatalf("expected error for nil repo")
	}
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "192.168.1.5:4411"
	if got := ClientIP(r); got != "192.168.1.5" {
		t.Fatalf("expected remote host, got %q", got)
	}
	r.Header.Set("X-Real-IP", "10.1.1.1")
	if got := ClientIP(r); got != "10.1.1.1" {
		t.Fatalf("expected real ip, got %q", got)
	}
	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.1.1.1")
	if got := ClientIP(r); got != "203.0.113.9" {
		t.Fatalf("expected first forwarded ip, got %q", got)
	}
}

func TestDigestJSON(t *testing.T) {
	if DigestJSON(nil) != "" {
		t.Fatalf("expected empty digest for empty payload")
	}
	if len(DigestJSON([]byte(`{}`))) != 64 {
		t.Fatalf("expected hex sha256 digest")
	}
}
