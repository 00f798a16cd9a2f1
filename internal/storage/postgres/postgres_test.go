package postgres

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewWithDB(sqlx.NewDb(db, "postgres")), mock
}

func TestReadHitAndMiss(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectQuery(`SELECT value FROM gateway_kv`).
		WithArgs("wozif:session:h:auth_token").
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow("tok"))

	v, ok, err := s.Read(ctx, "wozif:session:h:auth_token")
	if err != nil || !ok || v != "tok" {
		t.Fatalf("read = (%q, %v, %v), want (tok, true, nil)", v, ok, err)
	}

	mock.ExpectQuery(`SELECT value FROM gateway_kv`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"value"}))

	_, ok, err = s.Read(ctx, "missing")
	if err != nil {
		t.Fatalf("miss should not error: %v", err)
	}
	if ok {
		t.Fatal("expected miss")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestWriteUpserts(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO gateway_kv`).
		WithArgs("k", "v").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.Write(context.Background(), "k", "v"); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestClearDeletesByPrefix(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`DELETE FROM gateway_kv WHERE key LIKE`).
		WithArgs("wozif:session:h:").
		WillReturnResult(sqlmock.NewResult(0, 4))

	if err := s.Clear(context.Background(), "wozif:session:h:"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}
