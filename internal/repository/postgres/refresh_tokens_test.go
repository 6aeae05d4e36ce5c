package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/authcore/authcore/internal/models"
	"github.com/authcore/authcore/internal/repository"
	"github.com/sirupsen/logrus"
)

func newTokenRepoWithMock(t *testing.T) (*RefreshTokenRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return NewRefreshTokenRepository(db, logger), mock, db
}

func TestInsert_Success(t *testing.T) {
	repo, mock, db := newTokenRepoWithMock(t)
	defer db.Close()

	q := `(?s)^\s*INSERT\s+INTO\s+refresh_tokens\b.*VALUES\s*\(\$1,\s*\$2,\s*\$3,\s*\$4,\s*\$5,\s*\$6\)\s*$`

	now := time.Now()
	mock.ExpectExec(q).
		WithArgs(int64(7), "hash123", sqlmock.AnyArg(), sqlmock.AnyArg(), "203.0.113.9", "agent").
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.Insert(context.Background(), &models.RefreshToken{
		UserID:    7,
		TokenHash: "hash123",
		ExpiresAt: now.Add(time.Hour),
		CreatedAt: now,
		IPAddress: "203.0.113.9",
		UserAgent: "agent",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestInsert_DBError(t *testing.T) {
	repo, mock, db := newTokenRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`INSERT\s+INTO\s+refresh_tokens`).
		WillReturnError(errors.New("db down"))

	err := repo.Insert(context.Background(), &models.RefreshToken{UserID: 7, TokenHash: "h"})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestFindActiveByHash_Found(t *testing.T) {
	repo, mock, db := newTokenRepoWithMock(t)
	defer db.Close()

	q := `(?s)^\s*SELECT\s+.*FROM\s+refresh_tokens\s+WHERE\s+token_hash\s*=\s*\$1\s+AND\s+revoked\s*=\s*false\s+AND\s+expires_at\s*>\s*\$2\s*$`

	now := time.Now()
	expires := now.Add(time.Hour)
	rows := sqlmock.NewRows([]string{
		"id", "user_id", "token_hash", "expires_at", "revoked", "revoked_at",
		"created_at", "ip_address", "user_agent",
	}).AddRow(int64(1), int64(7), "hash123", expires, false, nil, now, "", "")

	mock.ExpectQuery(q).
		WithArgs("hash123", sqlmock.AnyArg()).
		WillReturnRows(rows)

	got, err := repo.FindActiveByHash(context.Background(), "hash123", now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.UserID != 7 || !got.ExpiresAt.Equal(expires) || got.Revoked {
		t.Fatalf("unexpected row: %+v", got)
	}
	if got.RevokedAt != nil {
		t.Fatalf("expected nil RevokedAt, got %v", got.RevokedAt)
	}
}

func TestFindActiveByHash_NotFound(t *testing.T) {
	repo, mock, db := newTokenRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT\s+.*FROM\s+refresh_tokens`).
		WithArgs("missing", sqlmock.AnyArg()).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindActiveByHash(context.Background(), "missing", time.Now())
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("want repository.ErrNotFound, got %v", err)
	}
}

func TestRevokeByHash_RowChanged(t *testing.T) {
	repo, mock, db := newTokenRepoWithMock(t)
	defer db.Close()

	q := `(?s)^\s*UPDATE\s+refresh_tokens\s+SET\s+revoked\s*=\s*true,\s*revoked_at\s*=\s*\$2\s+WHERE\s+token_hash\s*=\s*\$1\s+AND\s+revoked\s*=\s*false\s*$`

	mock.ExpectExec(q).
		WithArgs("hash123", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	changed, err := repo.RevokeByHash(context.Background(), "hash123", time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !changed {
		t.Fatal("expected changed=true")
	}
}

func TestRevokeByHash_AlreadyRevoked(t *testing.T) {
	repo, mock, db := newTokenRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE\s+refresh_tokens`).
		WithArgs("hash123", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	changed, err := repo.RevokeByHash(context.Background(), "hash123", time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if changed {
		t.Fatal("expected changed=false for already-revoked token")
	}
}

func TestRevokeAllForUser_ReturnsAffectedCount(t *testing.T) {
	repo, mock, db := newTokenRepoWithMock(t)
	defer db.Close()

	q := `(?s)^\s*UPDATE\s+refresh_tokens\s+SET\s+revoked\s*=\s*true,\s*revoked_at\s*=\s*\$2\s+WHERE\s+user_id\s*=\s*\$1\s+AND\s+revoked\s*=\s*false\s*$`

	mock.ExpectExec(q).
		WithArgs(int64(7), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 3))

	count, err := repo.RevokeAllForUser(context.Background(), 7, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 3 {
		t.Fatalf("want 3 rows affected, got %d", count)
	}
}

func TestDeleteExpired(t *testing.T) {
	repo, mock, db := newTokenRepoWithMock(t)
	defer db.Close()

	q := `(?s)^\s*DELETE\s+FROM\s+refresh_tokens\s+WHERE\s+expires_at\s*<\s*\$1\s+OR\s+\(revoked\s*=\s*true\s+AND\s+revoked_at\s*<\s*\$2\)\s*$`

	mock.ExpectExec(q).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 5))

	deleted, err := repo.DeleteExpired(context.Background(), time.Now(), 720*time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if deleted != 5 {
		t.Fatalf("want 5 rows deleted, got %d", deleted)
	}
}
