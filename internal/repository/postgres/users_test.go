package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/authcore/authcore/internal/repository"
	"github.com/sirupsen/logrus"
)

func newUserRepoWithMock(t *testing.T) (*UserRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return NewUserRepository(db, logger), mock, db
}

func userRows() *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "email", "username", "phone", "role", "created_at", "updated_at",
	}).AddRow(int64(42), "alice@example.com", "alice", "+15550100", "user", now, now)
}

func TestGetByID_Found(t *testing.T) {
	repo, mock, db := newUserRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`^SELECT\s+.*FROM\s+users\s+WHERE\s+id\s*=\s*\$1$`).
		WithArgs(int64(42)).
		WillReturnRows(userRows())

	user, err := repo.GetByID(context.Background(), 42)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user.ID != 42 || user.Email != "alice@example.com" {
		t.Fatalf("unexpected user: %+v", user)
	}
}

func TestGetByID_NotFound(t *testing.T) {
	repo, mock, db := newUserRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`FROM\s+users\s+WHERE\s+id`).
		WithArgs(int64(99)).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), 99)
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("want repository.ErrNotFound, got %v", err)
	}
}

func TestGetByEmail_CaseInsensitiveQuery(t *testing.T) {
	repo, mock, db := newUserRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`FROM\s+users\s+WHERE\s+lower\(email\)\s*=\s*lower\(\$1\)`).
		WithArgs("Alice@Example.com").
		WillReturnRows(userRows())

	user, err := repo.GetByEmail(context.Background(), "Alice@Example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user.Username != "alice" {
		t.Fatalf("unexpected user: %+v", user)
	}
}

func TestGetByUsername_CaseInsensitiveQuery(t *testing.T) {
	repo, mock, db := newUserRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`FROM\s+users\s+WHERE\s+lower\(username\)\s*=\s*lower\(\$1\)`).
		WithArgs("ALICE").
		WillReturnRows(userRows())

	if _, err := repo.GetByUsername(context.Background(), "ALICE"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestGetByPhone(t *testing.T) {
	repo, mock, db := newUserRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`FROM\s+users\s+WHERE\s+phone\s*=\s*\$1`).
		WithArgs("+15550100").
		WillReturnRows(userRows())

	user, err := repo.GetByPhone(context.Background(), "+15550100")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user.Phone != "+15550100" {
		t.Fatalf("unexpected user: %+v", user)
	}
}

func TestGetCredential(t *testing.T) {
	repo, mock, db := newUserRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`^SELECT\s+password_hash\s+FROM\s+users\s+WHERE\s+id\s*=\s*\$1$`).
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"password_hash"}).AddRow("$2a$10$abcdef"))

	hash, err := repo.GetCredential(context.Background(), 42)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hash != "$2a$10$abcdef" {
		t.Fatalf("unexpected hash: %q", hash)
	}
}

func TestGetCredential_NotFound(t *testing.T) {
	repo, mock, db := newUserRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT\s+password_hash`).
		WithArgs(int64(99)).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetCredential(context.Background(), 99)
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("want repository.ErrNotFound, got %v", err)
	}
}

func TestGetByID_DBErrorIsWrapped(t *testing.T) {
	repo, mock, db := newUserRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`FROM\s+users`).
		WithArgs(int64(1)).
		WillReturnError(errors.New("connection reset"))

	_, err := repo.GetByID(context.Background(), 1)
	if err == nil || errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("want wrapped db error, got %v", err)
	}
}
