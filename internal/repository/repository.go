// Package repository declares the datastore contracts for users and
// refresh tokens, plus the sentinel errors implementations return.
// Two implementations exist: a relational one (postgres) and a
// single-table one (dynamo). Everything above this package is oblivious
// to which engine is active.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/authcore/authcore/internal/models"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate is returned when an insert collides with a uniqueness
	// constraint, e.g. a racing insert of the same token hash.
	ErrDuplicate = errors.New("duplicate")
)

// UserRepository reads user records from the primary datastore.
type UserRepository interface {
	GetByID(ctx context.Context, id int64) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	GetByPhone(ctx context.Context, phone string) (*models.User, error)

	// GetCredential returns the password hash for the user. The cache
	// never holds credentials, so login always takes this path.
	GetCredential(ctx context.Context, id int64) (string, error)
}

// RefreshTokenRepository persists hashed refresh tokens. Implementations
// must enforce uniqueness on the token hash.
type RefreshTokenRepository interface {
	Insert(ctx context.Context, token *models.RefreshToken) error

	// FindActiveByHash returns the row for the hash only if it exists, is
	// not revoked, and has not expired as of now. Every other case is
	// ErrNotFound, indistinguishably.
	FindActiveByHash(ctx context.Context, hash string, now time.Time) (*models.RefreshToken, error)

	// RevokeByHash marks the row revoked if it is not already. It reports
	// whether a row actually changed; a second call is a no-op returning
	// false without error.
	RevokeByHash(ctx context.Context, hash string, now time.Time) (bool, error)

	// RevokeAllForUser bulk-revokes every active token owned by userID and
	// returns the number of rows affected.
	RevokeAllForUser(ctx context.Context, userID int64, now time.Time) (int64, error)

	// DeleteExpired removes rows past their expiry, plus revoked rows older
	// than the retention window, and returns the number deleted.
	DeleteExpired(ctx context.Context, now time.Time, revokedRetention time.Duration) (int64, error)
}
