// Package memory provides in-memory repository implementations backed by
// maps. They honor the same contracts as the postgres and dynamo
// repositories and are intended for tests and single-process experiments.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/authcore/authcore/internal/models"
	"github.com/authcore/authcore/internal/repository"
)

type UserRepository struct {
	mu    sync.RWMutex
	users map[int64]*models.User

	// Queries counts datastore reads, letting cache tests assert on
	// fall-through behavior.
	queries int64
}

func NewUserRepository() *UserRepository {
	return &UserRepository{users: make(map[int64]*models.User)}
}

func (r *UserRepository) Add(user *models.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *user
	r.users[user.ID] = &copied
}

func (r *UserRepository) Queries() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.queries
}

func (r *UserRepository) find(match func(*models.User) bool) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queries++
	for _, user := range r.users {
		if match(user) {
			copied := *user
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *UserRepository) GetByID(_ context.Context, id int64) (*models.User, error) {
	return r.find(func(u *models.User) bool { return u.ID == id })
}

func (r *UserRepository) GetByEmail(_ context.Context, email string) (*models.User, error) {
	return r.find(func(u *models.User) bool { return strings.EqualFold(u.Email, email) })
}

func (r *UserRepository) GetByUsername(_ context.Context, username string) (*models.User, error) {
	return r.find(func(u *models.User) bool { return strings.EqualFold(u.Username, username) })
}

func (r *UserRepository) GetByPhone(_ context.Context, phone string) (*models.User, error) {
	return r.find(func(u *models.User) bool { return u.Phone != "" && u.Phone == phone })
}

func (r *UserRepository) GetCredential(_ context.Context, id int64) (string, error) {
	user, err := r.find(func(u *models.User) bool { return u.ID == id })
	if err != nil {
		return "", err
	}
	return user.PasswordHash, nil
}

var _ repository.UserRepository = (*UserRepository)(nil)

type RefreshTokenRepository struct {
	mu     sync.Mutex
	tokens map[string]*models.RefreshToken
	nextID int64
}

func NewRefreshTokenRepository() *RefreshTokenRepository {
	return &RefreshTokenRepository{tokens: make(map[string]*models.RefreshToken)}
}

func (r *RefreshTokenRepository) Insert(_ context.Context, token *models.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tokens[token.TokenHash]; exists {
		return repository.ErrDuplicate
	}

	r.nextID++
	copied := *token
	copied.ID = r.nextID
	r.tokens[token.TokenHash] = &copied
	return nil
}

func (r *RefreshTokenRepository) FindActiveByHash(_ context.Context, hash string, now time.Time) (*models.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	token, ok := r.tokens[hash]
	if !ok || token.Revoked || !token.ExpiresAt.After(now) {
		return nil, repository.ErrNotFound
	}
	copied := *token
	return &copied, nil
}

func (r *RefreshTokenRepository) RevokeByHash(_ context.Context, hash string, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	token, ok := r.tokens[hash]
	if !ok || token.Revoked {
		return false, nil
	}
	token.Revoked = true
	revokedAt := now
	token.RevokedAt = &revokedAt
	return true, nil
}

func (r *RefreshTokenRepository) RevokeAllForUser(_ context.Context, userID int64, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var count int64
	for _, token := range r.tokens {
		if token.UserID == userID && !token.Revoked {
			token.Revoked = true
			revokedAt := now
			token.RevokedAt = &revokedAt
			count++
		}
	}
	return count, nil
}

func (r *RefreshTokenRepository) DeleteExpired(_ context.Context, now time.Time, revokedRetention time.Duration) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := now.Add(-revokedRetention)
	var deleted int64
	for hash, token := range r.tokens {
		if token.ExpiresAt.Before(now) || (token.Revoked && token.RevokedAt != nil && token.RevokedAt.Before(cutoff)) {
			delete(r.tokens, hash)
			deleted++
		}
	}
	return deleted, nil
}

// ActiveCount reports how many unrevoked, unexpired tokens a user holds.
func (r *RefreshTokenRepository) ActiveCount(userID int64, now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for _, token := range r.tokens {
		if token.UserID == userID && !token.Revoked && token.ExpiresAt.After(now) {
			count++
		}
	}
	return count
}

var _ repository.RefreshTokenRepository = (*RefreshTokenRepository)(nil)
