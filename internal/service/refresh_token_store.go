package service

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/authcore/authcore/internal/autherrors"
	"github.com/authcore/authcore/internal/models"
	"github.com/authcore/authcore/internal/repository"
	"github.com/sirupsen/logrus"
)

// RefreshTokenStore persists refresh tokens as one-way hashes and answers
// lifecycle questions about them. The plaintext token exists only on the
// wire and in the client's hands; a row is created per issuance and only
// ever mutated to flip its revoked flag.
type RefreshTokenStore struct {
	repo             repository.RefreshTokenRepository
	validity         time.Duration
	revokedRetention time.Duration
	logger           *logrus.Logger
	now              func() time.Time
}

func NewRefreshTokenStore(repo repository.RefreshTokenRepository, validity, revokedRetention time.Duration, logger *logrus.Logger) *RefreshTokenStore {
	return &RefreshTokenStore{
		repo:             repo,
		validity:         validity,
		revokedRetention: revokedRetention,
		logger:           logger,
		now:              time.Now,
	}
}

// HashToken derives the deterministic storage key for a token:
// SHA-256, base64 raw-URL encoded.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// Store persists the hash of token for userID. A duplicate hash means two
// issuances raced on the same token value, which must fail loudly.
func (s *RefreshTokenStore) Store(ctx context.Context, userID int64, token, ip, userAgent string) error {
	now := s.now()
	row := &models.RefreshToken{
		UserID:    userID,
		TokenHash: HashToken(token),
		ExpiresAt: now.Add(s.validity),
		CreatedAt: now,
		IPAddress: ip,
		UserAgent: userAgent,
	}

	if err := s.repo.Insert(ctx, row); err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Error("Failed to persist refresh token")
		return fmt.Errorf("%w: %v", autherrors.ErrStoreWriteFailure, err)
	}
	return nil
}

// Verify returns the owning user id only when the token's hash matches a
// row that is neither revoked nor expired. Revoked, expired, and unknown
// tokens are indistinguishable to the caller.
func (s *RefreshTokenStore) Verify(ctx context.Context, token string) (int64, error) {
	row, err := s.repo.FindActiveByHash(ctx, HashToken(token), s.now())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return 0, autherrors.ErrAuthenticationFailed
		}
		return 0, fmt.Errorf("refresh token lookup failed: %w", err)
	}
	return row.UserID, nil
}

// Revoke marks the token's row revoked and reports whether anything
// changed. Revoking twice is safe; the second call returns false.
func (s *RefreshTokenStore) Revoke(ctx context.Context, token string) (bool, error) {
	changed, err := s.repo.RevokeByHash(ctx, HashToken(token), s.now())
	if err != nil {
		return false, fmt.Errorf("%w: %v", autherrors.ErrStoreWriteFailure, err)
	}
	return changed, nil
}

// RevokeAllForUser bulk-revokes every active token for the user, e.g. on
// password change. Returns the number of tokens revoked.
func (s *RefreshTokenStore) RevokeAllForUser(ctx context.Context, userID int64) (int64, error) {
	count, err := s.repo.RevokeAllForUser(ctx, userID, s.now())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", autherrors.ErrStoreWriteFailure, err)
	}
	if count > 0 {
		s.logger.WithFields(logrus.Fields{"user_id": userID, "count": count}).Info("Bulk-revoked refresh tokens")
	}
	return count, nil
}

// CleanupExpired deletes rows past expiry and revoked rows past the
// retention window. Runs from the cleanup task, never inline with request
// handling.
func (s *RefreshTokenStore) CleanupExpired(ctx context.Context) (int64, error) {
	deleted, err := s.repo.DeleteExpired(ctx, s.now(), s.revokedRetention)
	if err != nil {
		return 0, fmt.Errorf("token cleanup failed: %w", err)
	}
	return deleted, nil
}
