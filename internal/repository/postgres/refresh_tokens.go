package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/authcore/authcore/internal/models"
	"github.com/authcore/authcore/internal/repository"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"
)

// pgUniqueViolation is the SQLSTATE for unique constraint violations.
const pgUniqueViolation = "23505"

type RefreshTokenRepository struct {
	db     DBTX
	logger *logrus.Logger
}

func NewRefreshTokenRepository(db DBTX, logger *logrus.Logger) *RefreshTokenRepository {
	return &RefreshTokenRepository{db: db, logger: logger}
}

func (r *RefreshTokenRepository) Insert(ctx context.Context, token *models.RefreshToken) error {
	query := `
		INSERT INTO refresh_tokens (user_id, token_hash, expires_at, created_at, ip_address, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.ExecContext(ctx, query,
		token.UserID, token.TokenHash, token.ExpiresAt, token.CreatedAt,
		token.IPAddress, token.UserAgent,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return repository.ErrDuplicate
		}
		r.logger.WithError(err).Error("Failed to insert refresh token")
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *RefreshTokenRepository) FindActiveByHash(ctx context.Context, hash string, now time.Time) (*models.RefreshToken, error) {
	query := `
		SELECT id, user_id, token_hash, expires_at, revoked, revoked_at, created_at,
		       COALESCE(ip_address, ''), COALESCE(user_agent, '')
		FROM refresh_tokens
		WHERE token_hash = $1 AND revoked = false AND expires_at > $2
	`
	token := &models.RefreshToken{}
	err := r.db.QueryRowContext(ctx, query, hash, now).Scan(
		&token.ID, &token.UserID, &token.TokenHash, &token.ExpiresAt,
		&token.Revoked, &token.RevokedAt, &token.CreatedAt,
		&token.IPAddress, &token.UserAgent,
	)
	if err != nil {
		// A revoked or expired row scans the same as an absent one.
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		r.logger.WithError(err).Error("Failed to query refresh token")
		return nil, fmt.Errorf("db error: %w", err)
	}
	return token, nil
}

func (r *RefreshTokenRepository) RevokeByHash(ctx context.Context, hash string, now time.Time) (bool, error) {
	query := `
		UPDATE refresh_tokens
		SET revoked = true, revoked_at = $2
		WHERE token_hash = $1 AND revoked = false
	`
	result, err := r.db.ExecContext(ctx, query, hash, now)
	if err != nil {
		r.logger.WithError(err).Error("Failed to revoke refresh token")
		return false, fmt.Errorf("db error: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return affected > 0, nil
}

func (r *RefreshTokenRepository) RevokeAllForUser(ctx context.Context, userID int64, now time.Time) (int64, error) {
	query := `
		UPDATE refresh_tokens
		SET revoked = true, revoked_at = $2
		WHERE user_id = $1 AND revoked = false
	`
	result, err := r.db.ExecContext(ctx, query, userID, now)
	if err != nil {
		r.logger.WithError(err).Error("Failed to bulk-revoke refresh tokens")
		return 0, fmt.Errorf("db error: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return affected, nil
}

func (r *RefreshTokenRepository) DeleteExpired(ctx context.Context, now time.Time, revokedRetention time.Duration) (int64, error) {
	query := `
		DELETE FROM refresh_tokens
		WHERE expires_at < $1 OR (revoked = true AND revoked_at < $2)
	`
	result, err := r.db.ExecContext(ctx, query, now, now.Add(-revokedRetention))
	if err != nil {
		r.logger.WithError(err).Error("Failed to delete expired refresh tokens")
		return 0, fmt.Errorf("db error: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return affected, nil
}
