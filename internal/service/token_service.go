package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/authcore/authcore/internal/autherrors"
	"github.com/authcore/authcore/internal/cache"
	"github.com/authcore/authcore/internal/config"
	"github.com/authcore/authcore/internal/models"
	"github.com/authcore/authcore/internal/repository"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

const (
	tokenTypeAccess = "access"

	// refreshTokenBytes is the entropy of an opaque refresh token (256 bits).
	refreshTokenBytes = 32
)

// Claims is the access token claim set: subject user id, role, and the
// standard registered claims.
type Claims struct {
	UserID int64  `json:"uid"`
	Role   string `json:"role"`
	Type   string `json:"type"`
	jwt.RegisteredClaims
}

// TokenService issues and validates access tokens (stateless, HMAC-signed)
// and orchestrates the refresh token lifecycle against RefreshTokenStore.
// Access tokens die at expiry and cannot be revoked early; revocation
// exists only for refresh tokens.
type TokenService struct {
	secretKey     []byte
	accessExpiry  time.Duration
	refreshExpiry time.Duration
	store         *RefreshTokenStore
	users         *cache.UserCache
	userRepo      repository.UserRepository
	logger        *logrus.Logger
	now           func() time.Time
}

func NewTokenService(
	cfg *config.JWTConfig,
	store *RefreshTokenStore,
	users *cache.UserCache,
	userRepo repository.UserRepository,
	logger *logrus.Logger,
) (*TokenService, error) {
	secretKey := []byte(cfg.SecretKey)
	if len(secretKey) < 32 {
		return nil, fmt.Errorf("secret key must be at least 32 bytes")
	}
	if cfg.RefreshExpiry <= cfg.AccessExpiry {
		return nil, fmt.Errorf("refresh expiry must be longer than access expiry")
	}

	return &TokenService{
		secretKey:     secretKey,
		accessExpiry:  cfg.AccessExpiry,
		refreshExpiry: cfg.RefreshExpiry,
		store:         store,
		users:         users,
		userRepo:      userRepo,
		logger:        logger,
		now:           time.Now,
	}, nil
}

// IssueAccessToken signs a short-lived access token for the user. Signing
// can only fail on misconfiguration, which NewTokenService rules out, so a
// failure here is reported but never expected per request.
func (s *TokenService) IssueAccessToken(userID int64, role string) (string, error) {
	now := s.now()
	claims := &Claims{
		UserID: userID,
		Role:   role,
		Type:   tokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprintf("%d", userID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessExpiry)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secretKey)
	if err != nil {
		s.logger.WithError(err).Error("Failed to sign access token")
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, nil
}

// DecodeAccessToken parses and verifies an access token, returning
// ErrTokenExpired for a stale one and ErrTokenInvalid for anything
// malformed, mis-signed, or of the wrong type.
func (s *TokenService) DecodeAccessToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secretKey, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, autherrors.ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", autherrors.ErrTokenInvalid, err)
	}

	if !token.Valid || claims.Type != tokenTypeAccess {
		return nil, autherrors.ErrTokenInvalid
	}
	return claims, nil
}

// IssueRefreshToken mints an opaque high-entropy refresh token. The value
// is only meaningful to the store, which persists its hash.
func (s *TokenService) IssueRefreshToken() (string, error) {
	buf := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate refresh token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// Login verifies the email/password pair and, on success, issues and
// persists a fresh token pair. Every failure mode surfaces as the same
// generic authentication error.
func (s *TokenService) Login(ctx context.Context, email, password, ip, userAgent string) (*models.TokenPair, *models.CachedUser, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, autherrors.ErrUserNotFound) {
			return nil, nil, autherrors.ErrAuthenticationFailed
		}
		return nil, nil, err
	}

	// The cache never holds credentials; the hash always comes from the
	// datastore directly.
	hash, err := s.userRepo.GetCredential(ctx, user.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, autherrors.ErrAuthenticationFailed
		}
		return nil, nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return nil, nil, autherrors.ErrAuthenticationFailed
	}

	pair, err := s.issuePair(ctx, user.ID, user.Role, ip, userAgent)
	if err != nil {
		return nil, nil, err
	}
	return pair, user, nil
}

// Rotate implements the rotation protocol. The new refresh token is
// persisted before the old one is revoked, so a crash in between never
// leaves the user with zero valid tokens. If the old token turns out to be
// already revoked (a concurrent rotation won the race), the just-persisted
// token is revoked again and the call fails without issuing anything.
func (s *TokenService) Rotate(ctx context.Context, refreshToken, ip, userAgent string) (*models.TokenPair, error) {
	userID, err := s.store.Verify(ctx, refreshToken)
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, autherrors.ErrUserNotFound) {
			return nil, autherrors.ErrAuthenticationFailed
		}
		return nil, err
	}

	newRefresh, err := s.IssueRefreshToken()
	if err != nil {
		return nil, err
	}
	if err := s.store.Store(ctx, userID, newRefresh, ip, userAgent); err != nil {
		return nil, err
	}

	revoked, err := s.store.Revoke(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	if !revoked {
		// Lost a concurrent rotation race. Withdraw the token we just
		// persisted; no pair is issued for this attempt.
		if _, rerr := s.store.Revoke(ctx, newRefresh); rerr != nil {
			s.logger.WithError(rerr).WithField("user_id", userID).Warn("Failed to withdraw refresh token after lost rotation race")
		}
		return nil, autherrors.ErrAuthenticationFailed
	}

	access, err := s.IssueAccessToken(userID, user.Role)
	if err != nil {
		return nil, err
	}

	return &models.TokenPair{
		AccessToken:  access,
		RefreshToken: newRefresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.accessExpiry.Seconds()),
	}, nil
}

// Logout revokes a single refresh token. Revoking an unknown or already
// revoked token is not an error.
func (s *TokenService) Logout(ctx context.Context, refreshToken string) error {
	_, err := s.store.Revoke(ctx, refreshToken)
	return err
}

// LogoutAll revokes every active refresh token for the user and returns
// how many were revoked.
func (s *TokenService) LogoutAll(ctx context.Context, userID int64) (int64, error) {
	return s.store.RevokeAllForUser(ctx, userID)
}

func (s *TokenService) issuePair(ctx context.Context, userID int64, role, ip, userAgent string) (*models.TokenPair, error) {
	access, err := s.IssueAccessToken(userID, role)
	if err != nil {
		return nil, err
	}

	refresh, err := s.IssueRefreshToken()
	if err != nil {
		return nil, err
	}
	if err := s.store.Store(ctx, userID, refresh, ip, userAgent); err != nil {
		return nil, err
	}

	return &models.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.accessExpiry.Seconds()),
	}, nil
}
