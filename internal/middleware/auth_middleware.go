package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/authcore/authcore/internal/cache"
	"github.com/authcore/authcore/internal/models"
	"github.com/authcore/authcore/internal/service"
	"github.com/sirupsen/logrus"
)

type contextKey string

const (
	claimsKey contextKey = "claims"
	userKey   contextKey = "user"
)

type AuthMiddleware struct {
	tokens *service.TokenService
	users  *cache.UserCache
	logger *logrus.Logger
}

func NewAuthMiddleware(tokens *service.TokenService, users *cache.UserCache, logger *logrus.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		tokens: tokens,
		users:  users,
		logger: logger,
	}
}

// RequireAuth decodes the Bearer access token, resolves the subject's
// profile through the user cache, and stashes both on the request context.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			m.respondUnauthorized(w)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			m.respondUnauthorized(w)
			return
		}

		claims, err := m.tokens.DecodeAccessToken(parts[1])
		if err != nil {
			m.logger.WithError(err).Debug("Access token verification failed")
			m.respondUnauthorized(w)
			return
		}

		user, err := m.users.GetByID(r.Context(), claims.UserID)
		if err != nil {
			m.logger.WithError(err).WithField("user_id", claims.UserID).Debug("Subject lookup failed")
			m.respondUnauthorized(w)
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey, claims)
		ctx = context.WithValue(ctx, userKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ClaimsFromContext returns the access token claims set by RequireAuth.
func ClaimsFromContext(ctx context.Context) (*service.Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*service.Claims)
	return claims, ok
}

// UserFromContext returns the cached user record set by RequireAuth.
func UserFromContext(ctx context.Context) (*models.CachedUser, bool) {
	user, ok := ctx.Value(userKey).(*models.CachedUser)
	return user, ok
}

func (m *AuthMiddleware) respondUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":{"code":"AUTHENTICATION_FAILED","message":"Authentication failed"}}`))
}
