package handlers

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/authcore/authcore/internal/autherrors"
	"github.com/authcore/authcore/internal/cache"
	"github.com/authcore/authcore/internal/middleware"
	"github.com/authcore/authcore/internal/models"
	"github.com/authcore/authcore/internal/service"
	"github.com/sirupsen/logrus"
)

type AuthHandlers struct {
	tokens *service.TokenService
	users  *cache.UserCache
	logger *logrus.Logger
}

func NewAuthHandlers(tokens *service.TokenService, users *cache.UserCache, logger *logrus.Logger) *AuthHandlers {
	return &AuthHandlers{
		tokens: tokens,
		users:  users,
		logger: logger,
	}
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken  string             `json:"access_token"`
	RefreshToken string             `json:"refresh_token"`
	TokenType    string             `json:"token_type"`
	ExpiresIn    int64              `json:"expires_in"`
	User         *models.CachedUser `json:"user"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type LogoutAllResponse struct {
	RevokedCount int64 `json:"revoked_count"`
}

type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}

	email := strings.TrimSpace(req.Email)
	if email == "" || req.Password == "" {
		h.respondWithError(w, http.StatusBadRequest, "INVALID_REQUEST", "Email and password are required")
		return
	}

	pair, user, err := h.tokens.Login(r.Context(), email, req.Password, clientIP(r), r.UserAgent())
	if err != nil {
		h.respondAuthError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, LoginResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    pair.TokenType,
		ExpiresIn:    pair.ExpiresIn,
		User:         user,
	})
}

func (h *AuthHandlers) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}

	if req.RefreshToken == "" {
		h.respondWithError(w, http.StatusBadRequest, "MISSING_TOKEN", "Refresh token is required")
		return
	}

	pair, err := h.tokens.Rotate(r.Context(), req.RefreshToken, clientIP(r), r.UserAgent())
	if err != nil {
		h.respondAuthError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, pair)
}

func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	var req LogoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}

	if req.RefreshToken == "" {
		h.respondWithError(w, http.StatusBadRequest, "MISSING_TOKEN", "Refresh token is required")
		return
	}

	if err := h.tokens.Logout(r.Context(), req.RefreshToken); err != nil {
		h.logger.WithError(err).Error("Logout failed")
		h.respondWithError(w, http.StatusInternalServerError, "LOGOUT_FAILED", "Failed to revoke token")
		return
	}

	h.respondWithJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

// LogoutAll revokes every active refresh token of the authenticated user
// ("log out everywhere").
func (h *AuthHandlers) LogoutAll(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		h.respondWithError(w, http.StatusUnauthorized, "AUTHENTICATION_FAILED", "Authentication failed")
		return
	}

	count, err := h.tokens.LogoutAll(r.Context(), user.ID)
	if err != nil {
		h.logger.WithError(err).WithField("user_id", user.ID).Error("Bulk logout failed")
		h.respondWithError(w, http.StatusInternalServerError, "LOGOUT_FAILED", "Failed to revoke tokens")
		return
	}

	h.respondWithJSON(w, http.StatusOK, LogoutAllResponse{RevokedCount: count})
}

func (h *AuthHandlers) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		h.respondWithError(w, http.StatusUnauthorized, "AUTHENTICATION_FAILED", "Authentication failed")
		return
	}
	h.respondWithJSON(w, http.StatusOK, user)
}

// CacheStats reports user cache effectiveness counters. Admin surface.
func (h *AuthHandlers) CacheStats(w http.ResponseWriter, r *http.Request) {
	h.respondWithJSON(w, http.StatusOK, h.users.Stats())
}

// InvalidateUserCache drops every cached user entry. Admin surface, meant
// for migrations, never the request-serving path.
func (h *AuthHandlers) InvalidateUserCache(w http.ResponseWriter, r *http.Request) {
	if err := h.users.InvalidateAll(r.Context()); err != nil {
		h.respondWithError(w, http.StatusInternalServerError, "CACHE_INVALIDATION_FAILED", "Failed to invalidate cache")
		return
	}
	h.respondWithJSON(w, http.StatusOK, map[string]string{"message": "User cache invalidated"})
}

// respondAuthError maps service errors onto responses. Every
// authentication-path failure collapses into the same 401 so the response
// never reveals whether the email, password, or token was the problem.
func (h *AuthHandlers) respondAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, autherrors.ErrAuthenticationFailed),
		errors.Is(err, autherrors.ErrInvalidCredentials),
		errors.Is(err, autherrors.ErrTokenExpired),
		errors.Is(err, autherrors.ErrTokenInvalid),
		errors.Is(err, autherrors.ErrTokenRevoked),
		errors.Is(err, autherrors.ErrUserNotFound):
		h.respondWithError(w, http.StatusUnauthorized, "AUTHENTICATION_FAILED", "Authentication failed")
	case errors.Is(err, autherrors.ErrStoreWriteFailure):
		h.logger.WithError(err).Error("Token persistence failed")
		h.respondWithError(w, http.StatusInternalServerError, "STORE_WRITE_FAILURE", "Failed to persist token")
	default:
		h.logger.WithError(err).Error("Authentication request failed")
		h.respondWithError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
	}
}

func (h *AuthHandlers) respondWithJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.WithError(err).Error("Failed to encode response")
	}
}

func (h *AuthHandlers) respondWithError(w http.ResponseWriter, status int, code, message string) {
	h.respondWithJSON(w, status, ErrorResponse{Error: ErrorDetail{Code: code, Message: message}})
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
