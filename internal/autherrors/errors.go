// Package autherrors defines the sentinel errors shared across the
// authentication core. Callers match them with errors.Is.
package autherrors

import "errors"

var (
	// Credential and token errors. Handlers collapse all of these into a
	// single generic authentication failure so responses never reveal
	// which specific check failed.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenExpired       = errors.New("token expired")
	ErrTokenInvalid       = errors.New("token invalid")
	ErrTokenRevoked       = errors.New("token revoked")
	ErrUserNotFound       = errors.New("user not found")

	// ErrAuthenticationFailed is the generic condition surfaced to callers
	// on any authentication-path failure.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// Cache errors. Non-fatal: lookups always degrade to the datastore.
	ErrCacheMiss        = errors.New("cache miss")
	ErrCacheUnavailable = errors.New("cache unavailable")

	// ErrStoreWriteFailure covers failed token writes. Fatal to the
	// request, surfaced, never retried.
	ErrStoreWriteFailure = errors.New("store write failure")
)
