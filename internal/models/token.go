package models

import "time"

// TokenPair is what a successful login or refresh returns to the client.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// RefreshToken is the persisted server-side record of a refresh token.
// Only the SHA-256 hash of the opaque token is stored; the plaintext stays
// with the client. Rotation appends a new row, it never rewrites the hash
// of an existing one.
type RefreshToken struct {
	ID        int64      `json:"id" dynamodbav:"id"`
	UserID    int64      `json:"user_id" dynamodbav:"user_id"`
	TokenHash string     `json:"token_hash" dynamodbav:"token_hash"`
	ExpiresAt time.Time  `json:"expires_at" dynamodbav:"expires_at"`
	Revoked   bool       `json:"revoked" dynamodbav:"revoked"`
	RevokedAt *time.Time `json:"revoked_at,omitempty" dynamodbav:"revoked_at,omitempty"`
	CreatedAt time.Time  `json:"created_at" dynamodbav:"created_at"`
	IPAddress string     `json:"ip_address,omitempty" dynamodbav:"ip_address,omitempty"`
	UserAgent string     `json:"user_agent,omitempty" dynamodbav:"user_agent,omitempty"`
}
