package models

import (
	"time"
)

// User is the full user row as stored in the primary datastore, including
// the credential hash. It never crosses the cache boundary.
type User struct {
	ID           int64     `json:"id" dynamodbav:"id"`
	Email        string    `json:"email" dynamodbav:"email"`
	Username     string    `json:"username" dynamodbav:"username"`
	Phone        string    `json:"phone,omitempty" dynamodbav:"phone,omitempty"`
	Role         string    `json:"role" dynamodbav:"role"`
	PasswordHash string    `json:"-" dynamodbav:"password_hash"`
	CreatedAt    time.Time `json:"created_at" dynamodbav:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" dynamodbav:"updated_at"`
}

// CachedUser is the serialized subset of User that lives in the cache.
// The credential hash is excluded by the type itself, not by convention.
type CachedUser struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Username  string    `json:"username"`
	Phone     string    `json:"phone,omitempty"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Public returns the cacheable view of the user.
func (u *User) Public() *CachedUser {
	return &CachedUser{
		ID:        u.ID,
		Email:     u.Email,
		Username:  u.Username,
		Phone:     u.Phone,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}
