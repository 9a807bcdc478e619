package models

import (
	"time"

	"github.com/google/uuid"
)

// User represents a user in the system
type User struct {
	ID           uuid.UUID  `json:"id" db:"id"`
	Email        string     `json:"email" db:"email"`
	Username     string     `json:"username" db:"username"`
	PasswordHash string     `json:"-" db:"password_hash"` // Never expose
	IsActive     bool       `json:"is_active" db:"is_active"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`
	LastLoginAt  *time.Time `json:"last_login_at" db:"last_login_at"`
}

// UserSession represents an active authentication session
type UserSession struct {
	ID               uuid.UUID  `json:"id" db:"id"`
	UserID           uuid.UUID  `json:"user_id" db:"user_id"`
	TokenHash        string     `json:"-" db:"token_hash"`
	RefreshTokenHash string     `json:"-" db:"refresh_token_hash"`
	ExpiresAt        time.Time  `json:"expires_at" db:"expires_at"`
	RefreshExpiresAt time.Time  `json:"refresh_expires_at" db:"refresh_expires_at"`
	IPAddress        string     `json:"ip_address" db:"ip_address"`
	UserAgent        string     `json:"user_agent" db:"user_agent"`
	DeviceName       string     `json:"device_name" db:"device_name"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
	LastActivity     time.Time  `json:"last_activity" db:"last_activity"`
	RevokedAt        *time.Time `json:"revoked_at" db:"revoked_at"`
}

// UserContext carries the authenticated identity through request handling
type UserContext struct {
	UserID   uuid.UUID `json:"user_id"`
	Username string    `json:"username"`
	Email    string    `json:"email"`
}
