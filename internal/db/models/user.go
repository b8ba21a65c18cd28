package models

import (
	"fmt"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/rs/zerolog/log"
)

// User represents a locally known user account.
// Users either authenticate with a local password or are created by a directory,
// SSO or OAuth2 provider on first sight. The pair (Username, Source) is unique.
type User struct {
	// ID is the unique identifier for the user.
	ID uint64 `gorm:"primaryKey"`
	// Active indicates whether the user account is active and can log in.
	Active bool `gorm:"not null;default:true"`
	// Username is the login name within its source.
	Username string `gorm:"size:100;not null;uniqueIndex:idx_user_source"`
	// Source is the name of the provider owning this account.
	Source string `gorm:"type:varchar(20);not null;default:'local';uniqueIndex:idx_user_source"`
	// Email is the user's email address.
	Email string `gorm:"size:255"`
	// Password is the Argon2id hashed password (only used for local users).
	Password string `gorm:"size:255"`
	// DisplayName is the full name shown to other users.
	DisplayName string `gorm:"size:200"`
	// Role is the coarse authorization level, USER or ADMIN.
	Role string `gorm:"type:varchar(20);not null;default:'USER'"`
	// ExternalID is the identifier in the source (LDAP DN, OIDC sub claim, Crowd name).
	ExternalID string `gorm:"size:255"`
	// CreatedAt is the timestamp when the user was created (managed by GORM).
	CreatedAt time.Time
	// UpdatedAt is the timestamp when the user was last updated (managed by GORM).
	UpdatedAt time.Time
}

// HashPassword hashes a plaintext password using the Argon2id algorithm
// with the default parameters.
func HashPassword(password string) (string, error) {
	hashedPassword, err := argon2id.CreateHash(password, argon2id.DefaultParams)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}

	return hashedPassword, nil
}

// VerifyPassword verifies a plaintext password against the user's stored hashed password.
// Users without a stored password never match.
func (u *User) VerifyPassword(password string) bool {
	if u.Password == "" {
		return false
	}

	match, err := argon2id.ComparePasswordAndHash(password, u.Password)
	if err != nil {
		log.Error().Msgf("failed to verify password: %v", err)
		return false
	}

	return match
}
