package models

import "time"

// Session backs one locally signed request/refresh token pair.
// Only sha256 fingerprints of the tokens are stored.
type Session struct {
	// ID is a random UUID, embedded into both tokens.
	ID string `gorm:"primaryKey;size:36"`
	// UserID is the owner of the session.
	UserID uint64 `gorm:"not null;index"`
	// User is the associated user, sessions go away with it (CASCADE).
	User User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	// RequestHash is the fingerprint of the request token.
	RequestHash string `gorm:"size:64;not null;uniqueIndex"`
	// RefreshHash is the fingerprint of the refresh token.
	RefreshHash string `gorm:"size:64;not null;uniqueIndex"`
	// Active is cleared on logout and refresh.
	Active bool `gorm:"not null;default:true"`
	// ExpiresAt is the expiry of the request token.
	ExpiresAt time.Time `gorm:"not null"`
	// RefreshExpiresAt is the expiry of the refresh token.
	RefreshExpiresAt time.Time `gorm:"not null"`
	// CreatedAt is the timestamp when the session was opened (managed by GORM).
	CreatedAt time.Time
}

// TableName overrides GORM's default pluralized table naming.
func (Session) TableName() string {
	return "auth_sessions"
}

// All returns every model for AutoMigrate, in dependency order.
func All() []any {
	return []any{&User{}, &Group{}, &UserGroup{}, &Session{}}
}
