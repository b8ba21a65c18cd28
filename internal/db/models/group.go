package models

import "time"

// Group represents a directory group copied into the local store by a sync pass.
// Groups are keyed by their source and external identifier.
type Group struct {
	// ID is the unique identifier for the group.
	ID uint `gorm:"primaryKey"`
	// Name is the display name of the group as it appears in the directory.
	Name string `gorm:"size:100;not null"`
	// ExternalID is the external identifier for the group (DN for LDAP, name for Crowd).
	// Combined with Source, this forms a unique constraint.
	ExternalID string `gorm:"size:255;uniqueIndex:idx_source_external"`
	// Source is the name of the provider the group was synced from.
	Source string `gorm:"type:varchar(20);not null;uniqueIndex:idx_source_external"`
	// CreatedAt is the timestamp when the group was created (managed by GORM).
	CreatedAt time.Time
	// UpdatedAt is the timestamp when the group was last updated (managed by GORM).
	UpdatedAt time.Time
}

// TableName overrides GORM's default pluralized table naming.
func (Group) TableName() string {
	return "groups"
}
