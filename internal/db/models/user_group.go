package models

import "time"

// UserGroup is the many-to-many relationship between users and groups.
// Memberships of a group are replaced as a whole on every sync pass.
type UserGroup struct {
	// UserID is the ID of the user in this membership.
	UserID uint64 `gorm:"primaryKey;column:user_id"`
	// GroupID is the ID of the group in this membership.
	GroupID uint `gorm:"primaryKey;column:group_id"`
	// User is the associated user, memberships go away with it (CASCADE).
	User User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	// Group is the associated group, memberships go away with it (CASCADE).
	Group Group `gorm:"foreignKey:GroupID;constraint:OnDelete:CASCADE"`
	// CreatedAt is the timestamp when the user was added to the group (managed by GORM).
	CreatedAt time.Time
}

// TableName overrides GORM's default pluralized table naming.
func (UserGroup) TableName() string {
	return "user_groups"
}
