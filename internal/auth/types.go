package auth

import "time"

// Role is the coarse authorization level of a user.
type Role string

const (
	// RoleUser is assigned to every user by default.
	RoleUser Role = "USER"
	// RoleAdmin may trigger syncs and list users.
	RoleAdmin Role = "ADMIN"
)

// Source names of the built-in providers.
const (
	SourceLocal  = "local"
	SourceLDAP   = "ldap"
	SourceCrowd  = "crowd"
	SourceGitHub = "github"
	SourceGoogle = "google"
)

// User is a resolved, locally known user.
type User struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName,omitempty"`
	Email       string `json:"email,omitempty"`
	Source      string `json:"source"`
	Role        Role   `json:"role"`
}

// IsAdmin reports whether u has the admin role.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// UserSummary describes a user that may not exist locally yet.
type UserSummary struct {
	Username    string `json:"username"`
	DisplayName string `json:"displayName,omitempty"`
	Email       string `json:"email,omitempty"`
	Source      string `json:"source"`
	ExternalID  string `json:"externalId,omitempty"`
	Role        Role   `json:"role,omitempty"`
}

// DirectoryUser is one user of a directory sync pass.
type DirectoryUser struct {
	Username    string
	DisplayName string
	Email       string
	// ExternalID is the DN for LDAP users.
	ExternalID string
	// Role carries the directory object class.
	Role   string
	Source string
}

// DirectoryGroup is one group of a directory sync pass. Members are usernames.
type DirectoryGroup struct {
	Name       string
	ExternalID string
	Source     string
	Members    []string
}

// TokenPair is handed to clients after a successful login or refresh.
type TokenPair struct {
	Request string `json:"request"`
	Refresh string `json:"refresh,omitempty"`
	Source  string `json:"source"`
	// ExpiresAt of the request token, zero when unknown.
	ExpiresAt time.Time `json:"expiresAt,omitzero"`
}

func summaryOf(u *User) *UserSummary {
	return &UserSummary{
		Username:    u.Username,
		DisplayName: u.DisplayName,
		Email:       u.Email,
		Source:      u.Source,
		Role:        u.Role,
	}
}
