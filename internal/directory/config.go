package directory

import (
	"time"
)

// Config holds the LDAP connection and schema settings.
type Config struct {
	// URL of the directory, e.g. ldap://ldap.example.com:389 or ldaps://ldap.example.com:636.
	URL string
	// StartTLS upgrades a plain ldap:// connection.
	StartTLS bool
	// SkipVerify skips TLS certificate verification (testing only).
	SkipVerify bool
	// BindDN and BindPassword are the service account used for searches.
	BindDN       string
	BindPassword string
	// BaseDN is the base for user searches.
	BaseDN string
	// UserFilter finds a single user, {username} is replaced by the escaped username.
	UserFilter string
	// UserListFilter selects all users during a sync pass.
	UserListFilter string
	// UIDAttr holds the login name.
	UIDAttr string
	// DisplayNameAttr holds the display name.
	DisplayNameAttr string
	// MailAttr holds the email address.
	MailAttr string
	// GroupBaseDN is the base for group searches, empty disables group sync.
	GroupBaseDN string
	// GroupFilter selects all groups during a sync pass.
	GroupFilter string
	// GroupNameAttr holds the group name.
	GroupNameAttr string
	// GroupMemberAttr holds the member DNs of a group.
	GroupMemberAttr string
	// Timeout applies to dialing and to every request.
	Timeout time.Duration
	// MaxConnectAttempts bounds the retries of Connect.
	MaxConnectAttempts int
}

func (c Config) withDefaults() Config {
	if c.UserFilter == "" {
		c.UserFilter = "(uid={username})"
	}

	if c.UserListFilter == "" {
		c.UserListFilter = "(objectClass=inetOrgPerson)"
	}

	if c.UIDAttr == "" {
		c.UIDAttr = "uid"
	}

	if c.DisplayNameAttr == "" {
		c.DisplayNameAttr = "cn"
	}

	if c.MailAttr == "" {
		c.MailAttr = "mail"
	}

	if c.GroupFilter == "" {
		c.GroupFilter = "(objectClass=groupOfNames)"
	}

	if c.GroupNameAttr == "" {
		c.GroupNameAttr = "cn"
	}

	if c.GroupMemberAttr == "" {
		c.GroupMemberAttr = "member"
	}

	if c.Timeout == 0 {
		c.Timeout = 10 * time.Second //nolint:mnd
	}

	if c.MaxConnectAttempts <= 0 {
		c.MaxConnectAttempts = 5 //nolint:mnd
	}

	return c
}
