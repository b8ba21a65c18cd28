package config

import (
	"errors"
)

var (
	// ErrSyncSourceDisabled is returned when the sync source provider is not enabled.
	ErrSyncSourceDisabled = errors.New("sync source must be an enabled ldap or crowd provider")

	// ErrLDAPURLEmpty is returned when ldap is enabled without a URL.
	ErrLDAPURLEmpty = errors.New("ldap.url can not be empty when ldap is enabled")

	// ErrCrowdURLEmpty is returned when crowd is enabled without a URL.
	ErrCrowdURLEmpty = errors.New("crowd.url can not be empty when crowd is enabled")

	// ErrSigningKeyTooShort is returned for signing keys below 32 bytes.
	ErrSigningKeyTooShort = errors.New("token.signingKey must have at least 32 bytes")

	// ErrDuplicateSource is returned when an oauth2 provider uses a built in source name.
	ErrDuplicateSource = errors.New("oauth2 provider name collides with a built in source")
)
