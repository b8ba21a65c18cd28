package auth

import "errors"

var (
	// ErrUnauthorized is the only error Service.Resolve returns to its callers.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrCredentialMalformed is returned when the credential can not be parsed.
	// No backend is contacted for a malformed credential.
	ErrCredentialMalformed = errors.New("malformed credential")

	// ErrCredentialInvalid is returned when a backend rejects the credential:
	// wrong password, unknown user, bad signature, expired or revoked token.
	ErrCredentialInvalid = errors.New("invalid credential")

	// ErrBackendUnavailable is returned on network failures and timeouts.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrUnknownSource is returned when no provider is registered for a source name.
	ErrUnknownSource = errors.New("unknown source")

	// ErrUnsupported is returned by providers for operations their backend can not do.
	ErrUnsupported = errors.New("operation not supported by provider")

	// ErrDuplicateSource is returned by NewRegistry for a source name used twice.
	ErrDuplicateSource = errors.New("duplicate source name")

	// ErrUserNotFound is returned by a UserStore when a user does not exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrUserAccountDisabled is returned when a deactivated user tries to authenticate.
	ErrUserAccountDisabled = errors.New("user account is disabled")

	// ErrSessionNotFound is returned by a UserStore or SessionStore for unknown,
	// disabled or expired sessions.
	ErrSessionNotFound = errors.New("session not found")

	// ErrInvalidState is returned when an OAuth2 state parameter can not be decoded.
	ErrInvalidState = errors.New("invalid oauth2 state")
)
