// Package login provides the HTTP handlers that open and renew sessions.
//
// This file defines exported error values used throughout the login flow.
package login

import "errors"

var (
	// ErrInvalidFormData is returned when the submitted login body cannot be parsed
	// or fails validation.
	ErrInvalidFormData = errors.New("invalid form data")

	// ErrInvalidCredentials is returned when no provider accepts the credentials.
	// The provider specific reason is only logged.
	ErrInvalidCredentials = errors.New("invalid username or password")

	// ErrRefreshRejected is returned when a refresh token is unknown, expired or
	// belongs to a provider without refresh support.
	ErrRefreshRejected = errors.New("unable to refresh token")

	// ErrMissingRefreshToken is returned when the refreshToken query parameter is empty.
	ErrMissingRefreshToken = errors.New("missing refreshToken query parameter")
)
