package token

import "errors"

var (
	// ErrMalformed is returned when a token can not be decoded or misses required claims.
	ErrMalformed = errors.New("token is malformed")

	// ErrSignature is returned when the signature does not match the signing key or the algorithm is not HS256.
	ErrSignature = errors.New("token signature is invalid")

	// ErrIssuer is returned when the token was issued by someone else.
	ErrIssuer = errors.New("token issuer mismatch")

	// ErrExpired is returned for tokens whose signature is fine but whose lifetime is over.
	ErrExpired = errors.New("token is expired")

	// ErrWeakKey is returned by NewCodec when the signing key is too short.
	ErrWeakKey = errors.New("signing key must be at least 32 bytes")
)
