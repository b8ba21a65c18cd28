// Package token issues and verifies the signed session tokens handed out by
// the local and directory providers.
//
// Tokens are HS256 JWTs carrying the user id as subject, the username, the
// source provider name, an opaque session token used to correlate revocation
// and the user role. Parse checks signature, issuer and structure with a
// configurable clock-skew leeway; Verify additionally requires the token to be
// unexpired at the current instant and reports ErrExpired for tokens that are
// correctly signed but past their expiry.
package token
