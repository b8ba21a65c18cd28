// Package auth authenticates requests against several identity backends.
//
// # Providers
//
// Every backend is wrapped in a Provider registered under a unique source name:
//   - LocalProvider ("local") checks argon2id hashed passwords of the user store
//     and issues signed token pairs through the token codec.
//   - LDAPProvider ("ldap") binds as the user against a directory and issues the
//     same kind of token pairs. It is also a sync source.
//   - CrowdProvider ("crowd") hands out opaque SSO tokens and validates them by
//     calling Crowd. It is also a sync source.
//   - OAuth2Provider ("github", "google" or any OIDC name) runs the authorization
//     code flow and validates access tokens with a vendor specific TokenValidator.
//
// The source name is embedded in locally signed tokens so a token is always
// checked by the provider that issued it.
//
// # Resolving requests
//
// Service.Resolve turns the Authorization header, the SSO cookie and the
// X-Auth-Source header of a request into a User. SSO cookies are tried first,
// then the header scheme decides: bearer tokens go through the session cache and,
// on a miss, to the owning provider; basic credentials are checked by every
// BasicVerifier in registry order and never cached. Every failure is reported as
// ErrUnauthorized, the reason is only logged.
//
// Example usage:
//
//	registry, err := auth.NewRegistry(local, ldapProvider, crowdProvider)
//	service := auth.NewService(registry, codec, cacheStore, users, auth.Config{})
//
//	app.Get("/api/v1/user", service.RequireUser(), handler)
//	app.Post("/api/v1/sync", service.RequireUser(), auth.RequireRole(auth.RoleAdmin), handler)
package auth
