// Package oauth2 provides the handlers of the OAuth2 authorization code flow.
//
// The flow is:
//   - GET  /api/o2/:name         returns the consent URL of provider name
//   - GET  /api/o2/api/:name     reports whether provider name is enabled
//   - GET  /api/o2/callback      trades the code for a token pair
//   - POST /api/o2/logout/:name  revokes an access token at the vendor
//
// The state parameter carries the provider name and is kept in a fiber.Storage
// until the callback redeems it, so a state is accepted once.
package oauth2
