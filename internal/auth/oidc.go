package auth

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/authgate/authgate/internal/token"
)

// GoogleIssuer is the OIDC issuer of Google accounts.
const GoogleIssuer = "https://accounts.google.com"

// OIDCValidator checks tokens of an OpenID Connect provider. ID tokens are
// verified locally against the provider keys, opaque access tokens are checked
// by calling the userinfo endpoint.
type OIDCValidator struct {
	provider *oidc.Provider
	verifier *oidc.IDTokenVerifier
	http     *http.Client
}

type oidcClaims struct {
	Sub               string `json:"sub"`
	Email             string `json:"email"`
	Name              string `json:"name"`
	PreferredUsername string `json:"preferred_username"`
}

// NewOIDCValidator runs discovery against issuer. httpClient may be nil, every
// call to the provider is then bounded by DefaultHTTPTimeout.
func NewOIDCValidator(ctx context.Context, issuer, clientID string, httpClient *http.Client) (*OIDCValidator, error) {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}

	// the key set keeps the client of this context for later key fetches
	provider, err := oidc.NewProvider(oidc.ClientContext(ctx, httpClient), issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to create OIDC provider: %w", err)
	}

	return &OIDCValidator{
		provider: provider,
		verifier: provider.Verifier(&oidc.Config{ClientID: clientID}),
		http:     httpClient,
	}, nil
}

// Endpoint returns the discovered OAuth2 endpoint.
func (v *OIDCValidator) Endpoint() oauth2.Endpoint {
	return v.provider.Endpoint()
}

// Validate implements TokenValidator.
func (v *OIDCValidator) Validate(ctx context.Context, accessToken string) (time.Time, error) {
	ctx = oidc.ClientContext(ctx, v.http)

	if token.MayBeToken(accessToken) {
		if idToken, err := v.verifier.Verify(ctx, accessToken); err == nil {
			return idToken.Expiry, nil
		}
	}

	if _, err := v.userInfo(ctx, accessToken); err != nil {
		return time.Time{}, err
	}

	return time.Time{}, nil
}

// Profile implements TokenValidator.
func (v *OIDCValidator) Profile(ctx context.Context, accessToken string) (*Profile, error) {
	claims, err := v.claims(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	username := claims.PreferredUsername
	if username == "" {
		username = claims.Email
	}

	if username == "" {
		username = claims.Sub
	}

	return &Profile{
		Username:    username,
		DisplayName: claims.Name,
		Email:       claims.Email,
		ExternalID:  claims.Sub,
	}, nil
}

func (v *OIDCValidator) claims(ctx context.Context, accessToken string) (*oidcClaims, error) {
	var claims oidcClaims

	ctx = oidc.ClientContext(ctx, v.http)

	if token.MayBeToken(accessToken) {
		if idToken, err := v.verifier.Verify(ctx, accessToken); err == nil {
			if err = idToken.Claims(&claims); err != nil {
				return nil, fmt.Errorf("%w: failed to parse claims: %w", ErrCredentialInvalid, err)
			}

			return &claims, nil
		}
	}

	info, err := v.userInfo(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	if err = info.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%w: failed to parse user info claims: %w", ErrCredentialInvalid, err)
	}

	return &claims, nil
}

func (v *OIDCValidator) userInfo(ctx context.Context, accessToken string) (*oidc.UserInfo, error) {
	info, err := v.provider.UserInfo(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken}))
	if err != nil {
		var netErr net.Error
		if ctx.Err() != nil || (errors.As(err, &netErr) && netErr.Timeout()) {
			return nil, fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
		}

		return nil, fmt.Errorf("%w: failed to get user info: %w", ErrCredentialInvalid, err)
	}

	return info, nil
}
