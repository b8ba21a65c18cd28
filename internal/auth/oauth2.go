package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// DefaultHTTPTimeout bounds every call to an OAuth2 or OIDC vendor made with
// the default client.
const DefaultHTTPTimeout = 10 * time.Second

// Profile is the user information an OAuth2 vendor returns for an access token.
type Profile struct {
	Username    string
	DisplayName string
	Email       string
	ExternalID  string
}

// TokenValidator checks access tokens of one OAuth2 vendor.
type TokenValidator interface {
	// Validate returns the expiry of accessToken, zero when the vendor does not say.
	Validate(ctx context.Context, accessToken string) (time.Time, error)
	// Profile fetches the owner of accessToken.
	Profile(ctx context.Context, accessToken string) (*Profile, error)
}

// TokenRevoker is implemented by validators whose vendor can revoke tokens.
type TokenRevoker interface {
	Revoke(ctx context.Context, accessToken string) error
}

// OAuth2Config is the client registration of one OAuth2 provider.
type OAuth2Config struct {
	// Name is the source name, e.g. "github" or "google".
	Name         string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
	Endpoint     oauth2.Endpoint
	// HTTPClient talks to the token endpoint, nil means a client with
	// DefaultHTTPTimeout.
	HTTPClient *http.Client
}

// OAuth2Provider runs the authorization code flow against one vendor and
// validates the resulting access tokens with a TokenValidator.
type OAuth2Provider struct {
	name      string
	oauth2    oauth2.Config
	validator TokenValidator
	users     UserStore
	http      *http.Client
}

// NewOAuth2Provider creates a new OAuth2 provider.
func NewOAuth2Provider(cfg OAuth2Config, validator TokenValidator, users UserStore) *OAuth2Provider {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}

	return &OAuth2Provider{
		name: cfg.Name,
		oauth2: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     cfg.Endpoint,
			Scopes:       cfg.Scopes,
		},
		validator: validator,
		users:     users,
		http:      httpClient,
	}
}

// clientContext hands the provider client to x/oauth2.
func (p *OAuth2Provider) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, p.http)
}

// SourceName implements Provider.
func (p *OAuth2Provider) SourceName() string {
	return p.name
}

// AuthCodeURL returns the vendor login URL carrying state.
func (p *OAuth2Provider) AuthCodeURL(state string) string {
	return p.oauth2.AuthCodeURL(state)
}

// Exchange trades an authorization code for tokens and makes sure the owner
// exists locally.
func (p *OAuth2Provider) Exchange(ctx context.Context, code string) (*TokenPair, *User, error) {
	tok, err := p.oauth2.Exchange(p.clientContext(ctx), code)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: failed to exchange code: %w", ErrCredentialInvalid, err)
	}

	user, err := p.owner(ctx, tok.AccessToken)
	if err != nil {
		return nil, nil, err
	}

	return p.pair(tok), user, nil
}

// IssueToken implements Provider. Password grants are not offered, use Exchange.
func (p *OAuth2Provider) IssueToken(context.Context, BasicCredential, ValidationContext) (*TokenPair, error) {
	return nil, ErrUnsupported
}

// RefreshToken implements Provider.
func (p *OAuth2Provider) RefreshToken(ctx context.Context, refreshToken string, _ ValidationContext) (*TokenPair, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("%w: empty refresh token", ErrCredentialMalformed)
	}

	tok, err := p.oauth2.TokenSource(p.clientContext(ctx), &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to refresh token: %w", ErrCredentialInvalid, err)
	}

	return p.pair(tok), nil
}

// RevokeToken implements Provider.
func (p *OAuth2Provider) RevokeToken(ctx context.Context, tok string) {
	revoker, ok := p.validator.(TokenRevoker)
	if !ok {
		log.Debug().Str("source", p.name).Msg("provider can not revoke tokens")

		return
	}

	if err := revoker.Revoke(ctx, tok); err != nil {
		log.Warn().Err(err).Str("source", p.name).Msg("failed to revoke oauth2 token")
	}
}

// IsTokenValid implements Provider.
func (p *OAuth2Provider) IsTokenValid(ctx context.Context, tok string, _ ValidationContext) bool {
	if _, err := p.validator.Validate(ctx, tok); err != nil {
		log.Debug().Err(err).Str("source", p.name).Msg("oauth2 token rejected")

		return false
	}

	return true
}

// ResolveUserByToken implements Provider.
func (p *OAuth2Provider) ResolveUserByToken(ctx context.Context, tok string, _ ValidationContext) (*User, time.Time, error) {
	expiresAt, err := p.validator.Validate(ctx, tok)
	if err != nil {
		return nil, time.Time{}, err //nolint:wrapcheck
	}

	user, err := p.owner(ctx, tok)
	if err != nil {
		return nil, time.Time{}, err
	}

	return user, expiresAt, nil
}

// ResolveUserByName implements Provider. Only users that logged in before are known.
func (p *OAuth2Provider) ResolveUserByName(ctx context.Context, username string, _ ValidationContext) (*UserSummary, error) {
	user, err := p.users.FindUserByUsername(ctx, username, p.name)
	if err != nil {
		return nil, storeError(err)
	}

	return summaryOf(user), nil
}

func (p *OAuth2Provider) owner(ctx context.Context, accessToken string) (*User, error) {
	profile, err := p.validator.Profile(ctx, accessToken)
	if err != nil {
		return nil, err //nolint:wrapcheck
	}

	if profile.Username == "" {
		return nil, fmt.Errorf("%w: profile without username", ErrCredentialInvalid)
	}

	return findOrCreate(ctx, p.users, UserSummary{
		Username:    profile.Username,
		DisplayName: profile.DisplayName,
		Email:       profile.Email,
		Source:      p.name,
		ExternalID:  profile.ExternalID,
	})
}

func (p *OAuth2Provider) pair(tok *oauth2.Token) *TokenPair {
	return &TokenPair{
		Request:   tok.AccessToken,
		Refresh:   tok.RefreshToken,
		Source:    p.name,
		ExpiresAt: tok.Expiry,
	}
}

const stateRandomLen = 16

// EncodeState builds the OAuth2 state parameter "name:meta:random", base64url
// encoded, so the callback knows which provider the code belongs to.
func EncodeState(name, meta string) (string, error) {
	if strings.Contains(name, ":") {
		return "", fmt.Errorf("%w: provider name contains a colon", ErrInvalidState)
	}

	b := make([]byte, stateRandomLen)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to read random state: %w", err)
	}

	raw := name + ":" + base64.RawURLEncoding.EncodeToString([]byte(meta)) + ":" +
		base64.RawURLEncoding.EncodeToString(b)

	return base64.RawURLEncoding.EncodeToString([]byte(raw)), nil
}

// DecodeState returns the provider name and metadata of a state parameter.
func DecodeState(state string) (name, meta string, err error) {
	raw, err := base64.RawURLEncoding.DecodeString(state)
	if err != nil {
		return "", "", fmt.Errorf("%w: %w", ErrInvalidState, err)
	}

	parts := strings.Split(string(raw), ":")
	if len(parts) != 3 || parts[0] == "" || parts[2] == "" {
		return "", "", ErrInvalidState
	}

	decodedMeta, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return "", "", fmt.Errorf("%w: %w", ErrInvalidState, err)
	}

	return parts[0], string(decodedMeta), nil
}
