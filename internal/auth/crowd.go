package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/authgate/authgate/internal/crowd"
)

// SSO is the part of *crowd.Client used by CrowdProvider.
type SSO interface {
	CreateSession(ctx context.Context, username, password string, factors []crowd.Factor) (*crowd.Session, error)
	ValidateSession(ctx context.Context, token string, factors []crowd.Factor) (*crowd.Session, error)
	DeleteSession(ctx context.Context, token string) error
	User(ctx context.Context, username string) (*crowd.User, error)
	CookieConfig(ctx context.Context) (*crowd.CookieConfig, error)
	SearchUsers(ctx context.Context) ([]string, error)
	Groups(ctx context.Context) ([]crowd.Group, error)
}

// CrowdProvider hands out opaque Crowd SSO tokens and validates them remotely.
type CrowdProvider struct {
	sso        SSO
	users      UserStore
	cookieName string
	now        func() time.Time
}

// CrowdOption configures a CrowdProvider.
type CrowdOption func(*CrowdProvider)

// WithCookieName skips the cookie config lookup.
func WithCookieName(name string) CrowdOption {
	return func(p *CrowdProvider) {
		p.cookieName = name
	}
}

// WithCrowdClock replaces time.Now for expiry checks.
func WithCrowdClock(now func() time.Time) CrowdOption {
	return func(p *CrowdProvider) {
		p.now = now
	}
}

// NewCrowdProvider creates a new Crowd provider. Unless a cookie name is
// configured it is read from Crowd, falling back to crowd.DefaultCookieName.
func NewCrowdProvider(ctx context.Context, sso SSO, users UserStore, opts ...CrowdOption) *CrowdProvider {
	p := &CrowdProvider{sso: sso, users: users, now: time.Now}

	for _, opt := range opts {
		opt(p)
	}

	if p.cookieName == "" {
		p.cookieName = crowd.DefaultCookieName

		cc, err := sso.CookieConfig(ctx)
		switch {
		case err != nil:
			log.Warn().Err(err).Str("cookie", p.cookieName).Msg("failed to load crowd cookie config, using default")
		case cc.Name != "":
			p.cookieName = cc.Name
		}
	}

	return p
}

// SourceName implements Provider.
func (p *CrowdProvider) SourceName() string {
	return SourceCrowd
}

// CookieName implements CookieProvider.
func (p *CrowdProvider) CookieName() string {
	return p.cookieName
}

// IssueToken implements Provider. The request token is the Crowd SSO token,
// there is no refresh token.
func (p *CrowdProvider) IssueToken(ctx context.Context, cred BasicCredential, vc ValidationContext) (*TokenPair, error) {
	if cred.Username == "" || cred.Password == "" {
		return nil, fmt.Errorf("%w: blank username or password", ErrCredentialInvalid)
	}

	session, err := p.sso.CreateSession(ctx, cred.Username, cred.Password, ssoFactors(vc))
	if err != nil {
		return nil, crowdError(err)
	}

	if _, err = p.localUser(ctx, session.Username); err != nil {
		return nil, err
	}

	return &TokenPair{Request: session.Token, Source: SourceCrowd, ExpiresAt: session.ExpiresAt}, nil
}

// RefreshToken implements Provider. Crowd sessions are extended by Crowd itself.
func (p *CrowdProvider) RefreshToken(context.Context, string, ValidationContext) (*TokenPair, error) {
	return nil, ErrUnsupported
}

// RevokeToken implements Provider.
func (p *CrowdProvider) RevokeToken(ctx context.Context, tok string) {
	if err := p.sso.DeleteSession(ctx, tok); err != nil {
		log.Warn().Err(err).Msg("failed to delete crowd session")
	}
}

// IsTokenValid implements Provider.
func (p *CrowdProvider) IsTokenValid(ctx context.Context, tok string, vc ValidationContext) bool {
	_, err := p.validate(ctx, tok, vc)
	if err != nil {
		log.Debug().Err(err).Msg("crowd token rejected")
	}

	return err == nil
}

// ResolveUserByToken implements Provider.
func (p *CrowdProvider) ResolveUserByToken(ctx context.Context, tok string, vc ValidationContext) (*User, time.Time, error) {
	session, err := p.validate(ctx, tok, vc)
	if err != nil {
		return nil, time.Time{}, err
	}

	user, err := p.localUser(ctx, session.Username)
	if err != nil {
		return nil, time.Time{}, err
	}

	return user, session.ExpiresAt, nil
}

// ResolveUserByName implements Provider.
func (p *CrowdProvider) ResolveUserByName(ctx context.Context, username string, _ ValidationContext) (*UserSummary, error) {
	u, err := p.sso.User(ctx, username)
	if err != nil {
		return nil, crowdError(err)
	}

	return &UserSummary{
		Username:    u.Name,
		DisplayName: u.DisplayName,
		Email:       u.Email,
		Source:      SourceCrowd,
		ExternalID:  u.Name,
	}, nil
}

// Setup implements the sync source contract. The REST client is stateless.
func (p *CrowdProvider) Setup(context.Context) error {
	return nil
}

// Users returns all Crowd users for a sync pass.
func (p *CrowdProvider) Users(ctx context.Context) ([]DirectoryUser, error) {
	names, err := p.sso.SearchUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list crowd users: %w", err)
	}

	users := make([]DirectoryUser, 0, len(names))
	for _, name := range names {
		users = append(users, DirectoryUser{Username: name, ExternalID: name, Source: SourceCrowd})
	}

	return users, nil
}

// Groups returns all Crowd groups with their direct members for a sync pass.
func (p *CrowdProvider) Groups(ctx context.Context) ([]DirectoryGroup, error) {
	entries, err := p.sso.Groups(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list crowd groups: %w", err)
	}

	groups := make([]DirectoryGroup, 0, len(entries))
	for _, g := range entries {
		groups = append(groups, DirectoryGroup{
			Name:       g.Name,
			ExternalID: g.Name,
			Source:     SourceCrowd,
			Members:    g.Members,
		})
	}

	return groups, nil
}

func (p *CrowdProvider) validate(ctx context.Context, tok string, vc ValidationContext) (*crowd.Session, error) {
	if tok == "" {
		return nil, fmt.Errorf("%w: empty sso token", ErrCredentialMalformed)
	}

	session, err := p.sso.ValidateSession(ctx, tok, ssoFactors(vc))
	if err != nil {
		return nil, crowdError(err)
	}

	if !session.ExpiresAt.IsZero() && !p.now().Before(session.ExpiresAt) {
		return nil, fmt.Errorf("%w: sso session expired at %s", ErrCredentialInvalid, session.ExpiresAt)
	}

	if session.Username == "" {
		return nil, fmt.Errorf("%w: sso session without user", ErrCredentialInvalid)
	}

	return session, nil
}

func (p *CrowdProvider) localUser(ctx context.Context, username string) (*User, error) {
	summary := UserSummary{Username: username, Source: SourceCrowd, ExternalID: username}

	if u, err := p.users.FindUserByUsername(ctx, username, SourceCrowd); err == nil {
		return u, nil
	}

	// first sight, fill in the profile before creating the record
	if cu, err := p.sso.User(ctx, username); err == nil {
		summary.DisplayName = cu.DisplayName
		summary.Email = cu.Email
	}

	return findOrCreate(ctx, p.users, summary)
}

func crowdError(err error) error {
	if errors.Is(err, crowd.ErrRejected) {
		return fmt.Errorf("%w: %w", ErrCredentialInvalid, err)
	}

	return fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
}
