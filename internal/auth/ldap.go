package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/authgate/authgate/internal/directory"
	"github.com/authgate/authgate/internal/token"
)

// Directory is the part of *directory.Connector used by LDAPProvider.
type Directory interface {
	Connect(ctx context.Context) error
	CheckUserAuth(ctx context.Context, username, password string) (*directory.Account, error)
	FindUser(ctx context.Context, username string) (*directory.Account, error)
	Users(ctx context.Context) ([]directory.Account, error)
	Groups(ctx context.Context) ([]directory.Group, error)
}

// LDAPProvider authenticates users by binding as them against a directory.
// Sessions are locally signed token pairs, like those of LocalProvider.
type LDAPProvider struct {
	sessionTokens
	dir Directory
}

// NewLDAPProvider creates a new LDAP provider and connects to the directory.
// A failed connect is logged and retried on first use.
func NewLDAPProvider(ctx context.Context, dir Directory, codec *token.Codec, users UserStore, sessions SessionStore) *LDAPProvider {
	if err := dir.Connect(ctx); err != nil {
		log.Error().Err(err).Msg("failed to connect to LDAP server, will retry on demand")
	}

	return &LDAPProvider{
		sessionTokens: sessionTokens{
			source:   SourceLDAP,
			codec:    codec,
			users:    users,
			sessions: sessions,
		},
		dir: dir,
	}
}

// SourceName implements Provider.
func (p *LDAPProvider) SourceName() string {
	return SourceLDAP
}

// VerifyBasic implements BasicVerifier. The directory decides, the local
// record is created on first sight.
func (p *LDAPProvider) VerifyBasic(ctx context.Context, username, password string) (*User, error) {
	account, err := p.dir.CheckUserAuth(ctx, username, password)
	if err != nil {
		return nil, directoryError(err)
	}

	return findOrCreate(ctx, p.users, p.summary(account))
}

// IssueToken implements Provider.
func (p *LDAPProvider) IssueToken(ctx context.Context, cred BasicCredential, _ ValidationContext) (*TokenPair, error) {
	user, err := p.VerifyBasic(ctx, cred.Username, cred.Password)
	if err != nil {
		return nil, err
	}

	return p.open(ctx, user)
}

// RefreshToken implements Provider.
func (p *LDAPProvider) RefreshToken(ctx context.Context, refreshToken string, _ ValidationContext) (*TokenPair, error) {
	return p.refresh(ctx, refreshToken)
}

// RevokeToken implements Provider.
func (p *LDAPProvider) RevokeToken(ctx context.Context, tok string) {
	p.revoke(ctx, tok)
}

// IsTokenValid implements Provider.
func (p *LDAPProvider) IsTokenValid(ctx context.Context, tok string, _ ValidationContext) bool {
	_, _, err := p.resolve(ctx, tok)
	if err != nil {
		log.Debug().Err(err).Msg("ldap token rejected")
	}

	return err == nil
}

// ResolveUserByToken implements Provider.
func (p *LDAPProvider) ResolveUserByToken(ctx context.Context, tok string, _ ValidationContext) (*User, time.Time, error) {
	return p.resolve(ctx, tok)
}

// ResolveUserByName implements Provider. The directory is asked, not the local store.
func (p *LDAPProvider) ResolveUserByName(ctx context.Context, username string, _ ValidationContext) (*UserSummary, error) {
	account, err := p.dir.FindUser(ctx, username)
	if err != nil {
		return nil, directoryError(err)
	}

	summary := p.summary(account)

	return &summary, nil
}

// Setup connects to the directory. It is a no-op when already connected.
func (p *LDAPProvider) Setup(ctx context.Context) error {
	return p.dir.Connect(ctx) //nolint:wrapcheck
}

// Users returns all directory users for a sync pass.
func (p *LDAPProvider) Users(ctx context.Context) ([]DirectoryUser, error) {
	accounts, err := p.dir.Users(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list ldap users: %w", err)
	}

	users := make([]DirectoryUser, 0, len(accounts))
	for _, a := range accounts {
		users = append(users, DirectoryUser{
			Username:    a.Username,
			DisplayName: a.DisplayName,
			Email:       a.Email,
			ExternalID:  a.DN,
			Role:        a.ObjectClass,
			Source:      SourceLDAP,
		})
	}

	return users, nil
}

// Groups returns all directory groups for a sync pass.
func (p *LDAPProvider) Groups(ctx context.Context) ([]DirectoryGroup, error) {
	entries, err := p.dir.Groups(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list ldap groups: %w", err)
	}

	groups := make([]DirectoryGroup, 0, len(entries))
	for _, g := range entries {
		groups = append(groups, DirectoryGroup{
			Name:       g.Name,
			ExternalID: g.DN,
			Source:     SourceLDAP,
			Members:    g.Members,
		})
	}

	return groups, nil
}

func (p *LDAPProvider) summary(a *directory.Account) UserSummary {
	return UserSummary{
		Username:    a.Username,
		DisplayName: a.DisplayName,
		Email:       a.Email,
		Source:      SourceLDAP,
		ExternalID:  a.DN,
	}
}

func directoryError(err error) error {
	switch {
	case errors.Is(err, directory.ErrInvalidCredentials), errors.Is(err, directory.ErrUserNotFound),
		errors.Is(err, directory.ErrMultipleUsers):
		return fmt.Errorf("%w: %w", ErrCredentialInvalid, err)
	default:
		return fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}
}
