package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/authgate/authgate/internal/token"
)

// LocalProvider authenticates users with passwords stored in the user store.
type LocalProvider struct {
	sessionTokens
}

// NewLocalProvider creates a new local authentication provider.
func NewLocalProvider(codec *token.Codec, users UserStore, sessions SessionStore) *LocalProvider {
	return &LocalProvider{
		sessionTokens: sessionTokens{
			source:   SourceLocal,
			codec:    codec,
			users:    users,
			sessions: sessions,
		},
	}
}

// SourceName implements Provider.
func (p *LocalProvider) SourceName() string {
	return SourceLocal
}

// VerifyBasic implements BasicVerifier.
func (p *LocalProvider) VerifyBasic(ctx context.Context, username, password string) (*User, error) {
	if username == "" || password == "" {
		return nil, fmt.Errorf("%w: blank username or password", ErrCredentialInvalid)
	}

	user, err := p.users.FindUserByBasic(ctx, username, password)
	if err != nil {
		return nil, storeError(err)
	}

	return user, nil
}

// IssueToken implements Provider.
func (p *LocalProvider) IssueToken(ctx context.Context, cred BasicCredential, _ ValidationContext) (*TokenPair, error) {
	user, err := p.VerifyBasic(ctx, cred.Username, cred.Password)
	if err != nil {
		return nil, err
	}

	return p.open(ctx, user)
}

// RefreshToken implements Provider.
func (p *LocalProvider) RefreshToken(ctx context.Context, refreshToken string, _ ValidationContext) (*TokenPair, error) {
	return p.refresh(ctx, refreshToken)
}

// RevokeToken implements Provider.
func (p *LocalProvider) RevokeToken(ctx context.Context, tok string) {
	p.revoke(ctx, tok)
}

// IsTokenValid implements Provider.
func (p *LocalProvider) IsTokenValid(ctx context.Context, tok string, _ ValidationContext) bool {
	_, _, err := p.resolve(ctx, tok)
	if err != nil {
		log.Debug().Err(err).Msg("local token rejected")
	}

	return err == nil
}

// ResolveUserByToken implements Provider.
func (p *LocalProvider) ResolveUserByToken(ctx context.Context, tok string, _ ValidationContext) (*User, time.Time, error) {
	return p.resolve(ctx, tok)
}

// ResolveUserByName implements Provider.
func (p *LocalProvider) ResolveUserByName(ctx context.Context, username string, _ ValidationContext) (*UserSummary, error) {
	user, err := p.users.FindUserByUsername(ctx, username, SourceLocal)
	if err != nil {
		return nil, storeError(err)
	}

	return summaryOf(user), nil
}
