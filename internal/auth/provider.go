package auth

import (
	"context"
	"fmt"
	"time"
)

// Provider wraps one identity backend.
//
// Implementations report failures with the sentinel errors of this package:
// ErrCredentialInvalid when the backend rejected the credential and
// ErrBackendUnavailable when it could not be asked.
type Provider interface {
	// SourceName is the unique, stable dispatch key of the provider.
	SourceName() string

	// IssueToken authenticates cred and opens a session.
	IssueToken(ctx context.Context, cred BasicCredential, vc ValidationContext) (*TokenPair, error)

	// RefreshToken exchanges a refresh token for a new pair. The old session ends.
	RefreshToken(ctx context.Context, refreshToken string, vc ValidationContext) (*TokenPair, error)

	// RevokeToken ends the session of token. Failures are logged, never returned.
	RevokeToken(ctx context.Context, token string)

	// IsTokenValid reports whether token is currently accepted by the backend.
	IsTokenValid(ctx context.Context, token string, vc ValidationContext) bool

	// ResolveUserByToken validates token and returns its user together with the
	// instant the token stops being valid, zero when unknown.
	ResolveUserByToken(ctx context.Context, token string, vc ValidationContext) (*User, time.Time, error)

	// ResolveUserByName looks a user up by name.
	ResolveUserByName(ctx context.Context, username string, vc ValidationContext) (*UserSummary, error)
}

// BasicVerifier is implemented by providers that can check a username and
// password without opening a session.
type BasicVerifier interface {
	VerifyBasic(ctx context.Context, username, password string) (*User, error)
}

// CookieProvider is implemented by providers whose tokens travel in an SSO cookie.
type CookieProvider interface {
	Provider
	CookieName() string
}

// UserStore persists users and answers session lookups.
type UserStore interface {
	// FindUserByUsername returns ErrUserNotFound for unknown users.
	FindUserByUsername(ctx context.Context, username, source string) (*User, error)
	FindUserByID(ctx context.Context, id string) (*User, error)
	CreateUser(ctx context.Context, summary UserSummary) (*User, error)
	// FindActiveSession returns the owner of an active session issued with requestToken.
	FindActiveSession(ctx context.Context, requestToken string) (*User, error)
	// FindUserByBasic checks the password of a local user.
	FindUserByBasic(ctx context.Context, username, password string) (*User, error)
}

// SessionStore keeps the sessions behind locally signed token pairs.
type SessionStore interface {
	CreateSession(ctx context.Context, user *User) (*TokenPair, error)
	// UserForRefresh returns the owner of an active session issued with refreshToken.
	UserForRefresh(ctx context.Context, refreshToken string) (*User, error)
	// DisableSessions ends the session issued with token, request or refresh.
	DisableSessions(ctx context.Context, token string) error
}

// Registry maps source names to providers. It is immutable once created.
type Registry struct {
	ordered []Provider
	byName  map[string]Provider
}

// NewRegistry creates a Registry. The order of providers is kept for login and
// basic credential checks.
func NewRegistry(providers ...Provider) (*Registry, error) {
	r := &Registry{byName: make(map[string]Provider, len(providers))}

	for _, p := range providers {
		name := p.SourceName()
		if _, ok := r.byName[name]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateSource, name)
		}

		r.byName[name] = p
		r.ordered = append(r.ordered, p)
	}

	return r, nil
}

// Get returns the provider registered as name.
func (r *Registry) Get(name string) (Provider, bool) {
	p, ok := r.byName[name]

	return p, ok
}

// Providers returns all providers in registration order.
func (r *Registry) Providers() []Provider {
	out := make([]Provider, len(r.ordered))
	copy(out, r.ordered)

	return out
}

// Names returns all source names in registration order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.ordered))
	for _, p := range r.ordered {
		names = append(names, p.SourceName())
	}

	return names
}

// OAuth2 returns the OAuth2 provider registered as name.
func (r *Registry) OAuth2(name string) (*OAuth2Provider, bool) {
	p, ok := r.byName[name].(*OAuth2Provider)

	return p, ok
}

func (r *Registry) cookieProviders() []CookieProvider {
	var out []CookieProvider

	for _, p := range r.ordered {
		if cp, ok := p.(CookieProvider); ok && cp.CookieName() != "" {
			out = append(out, cp)
		}
	}

	return out
}

func (r *Registry) basicVerifiers() []BasicVerifier {
	var out []BasicVerifier

	for _, p := range r.ordered {
		if bv, ok := p.(BasicVerifier); ok {
			out = append(out, bv)
		}
	}

	return out
}
