package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/authgate/authgate/internal/token"
)

// sessionTokens implements the token half of the Provider contract for
// providers whose sessions are locally signed token pairs.
type sessionTokens struct {
	source   string
	codec    *token.Codec
	users    UserStore
	sessions SessionStore
}

func (s *sessionTokens) verify(raw string) (*token.Claims, error) {
	claims, err := s.codec.Verify(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCredentialInvalid, err)
	}

	if claims.Source != s.source {
		return nil, fmt.Errorf("%w: token issued for source %q", ErrCredentialInvalid, claims.Source)
	}

	return claims, nil
}

func (s *sessionTokens) resolve(ctx context.Context, raw string) (*User, time.Time, error) {
	claims, err := s.verify(raw)
	if err != nil {
		return nil, time.Time{}, err
	}

	user, err := s.users.FindActiveSession(ctx, raw)
	if err != nil {
		return nil, time.Time{}, storeError(err)
	}

	if user.ID != claims.Subject {
		return nil, time.Time{}, fmt.Errorf("%w: session owner does not match subject", ErrCredentialInvalid)
	}

	return user, claims.ExpiresAt.Time, nil
}

func (s *sessionTokens) refresh(ctx context.Context, raw string) (*TokenPair, error) {
	if _, err := s.verify(raw); err != nil {
		return nil, err
	}

	user, err := s.sessions.UserForRefresh(ctx, raw)
	if err != nil {
		return nil, storeError(err)
	}

	if err = s.sessions.DisableSessions(ctx, raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}

	return s.open(ctx, user)
}

func (s *sessionTokens) open(ctx context.Context, user *User) (*TokenPair, error) {
	pair, err := s.sessions.CreateSession(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create session: %w", ErrBackendUnavailable, err)
	}

	return pair, nil
}

func (s *sessionTokens) revoke(ctx context.Context, raw string) {
	if err := s.sessions.DisableSessions(ctx, raw); err != nil {
		log.Warn().Err(err).Str("source", s.source).Msg("failed to revoke session")
	}
}

// storeError maps store lookups: missing records are invalid credentials,
// everything else means the store could not be asked.
func storeError(err error) error {
	switch {
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrUserNotFound), errors.Is(err, ErrUserAccountDisabled):
		return fmt.Errorf("%w: %w", ErrCredentialInvalid, err)
	default:
		return fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}
}

// findOrCreate returns the local record of summary, creating it on first sight.
func findOrCreate(ctx context.Context, users UserStore, summary UserSummary) (*User, error) {
	user, err := users.FindUserByUsername(ctx, summary.Username, summary.Source)
	if err == nil {
		return user, nil
	}

	if !errors.Is(err, ErrUserNotFound) {
		return nil, storeError(err)
	}

	user, err = users.CreateUser(ctx, summary)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create user: %w", ErrBackendUnavailable, err)
	}

	log.Info().Str("username", user.Username).Str("source", user.Source).Msg("created user on first login")

	return user, nil
}
