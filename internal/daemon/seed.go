package daemon

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/authgate/authgate/internal/auth"
	"github.com/authgate/authgate/internal/config"
	"github.com/authgate/authgate/internal/store"
)

// seed creates the configured local admin when the user table is empty.
func seed(ctx context.Context, cfg config.Seed, s *store.Store) error {
	if cfg.Username == "" || cfg.Password == "" {
		return nil
	}

	count, err := s.CountUsers(ctx)
	if err != nil {
		return err
	}

	if count > 0 {
		return nil
	}

	if _, err = s.CreateLocalUser(ctx, cfg.Username, cfg.Password, cfg.Email, auth.RoleAdmin); err != nil {
		return fmt.Errorf("failed to seed admin user: %w", err)
	}

	log.Warn().Str("username", cfg.Username).Msg("created initial admin user, change its password")

	return nil
}
