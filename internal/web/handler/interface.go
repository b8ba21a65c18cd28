package handler

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/authgate/authgate/internal/auth"
	"github.com/authgate/authgate/internal/config"
	"github.com/authgate/authgate/internal/syncer"
)

// Service is the interface for a web handler service.
type Service interface {
	Init(app *fiber.App, deps *Deps) error
}

// Users is the part of the user store the handlers read from.
type Users interface {
	Groups(ctx context.Context, userID string) ([]string, error)
	ListUsers(ctx context.Context, source string) ([]auth.User, error)
}

// Syncer is the part of *syncer.Coordinator the handlers drive.
type Syncer interface {
	Trigger(ctx context.Context) error
	State() syncer.State
}

// Deps holds everything a handler may need. Sync and States are optional.
type Deps struct {
	Cfg   *config.Config
	Auth  *auth.Service
	Users Users
	Sync  Syncer
	// States keeps issued OAuth2 state parameters until the callback redeems them.
	States fiber.Storage
}

// Valid reports whether the mandatory dependencies are set.
func (d *Deps) Valid() bool {
	return d != nil && d.Cfg != nil && d.Auth != nil && d.Users != nil
}
