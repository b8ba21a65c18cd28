// Package dirsync lets admins inspect and trigger the directory sync.
package dirsync

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/authgate/authgate/internal/auth"
	"github.com/authgate/authgate/internal/syncer"
	"github.com/authgate/authgate/internal/web/handler"
)

// Path is the sync route.
const Path = handler.APIPath + "/v1/sync"

// Service is the sync handler service.
type Service struct {
	handler.Service
	sync handler.Syncer
}

// Handler is the sync handler.
var Handler = Service{}

// Init registers routes. Without a coordinator both routes answer 404.
func (s *Service) Init(app *fiber.App, deps *handler.Deps) error {
	if app == nil || !deps.Valid() {
		return handler.ErrNilDeps
	}

	s.sync = deps.Sync

	app.Get(Path, deps.Auth.RequireUser(), auth.RequireRole(auth.RoleAdmin), s.State)
	app.Post(Path, deps.Auth.RequireUser(), auth.RequireRole(auth.RoleAdmin), s.Trigger)

	return nil
}

// State answers with the state of the coordinator.
func (s *Service) State(c *fiber.Ctx) error {
	if s.sync == nil {
		return c.Status(fiber.StatusNotFound).JSON(handler.Message{Message: "sync is disabled"})
	}

	return c.JSON(s.sync.State())
}

// Trigger runs one sync pass and answers with the resulting state. An
// overlapping request gets 409, a coordinator that gave up 503.
func (s *Service) Trigger(c *fiber.Ctx) error {
	if s.sync == nil {
		return c.Status(fiber.StatusNotFound).JSON(handler.Message{Message: "sync is disabled"})
	}

	err := s.sync.Trigger(c.UserContext())

	switch {
	case errors.Is(err, syncer.ErrAlreadyRunning):
		return c.Status(fiber.StatusConflict).JSON(handler.Message{Message: err.Error()})
	case errors.Is(err, syncer.ErrStopped):
		return c.Status(fiber.StatusServiceUnavailable).JSON(handler.Message{Message: err.Error()})
	case err != nil:
		log.Warn().Err(err).Msg("manual sync failed")

		return c.Status(fiber.StatusBadGateway).JSON(s.sync.State())
	}

	if user := auth.CurrentUser(c); user != nil {
		log.Info().Str("username", user.Username).Msg("manual sync finished")
	}

	return c.JSON(s.sync.State())
}
