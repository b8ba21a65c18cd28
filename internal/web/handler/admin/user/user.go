// Package user lists the known users in the admin area.
package user

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/authgate/authgate/internal/auth"
	"github.com/authgate/authgate/internal/web/handler"
)

// Path is the base path for user management.
const Path = handler.APIPath + "/v1/admin/users"

// Service lists users.
type Service struct {
	handler.Service
	users handler.Users
}

// Handler is the exported instance.
var Handler = Service{}

// Init registers routes.
func (s *Service) Init(app *fiber.App, deps *handler.Deps) error {
	if app == nil || !deps.Valid() {
		return handler.ErrNilDeps
	}

	s.users = deps.Users

	app.Get(Path,
		deps.Auth.RequireUser(),
		auth.RequireRole(auth.RoleAdmin),
		s.List,
	)

	return nil
}

// List answers with the users of the source query parameter, all users when
// it is empty.
func (s *Service) List(c *fiber.Ctx) error {
	users, err := s.users.ListUsers(c.UserContext(), c.Query("source"))
	if err != nil {
		log.Error().Err(err).Msg("failed to list users")

		return c.Status(fiber.StatusInternalServerError).JSON(handler.Message{Message: "internal server error"})
	}

	return c.JSON(users)
}
