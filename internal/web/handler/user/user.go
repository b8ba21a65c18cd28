// Package user serves the profile of the authenticated user.
package user

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/authgate/authgate/internal/auth"
	"github.com/authgate/authgate/internal/web/handler"
)

// Path is the profile route.
const Path = handler.APIPath + "/v1/user"

// Profile is the answer of the profile route.
type Profile struct {
	*auth.User
	Groups []string `json:"groups"`
}

// Service is the profile handler service.
type Service struct {
	handler.Service
	users handler.Users
}

// Handler is the profile handler.
var Handler = Service{}

// Init initializes the profile handler.
func (s *Service) Init(app *fiber.App, deps *handler.Deps) error {
	if app == nil || !deps.Valid() {
		return handler.ErrNilDeps
	}

	s.users = deps.Users

	app.Get(Path, deps.Auth.RequireUser(), s.Get)

	return nil
}

// Get answers with the current user and the names of its groups.
func (s *Service) Get(c *fiber.Ctx) error {
	user := auth.CurrentUser(c)
	if user == nil {
		return c.Status(fiber.StatusUnauthorized).SendString("Unauthorized")
	}

	groups, err := s.users.Groups(c.UserContext(), user.ID)
	if err != nil {
		log.Error().Err(err).Str("username", user.Username).Msg("failed to load groups")

		return c.Status(fiber.StatusInternalServerError).JSON(handler.Message{Message: "internal server error"})
	}

	if groups == nil {
		groups = []string{}
	}

	return c.JSON(Profile{User: user, Groups: groups})
}
