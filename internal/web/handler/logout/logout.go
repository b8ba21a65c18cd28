// Package logout ends sessions opened through the username and password flow.
package logout

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/rs/zerolog/log"

	"github.com/authgate/authgate/internal/auth"
	"github.com/authgate/authgate/internal/config"
	"github.com/authgate/authgate/internal/web/handler"
	"github.com/authgate/authgate/internal/web/handler/login"
)

// Path is the logout route.
const Path = login.Path + "/logout"

// Service is the logout handler service.
type Service struct {
	handler.Service
	cfg  *config.Config
	auth *auth.Service
}

// Handler is the logout handler.
var Handler = Service{}

// Init initializes the logout handler.
func (s *Service) Init(app *fiber.App, deps *handler.Deps) error {
	if app == nil || !deps.Valid() {
		return handler.ErrNilDeps
	}

	s.cfg = deps.Cfg
	s.auth = deps.Auth

	app.Post(Path, s.auth.RequireUser(), s.Logout)

	return nil
}

// Logout revokes the accessToken query parameter, falling back to the bearer
// token or SSO cookie of the request, then clears the SSO cookies.
func (s *Service) Logout(c *fiber.Ctx) error {
	source := c.Get(auth.HeaderAuthSource)
	if source == "" {
		if user := auth.CurrentUser(c); user != nil {
			source = user.Source
		}
	}

	tok := c.Query("accessToken")
	if tok == "" {
		tok = bearer(c.Get(fiber.HeaderAuthorization))
	}

	if tok == "" {
		if name := handler.CookieName(s.auth, source); name != "" {
			tok = c.Cookies(name)
		}
	}

	if tok != "" {
		s.auth.Revoke(c.UserContext(), source, utils.CopyString(tok))
	}

	handler.ClearSSOCookies(c, s.cfg, s.auth)

	log.Info().Str("source", source).Msg("user logged out")

	return c.JSON(handler.Message{Success: true, Message: "OK"})
}

func bearer(header string) string {
	const prefix = "Bearer "

	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}

	return ""
}
