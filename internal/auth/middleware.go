package auth

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/rs/zerolog/log"
)

const (
	// CurrentUserKey is the fiber.Locals key holding the resolved *User.
	CurrentUserKey = "CurrentUser"

	// HeaderAuthSource names the provider of a non local bearer token.
	HeaderAuthSource = "X-Auth-Source"
)

// RequestFromFiber collects the credential material of c. The values are
// copied, the Request may outlive the handler.
func (s *Service) RequestFromFiber(c *fiber.Ctx) Request {
	req := Request{
		Authorization: utils.CopyString(c.Get(fiber.HeaderAuthorization)),
		Source:        utils.CopyString(c.Get(HeaderAuthSource)),
		RemoteAddress: utils.CopyString(c.IP()),
	}

	for _, name := range s.CookieNames() {
		if value := c.Cookies(name); value != "" {
			if req.Cookies == nil {
				req.Cookies = make(map[string]string)
			}

			req.Cookies[name] = utils.CopyString(value)
		}
	}

	return req
}

// RequireUser creates Fiber middleware that resolves the request to a user and
// stores it in c.Locals(CurrentUserKey). Every failure is a plain 401.
func (s *Service) RequireUser() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := s.Resolve(c.UserContext(), s.RequestFromFiber(c))
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).SendString("Unauthorized")
		}

		c.Locals(CurrentUserKey, user)

		return c.Next()
	}
}

// RequireRole creates Fiber middleware that requires the current user to have role.
// It must run after RequireUser.
func RequireRole(role Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user := CurrentUser(c)
		if user == nil {
			return c.Status(fiber.StatusUnauthorized).SendString("Unauthorized")
		}

		if user.Role != role {
			log.Warn().Str("username", user.Username).Str("role", string(role)).
				Msg("User lacks required role")

			return c.Status(fiber.StatusForbidden).SendString("Forbidden")
		}

		return c.Next()
	}
}

// CurrentUser returns the user stored by RequireUser, nil when there is none.
func CurrentUser(c *fiber.Ctx) *User {
	user, _ := c.Locals(CurrentUserKey).(*User)

	return user
}
