package web

import (
	"path"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/authgate/authgate/internal/auth"
)

// currentUsername names the authenticated user of c in the access log.
func currentUsername(c *fiber.Ctx) string {
	if u := auth.CurrentUser(c); u != nil {
		return u.Source + "/" + u.Username
	}

	return ""
}

// cleanPath collapses repeated slashes and dot segments before routing.
func cleanPath(c *fiber.Ctx) error {
	p := c.Path()
	if strings.Contains(p, "//") || strings.Contains(p, "/.") {
		c.Path(path.Clean(p))
	}

	return c.Next()
}
