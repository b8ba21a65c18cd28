package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/authgate/authgate/internal/auth"
	"github.com/authgate/authgate/internal/config"
)

// CookieName returns the SSO cookie of the provider named source, empty when
// its tokens do not travel in a cookie.
func CookieName(svc *auth.Service, source string) string {
	p, ok := svc.Registry().Get(source)
	if !ok {
		return ""
	}

	cp, ok := p.(auth.CookieProvider)
	if !ok {
		return ""
	}

	return cp.CookieName()
}

// SetSSOCookie stores the request token of pair in the SSO cookie of its source.
// Nothing happens for sources without a cookie.
func SetSSOCookie(c *fiber.Ctx, cfg *config.Config, svc *auth.Service, pair *auth.TokenPair) {
	name := CookieName(svc, pair.Source)
	if name == "" {
		return
	}

	cookie := &fiber.Cookie{
		Name:     name,
		Value:    pair.Request,
		Path:     RootPath,
		Domain:   cfg.Webserver.CookieDomain,
		Secure:   cfg.Webserver.CookieSecure,
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	}

	if !pair.ExpiresAt.IsZero() {
		cookie.Expires = pair.ExpiresAt
	}

	c.Cookie(cookie)
}

// ClearSSOCookies expires every SSO cookie the resolver knows about.
func ClearSSOCookies(c *fiber.Ctx, cfg *config.Config, svc *auth.Service) {
	for _, name := range svc.CookieNames() {
		c.Cookie(&fiber.Cookie{
			Name:     name,
			Value:    "",
			Path:     RootPath,
			Domain:   cfg.Webserver.CookieDomain,
			Secure:   cfg.Webserver.CookieSecure,
			HTTPOnly: true,
			MaxAge:   -1,
			SameSite: fiber.CookieSameSiteLaxMode,
		})
	}
}
