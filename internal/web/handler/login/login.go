package login

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/rs/zerolog/log"

	"github.com/authgate/authgate/internal/auth"
	"github.com/authgate/authgate/internal/config"
	"github.com/authgate/authgate/internal/web/handler"
)

const (
	// Path is the base path of the username and password flow.
	Path = handler.APIPath + "/a2"

	// LoginPath opens a session.
	LoginPath = Path + "/login"

	// RefreshPath renews a session.
	RefreshPath = Path + "/refresh"
)

// Request is the body of a login.
type Request struct {
	Username string `json:"username" validate:"required,max=256"`
	Password string `json:"password" validate:"required,max=1024"`
	// Source restricts the login to one provider, all providers are tried in
	// order when empty.
	Source string `json:"source,omitempty" validate:"omitempty,max=64"`
}

// Service is the login handler service.
type Service struct {
	handler.Service
	cfg       *config.Config
	auth      *auth.Service
	validator XValidator
}

// Handler is the login handler.
var Handler = Service{}

// Init initializes the login handler.
func (s *Service) Init(app *fiber.App, deps *handler.Deps) error {
	if app == nil || !deps.Valid() {
		return handler.ErrNilDeps
	}

	s.cfg = deps.Cfg
	s.auth = deps.Auth

	app.Post(LoginPath, s.Login)
	app.Get(RefreshPath, s.Refresh)

	return nil
}

// Login authenticates the posted credentials against the providers and
// answers with a token pair. A Crowd session is also set as SSO cookie.
func (s *Service) Login(c *fiber.Ctx) error {
	req := new(Request)

	if err := c.BodyParser(req); err != nil {
		log.Debug().Err(err).Msg("failed to parse login body")

		return c.Status(fiber.StatusBadRequest).JSON(handler.Message{Message: ErrInvalidFormData.Error()})
	}

	if errs := s.validator.Validate(req); len(errs) > 0 {
		return c.Status(fiber.StatusBadRequest).JSON(errs)
	}

	cred := auth.BasicCredential{Username: req.Username, Password: req.Password}
	vc := auth.DirectoryFactors{RemoteAddress: utils.CopyString(c.IP())}

	pair, err := s.auth.Login(c.UserContext(), req.Source, cred, vc)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(handler.Message{Message: ErrInvalidCredentials.Error()})
	}

	handler.SetSSOCookie(c, s.cfg, s.auth, pair)

	return c.JSON(pair)
}

// Refresh exchanges the refreshToken query parameter for a new pair. The
// provider is named by the X-Auth-Source header or the token itself.
func (s *Service) Refresh(c *fiber.Ctx) error {
	refresh := c.Query("refreshToken")
	if refresh == "" {
		return c.Status(fiber.StatusBadRequest).JSON(handler.Message{Message: ErrMissingRefreshToken.Error()})
	}

	vc := auth.DirectoryFactors{RemoteAddress: utils.CopyString(c.IP())}

	pair, err := s.auth.Refresh(c.UserContext(), c.Get(auth.HeaderAuthSource), refresh, vc)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(handler.Message{Message: ErrRefreshRejected.Error()})
	}

	return c.JSON(pair)
}
