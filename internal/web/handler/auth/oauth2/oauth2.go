package oauth2

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/rs/zerolog/log"

	"github.com/authgate/authgate/internal/auth"
	"github.com/authgate/authgate/internal/cache"
	"github.com/authgate/authgate/internal/web/handler"
)

const (
	// Path is the base path of the OAuth2 flow.
	Path = handler.APIPath + "/o2"

	// CallbackPath is the redirect target registered at the vendors.
	CallbackPath = Path + "/callback"

	// LogoutPath revokes an access token, followed by the provider name.
	LogoutPath = Path + "/logout"
)

// Authorise is the answer of the consent URL route.
type Authorise struct {
	Source string `json:"source"`
	URL    string `json:"url"`
}

// Service is the OAuth2 handler service.
type Service struct {
	handler.Service
	auth   *auth.Service
	states fiber.Storage
}

// Handler is the OAuth2 handler.
var Handler = Service{}

// Init initializes the OAuth2 handler. Without a state storage an in-process
// one is used.
func (s *Service) Init(app *fiber.App, deps *handler.Deps) error {
	if app == nil || !deps.Valid() {
		return handler.ErrNilDeps
	}

	s.auth = deps.Auth

	s.states = deps.States
	if s.states == nil {
		s.states = cache.NewStates(0, cache.DefaultStateTTL)
	}

	// static routes first, :name would swallow them
	app.Get(CallbackPath, s.Callback)
	app.Get(Path+"/api/:name", s.Exists)
	app.Get(Path+"/:name", s.Authorise)
	app.Post(LogoutPath+"/:name", s.auth.RequireUser(), s.Logout)

	return nil
}

func (s *Service) provider(c *fiber.Ctx) (*auth.OAuth2Provider, bool) {
	return s.auth.Registry().OAuth2(c.Params("name"))
}

// Exists answers with the source name of an enabled provider, 404 otherwise.
func (s *Service) Exists(c *fiber.Ctx) error {
	p, ok := s.provider(c)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(handler.Message{Message: "provider not found"})
	}

	return c.SendString(p.SourceName())
}

// Authorise answers with the consent URL of the provider. With ?redirect=true
// the client is sent there directly.
func (s *Service) Authorise(c *fiber.Ctx) error {
	p, ok := s.provider(c)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(handler.Message{Message: "provider not found"})
	}

	state, err := auth.EncodeState(p.SourceName(), c.Query("meta"))
	if err != nil {
		log.Error().Err(err).Msg("failed to generate oauth2 state")

		return c.Status(fiber.StatusInternalServerError).JSON(handler.Message{Message: "internal server error"})
	}

	if err = s.states.Set(state, []byte(p.SourceName()), cache.DefaultStateTTL); err != nil {
		log.Error().Err(err).Msg("failed to store oauth2 state")

		return c.Status(fiber.StatusInternalServerError).JSON(handler.Message{Message: "internal server error"})
	}

	url := p.AuthCodeURL(state)

	if c.QueryBool("redirect") {
		return c.Redirect(url)
	}

	return c.JSON(Authorise{Source: p.SourceName(), URL: url})
}

// Callback trades the authorization code for a token pair. The state must
// have been issued by Authorise and is redeemed exactly once.
func (s *Service) Callback(c *fiber.Ctx) error {
	code := c.Query("code")
	if code == "" {
		log.Warn().Str("query", string(c.Request().URI().QueryString())).Msg("missing code in oauth2 callback")

		return c.Status(fiber.StatusBadRequest).JSON(handler.Message{Message: "could not find 'code' query parameter"})
	}

	state := utils.CopyString(c.Query("state"))
	if state == "" {
		log.Warn().Msg("missing state in oauth2 callback")

		return c.Status(fiber.StatusBadRequest).JSON(handler.Message{Message: "could not find 'state' query parameter"})
	}

	issuedFor, err := s.states.Get(state)
	if err != nil || len(issuedFor) == 0 {
		log.Warn().Err(err).Msg("unknown or expired oauth2 state")

		return c.Status(fiber.StatusBadRequest).JSON(handler.Message{Message: "invalid state"})
	}

	if err = s.states.Delete(state); err != nil {
		log.Error().Err(err).Msg("failed to delete oauth2 state")
	}

	name, _, err := auth.DecodeState(state)
	if err != nil || name != string(issuedFor) {
		log.Warn().Err(err).Msg("oauth2 state does not match")

		return c.Status(fiber.StatusBadRequest).JSON(handler.Message{Message: "invalid state"})
	}

	p, ok := s.auth.Registry().OAuth2(name)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(handler.Message{Message: "provider not found"})
	}

	pair, user, err := p.Exchange(c.UserContext(), utils.CopyString(code))
	if err != nil {
		log.Warn().Err(err).Str("source", name).Msg("failed to extract access token from code")

		return c.Status(fiber.StatusBadRequest).JSON(handler.Message{Message: "unable to extract access token"})
	}

	log.Info().Str("username", user.Username).Str("source", name).Msg("user logged in")

	return c.JSON(pair)
}

// Logout revokes the accessToken query parameter at the vendor. Revocation is
// best effort, the answer is always OK.
func (s *Service) Logout(c *fiber.Ctx) error {
	tok := c.Query("accessToken")
	if tok == "" {
		return c.Status(fiber.StatusBadRequest).JSON(handler.Message{Message: "invalid access token"})
	}

	p, ok := s.provider(c)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(handler.Message{Message: "provider not found"})
	}

	s.auth.Revoke(c.UserContext(), p.SourceName(), utils.CopyString(tok))

	return c.JSON(handler.Message{Success: true, Message: "OK"})
}
