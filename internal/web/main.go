package web

import (
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/authgate/authgate/internal/config"
	fiberlog "github.com/authgate/authgate/internal/logger/adapter/fiber"
	"github.com/authgate/authgate/internal/web/handler"
	"github.com/authgate/authgate/internal/web/handler/admin/dirsync"
	adminuser "github.com/authgate/authgate/internal/web/handler/admin/user"
	"github.com/authgate/authgate/internal/web/handler/auth/oauth2"
	"github.com/authgate/authgate/internal/web/handler/login"
	"github.com/authgate/authgate/internal/web/handler/logout"
	"github.com/authgate/authgate/internal/web/handler/user"
)

const (
	// CheckAlivePath answers 200 while the service takes traffic.
	CheckAlivePath = "/checkalive"

	// MetricsPath exposes the prometheus collectors.
	MetricsPath = "/metrics"
)

// ErrNilConfig is returned by New without a configuration.
var ErrNilConfig = errors.New("config cannot be nil")

// Service represents the web service.
type Service struct {
	App          *fiber.App
	cfg          *config.Config
	fastShutDown bool
	alive        atomic.Bool
}

// Start starts the web service on the given address. It returns once the
// server was shut down.
func (s *Service) Start(addr string) error {
	if err := s.App.Listen(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

// WaitShutdown waits for SIGINT or SIGTERM and shuts the server down gracefully.
func (s *Service) WaitShutdown() {
	irqSig := make(chan os.Signal, 1)
	signal.Notify(irqSig, syscall.SIGINT, syscall.SIGTERM)

	sig := <-irqSig
	log.Info().Msgf("shutdown request (signal: %v)", sig)

	s.Shutdown()
}

// Shutdown fails checkalive for ShutDownTime seconds, so load balancers stop
// sending traffic, then stops the http server.
func (s *Service) Shutdown() {
	if !s.fastShutDown {
		log.Info().Msgf(
			"graceful shutdown: return 503 while %d seconds to let LB to remove this pod from active targets",
			s.cfg.Webserver.ShutDownTime,
		)

		s.alive.Store(false)
		time.Sleep(time.Duration(s.cfg.Webserver.ShutDownTime) * time.Second)
	}

	log.Info().Msg("stopping http server ...")

	if err := s.App.Shutdown(); err != nil {
		log.Error().Err(err).Msg("")
	}

	log.Info().Msg("http server was stopped ... good bye...")
}

// New creates a new web service and registers all routes.
func New(cfg *config.Config, deps *handler.Deps) (*Service, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}

	if !deps.Valid() {
		return nil, handler.ErrNilDeps
	}

	app := fiber.New(
		fiber.Config{
			ReadBufferSize: 8192,
			AppName:        cfg.Title,
			CaseSensitive:  true,
			Prefork:        false,
			Immutable:      true,
		},
	)

	service := &Service{
		App:          app,
		cfg:          cfg,
		fastShutDown: cfg.Webserver.ShutDownTime <= 0,
	}
	service.alive.Store(true)

	if !cfg.Webserver.DisableRecover {
		app.Use(recover.New())
	}

	if cfg.Webserver.CleanPath {
		app.Use(cleanPath)
	}

	app.Use(fiberlog.New(fiberlog.Config{
		Config:        cfg.Log,
		CheckAliveURI: CheckAlivePath,
		User:          currentUsername,
	}))

	app.Get(CheckAlivePath, service.checkAlive)
	app.Get(MetricsPath, adaptor.HTTPHandler(promhttp.Handler()))

	handlers := []handler.Service{
		&login.Handler,
		&logout.Handler,
		&oauth2.Handler,
		&user.Handler,
		&adminuser.Handler,
		&dirsync.Handler,
	}

	for _, h := range handlers {
		if err := h.Init(app, deps); err != nil {
			return nil, err
		}
	}

	return service, nil
}

func (s *Service) checkAlive(c *fiber.Ctx) error {
	if !s.alive.Load() {
		return c.Status(fiber.StatusServiceUnavailable).SendString("shutting down")
	}

	return c.SendString("OK")
}
