// Package daemon wires configuration, storage, providers, the sync
// coordinator and the web service into one process.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/authgate/authgate/internal/auth"
	"github.com/authgate/authgate/internal/config"
	"github.com/authgate/authgate/internal/store"
	"github.com/authgate/authgate/internal/syncer"
	"github.com/authgate/authgate/internal/web"
	"github.com/authgate/authgate/internal/web/handler"
)

// PurgeInterval is the time between two deletions of expired sessions.
const PurgeInterval = time.Hour

// ErrNilConfig is returned by New without a configuration.
var ErrNilConfig = errors.New("config is nil")

// Daemon represents the main application daemon.
type Daemon struct {
	cfg        *config.Config
	db         *gorm.DB
	store      *store.Store
	auth       *auth.Service
	sync       *syncer.Coordinator
	providers  *providers
	states     fiber.Storage
	webService *web.Service
	clock      clockwork.Clock
	closers    []func() error
}

// New creates a new Daemon instance with the provided configuration.
func New(ctx context.Context, cfg *config.Config) (*Daemon, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}

	d := &Daemon{cfg: cfg, clock: clockwork.NewRealClock()}

	if err := d.init(ctx); err != nil {
		d.Close()

		return nil, err
	}

	return d, nil
}

func (d *Daemon) init(ctx context.Context) error {
	var err error

	if d.db, err = openDB(d.cfg); err != nil {
		return err
	}

	if sqlDB, errDB := d.db.DB(); errDB == nil {
		d.closers = append(d.closers, sqlDB.Close)
	}

	codec, age, err := newCodec(d.cfg)
	if err != nil {
		return err
	}

	d.store = store.New(d.db, codec,
		store.WithAge(age),
		store.WithAdminGroups(d.cfg.Sync.AdminGroups...),
	)

	if err = d.store.Migrate(); err != nil {
		return err
	}

	if err = seed(ctx, d.cfg.Seed, d.store); err != nil {
		return err
	}

	tokenCache, closeCache, err := newCache(ctx, d.cfg.Cache)
	if err != nil {
		return err
	}

	if closeCache != nil {
		d.closers = append(d.closers, closeCache)
	}

	if d.providers, err = newProviders(ctx, d.cfg, codec, d.store); err != nil {
		return err
	}

	if d.providers.conn != nil {
		d.closers = append(d.closers, d.providers.conn.Close)
	}

	registry, err := auth.NewRegistry(d.providers.all...)
	if err != nil {
		return err
	}

	log.Info().Strs("sources", registry.Names()).Msg("providers enabled")

	d.auth = auth.NewService(registry, codec, tokenCache, d.store, auth.Config{CacheMaxTTL: d.cfg.Cache.MaxTTL})

	if d.cfg.Sync.Enabled {
		if d.sync, err = newCoordinator(d.cfg.Sync, d.providers, d.store); err != nil {
			return err
		}
	}

	d.states = newStates(d.cfg.DB)
	d.closers = append(d.closers, d.states.Close)

	deps := &handler.Deps{
		Cfg:    d.cfg,
		Auth:   d.auth,
		Users:  d.store,
		States: d.states,
	}

	// a nil *Coordinator must not end up as a non nil interface
	if d.sync != nil {
		deps.Sync = d.sync
	}

	d.webService, err = web.New(d.cfg, deps)

	return err
}

// Start runs the sync coordinator, the session purge loop and the web
// service. It returns after SIGINT or SIGTERM shut the web service down.
func (d *Daemon) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)

	defer d.Close()
	defer cancel()

	if d.sync != nil {
		d.sync.Start(ctx)
	}

	go d.purgeSessions(ctx)

	go func() {
		d.webService.WaitShutdown()
		cancel()
	}()

	return d.webService.Start(fmt.Sprintf(":%d", d.cfg.Webserver.Port))
}

// SyncOnce runs a single sync pass.
func (d *Daemon) SyncOnce(ctx context.Context) error {
	if d.sync == nil {
		return fmt.Errorf("%w: sync is not enabled", config.ErrSyncSourceDisabled)
	}

	return d.sync.Trigger(ctx)
}

// Close releases connections and storages. It is safe to call more than once.
func (d *Daemon) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			log.Warn().Err(err).Msg("failed to close resource")
		}
	}

	d.closers = nil
}

func (d *Daemon) purgeSessions(ctx context.Context) {
	ticker := d.clock.NewTicker(PurgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			n, err := d.store.PurgeSessions(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("failed to purge sessions")

				continue
			}

			if n > 0 {
				log.Info().Int64("count", n).Msg("purged expired sessions")
			}
		}
	}
}
