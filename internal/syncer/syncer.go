// Package syncer periodically copies the users and groups of a directory into
// the local user store.
//
// A Coordinator runs one pass at a time. Manual triggers arriving while a pass
// is running are dropped, not queued. After MaxAttempts consecutive failed
// passes the coordinator stops for good: no further passes run until the
// process restarts and the data of the last good pass stays in place.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/authgate/authgate/internal/auth"
	"github.com/authgate/authgate/internal/metrics"
)

const (
	// DefaultInterval between two passes.
	DefaultInterval = 5 * time.Minute

	// DefaultMaxAttempts is the number of consecutive failures before the coordinator stops.
	DefaultMaxAttempts = 5

	tracerName = "github.com/authgate/authgate/internal/syncer"
)

var (
	// ErrAlreadyRunning is returned by Trigger while a pass is in flight.
	ErrAlreadyRunning = errors.New("sync already running")

	// ErrStopped is returned once the attempt limit was reached.
	ErrStopped = errors.New("sync stopped after too many failed attempts")

	// ErrNoUsers is recorded when a source answers without a user list.
	ErrNoUsers = errors.New("source returned no user list")
)

// Source is a directory that can be synced, implemented by
// auth.LDAPProvider and auth.CrowdProvider.
type Source interface {
	SourceName() string
	// Setup connects to the directory, it must be idempotent.
	Setup(ctx context.Context) error
	Users(ctx context.Context) ([]auth.DirectoryUser, error)
	Groups(ctx context.Context) ([]auth.DirectoryGroup, error)
}

// Ingester takes ownership of the synced users and groups.
type Ingester interface {
	IngestUsers(ctx context.Context, source string, users []auth.DirectoryUser, removeStale bool) error
	IngestGroups(ctx context.Context, source string, groups []auth.DirectoryGroup) error
}

// Config tunes a Coordinator.
type Config struct {
	// Interval between passes, ignored when Schedule is set.
	Interval time.Duration
	// Schedule is a standard five field cron spec.
	Schedule string
	// MaxAttempts is the number of consecutive failures that stop the coordinator.
	MaxAttempts int
	// RunOnStart runs a pass as soon as Run is called.
	RunOnStart bool
	// RemoveStale deactivates local users of the source missing from a pass.
	RemoveStale bool
}

// State is a snapshot of the coordinator.
type State struct {
	Source      string        `json:"source"`
	Attempts    int           `json:"attempts"`
	MaxAttempts int           `json:"maxAttempts"`
	Running     bool          `json:"running"`
	Stopped     bool          `json:"stopped"`
	LastSuccess time.Time     `json:"lastSuccess,omitzero"`
	LastError   string        `json:"lastError,omitempty"`
	Interval    time.Duration `json:"interval"`
}

// Coordinator runs sync passes on a schedule and on demand.
type Coordinator struct {
	source   Source
	ingester Ingester
	cfg      Config
	schedule cron.Schedule
	clock    clockwork.Clock
	tracer   trace.Tracer

	running atomic.Bool

	mu          sync.Mutex
	attempts    int
	stopped     bool
	lastSuccess time.Time
	lastErr     error

	done     chan struct{}
	stopOnce sync.Once
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClock replaces the real clock, used by tests.
func WithClock(clock clockwork.Clock) Option {
	return func(c *Coordinator) {
		c.clock = clock
	}
}

// New creates a Coordinator.
func New(source Source, ingester Ingester, cfg Config, opts ...Option) (*Coordinator, error) {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}

	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}

	c := &Coordinator{
		source:   source,
		ingester: ingester,
		cfg:      cfg,
		schedule: cron.Every(cfg.Interval),
		clock:    clockwork.NewRealClock(),
		tracer:   otel.Tracer(tracerName),
		done:     make(chan struct{}),
	}

	if cfg.Schedule != "" {
		schedule, err := cron.ParseStandard(cfg.Schedule)
		if err != nil {
			return nil, fmt.Errorf("invalid sync schedule %q: %w", cfg.Schedule, err)
		}

		c.schedule = schedule
	}

	for _, opt := range opts {
		opt(c)
	}

	metrics.SyncAttempts.WithLabelValues(source.SourceName()).Set(0)
	metrics.SyncStopped.WithLabelValues(source.SourceName()).Set(0)

	return c, nil
}

// Start runs the coordinator in a goroutine until ctx is done or it stops.
func (c *Coordinator) Start(ctx context.Context) {
	go func() {
		if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Warn().Err(err).Str("source", c.source.SourceName()).Msg("sync scheduler exited")
		}
	}()
}

// Run blocks and runs a pass at every scheduled instant. It returns ctx.Err()
// on cancellation and ErrStopped once the attempt limit was reached.
func (c *Coordinator) Run(ctx context.Context) error {
	log.Info().Str("source", c.source.SourceName()).Dur("interval", c.cfg.Interval).
		Str("schedule", c.cfg.Schedule).Msg("sync scheduler started")

	if c.cfg.RunOnStart {
		c.tick(ctx)
	}

	for {
		select {
		case <-c.done:
			return ErrStopped
		default:
		}

		now := c.clock.Now()
		timer := c.clock.NewTimer(c.schedule.Next(now).Sub(now))

		select {
		case <-ctx.Done():
			timer.Stop()

			return ctx.Err() //nolint:wrapcheck
		case <-c.done:
			timer.Stop()

			return ErrStopped
		case <-timer.Chan():
			c.tick(ctx)
		}
	}
}

func (c *Coordinator) tick(ctx context.Context) {
	err := c.Trigger(ctx)

	switch {
	case err == nil:
	case errors.Is(err, ErrAlreadyRunning):
		log.Debug().Str("source", c.source.SourceName()).Msg("sync still running, skipping scheduled pass")
	case errors.Is(err, ErrStopped):
	default:
		log.Warn().Err(err).Str("source", c.source.SourceName()).Msg("sync pass failed")
	}
}

// Trigger runs one pass now. It returns ErrAlreadyRunning without calling the
// source when a pass is in flight and ErrStopped once the coordinator stopped.
func (c *Coordinator) Trigger(ctx context.Context) error {
	if c.isStopped() {
		return ErrStopped
	}

	if !c.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer c.running.Store(false)

	err := c.pass(ctx)
	c.record(err)

	return err
}

// Done is closed once the coordinator stopped for good.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// State returns a snapshot of the coordinator.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := State{
		Source:      c.source.SourceName(),
		Attempts:    c.attempts,
		MaxAttempts: c.cfg.MaxAttempts,
		Running:     c.running.Load(),
		Stopped:     c.stopped,
		LastSuccess: c.lastSuccess,
		Interval:    c.cfg.Interval,
	}

	if c.lastErr != nil {
		s.LastError = c.lastErr.Error()
	}

	return s
}

func (c *Coordinator) isStopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.stopped
}

func (c *Coordinator) pass(ctx context.Context) error {
	name := c.source.SourceName()

	ctx, span := c.tracer.Start(ctx, "sync.Pass", trace.WithAttributes(attribute.String("sync.source", name)))
	defer span.End()

	err := c.syncOnce(ctx, name)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "sync failed")
	}

	return err
}

func (c *Coordinator) syncOnce(ctx context.Context, name string) error {
	if err := c.source.Setup(ctx); err != nil {
		return fmt.Errorf("setup: %w", err)
	}

	users, err := c.source.Users(ctx)
	if err != nil {
		return fmt.Errorf("not connected yet: %w", err)
	}

	if users == nil {
		return ErrNoUsers
	}

	groups, errGroups := c.source.Groups(ctx)
	if errGroups != nil {
		log.Warn().Err(errGroups).Str("source", name).Msg("failed to fetch groups, syncing users only")
	}

	if err = c.ingester.IngestUsers(ctx, name, users, c.cfg.RemoveStale); err != nil {
		return fmt.Errorf("ingest users: %w", err)
	}

	if errGroups == nil {
		if err = c.ingester.IngestGroups(ctx, name, groups); err != nil {
			return fmt.Errorf("ingest groups: %w", err)
		}
	}

	log.Info().Str("source", name).Int("users", len(users)).Int("groups", len(groups)).Msg("sync pass finished")

	return nil
}

func (c *Coordinator) record(err error) {
	name := c.source.SourceName()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.lastErr = err

	if err == nil {
		c.attempts = 0
		c.lastSuccess = c.clock.Now()

		metrics.SyncRuns.WithLabelValues(name, "success").Inc()
		metrics.SyncAttempts.WithLabelValues(name).Set(0)

		return
	}

	c.attempts++

	metrics.SyncRuns.WithLabelValues(name, "failure").Inc()
	metrics.SyncAttempts.WithLabelValues(name).Set(float64(c.attempts))

	if c.attempts < c.cfg.MaxAttempts {
		return
	}

	c.stopped = true
	c.stopOnce.Do(func() { close(c.done) })

	metrics.SyncStopped.WithLabelValues(name).Set(1)
	log.Error().Err(err).Str("source", name).Int("attempts", c.attempts).
		Msg("sync stopped after too many failed attempts, restart the process to resume")
}
