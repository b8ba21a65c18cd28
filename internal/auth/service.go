package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/authgate/authgate/internal/cache"
	"github.com/authgate/authgate/internal/metrics"
	"github.com/authgate/authgate/internal/token"
)

// DefaultCacheMaxTTL bounds cache entries of tokens without a known expiry.
const DefaultCacheMaxTTL = 5 * time.Minute

const tracerName = "github.com/authgate/authgate/internal/auth"

// Config tunes a Service.
type Config struct {
	// CacheMaxTTL caps the lifetime of a cache entry, zero means DefaultCacheMaxTTL.
	CacheMaxTTL time.Duration
	// Now replaces time.Now.
	Now func() time.Time
}

// Request is the credential material of one inbound request.
type Request struct {
	// Authorization is the raw Authorization header.
	Authorization string
	// Source is the X-Auth-Source header naming the provider of a non local token.
	Source string
	// Cookies holds the SSO cookies of the request by name.
	Cookies map[string]string
	// RemoteAddress of the client, passed on as a validation factor.
	RemoteAddress string
}

// Service resolves requests to users.
type Service struct {
	registry *Registry
	codec    *token.Codec
	cache    cache.Store
	users    UserStore
	maxTTL   time.Duration
	now      func() time.Time
	inflight singleflight.Group
	tracer   trace.Tracer
}

type resolved struct {
	user      *User
	expiresAt time.Time
}

// NewService creates a new Service.
func NewService(registry *Registry, codec *token.Codec, store cache.Store, users UserStore, cfg Config) *Service {
	if cfg.CacheMaxTTL <= 0 {
		cfg.CacheMaxTTL = DefaultCacheMaxTTL
	}

	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Service{
		registry: registry,
		codec:    codec,
		cache:    store,
		users:    users,
		maxTTL:   cfg.CacheMaxTTL,
		now:      cfg.Now,
		tracer:   otel.Tracer(tracerName),
	}
}

// Registry returns the provider registry.
func (s *Service) Registry() *Registry {
	return s.registry
}

// CookieNames returns the SSO cookie names the resolver looks at.
func (s *Service) CookieNames() []string {
	providers := s.registry.cookieProviders()

	names := make([]string, 0, len(providers))
	for _, p := range providers {
		names = append(names, p.CookieName())
	}

	return names
}

// Resolve authenticates req. Any failure is reported as ErrUnauthorized,
// the reason is logged at debug level.
func (s *Service) Resolve(ctx context.Context, req Request) (*User, error) {
	ctx, span := s.tracer.Start(ctx, "auth.Resolve")
	defer span.End()

	user, scheme, err := s.resolve(ctx, req)
	span.SetAttributes(attribute.String("auth.scheme", scheme))

	if err != nil {
		metrics.Resolutions.WithLabelValues(scheme, outcome(err)).Inc()
		span.SetStatus(codes.Error, "unauthorized")
		log.Debug().Err(err).Str("scheme", scheme).Str("remote", req.RemoteAddress).
			Msg("authentication failed")

		return nil, ErrUnauthorized
	}

	metrics.Resolutions.WithLabelValues(scheme, "ok").Inc()
	span.SetAttributes(attribute.String("auth.source", user.Source))

	return user, nil
}

func (s *Service) resolve(ctx context.Context, req Request) (*User, string, error) {
	var (
		cred     Credential
		errParse error
	)

	if req.Authorization != "" {
		cred, errParse = ParseAuthorization(req.Authorization)
	}

	vc := DirectoryFactors{RemoteAddress: req.RemoteAddress}

	// SSO cookies win over the Authorization header
	for _, p := range s.registry.cookieProviders() {
		value := req.Cookies[p.CookieName()]
		if value == "" {
			continue
		}

		user, err := s.resolveCookie(ctx, p, value, vc)
		if err == nil {
			return user, schemeCookie, nil
		}

		log.Debug().Err(err).Str("source", p.SourceName()).Msg("sso cookie rejected")
	}

	// a malformed header only fails once no cookie resolved
	if errParse != nil {
		return nil, schemeOther, errParse
	}

	switch c := cred.(type) {
	case BearerCredential:
		user, err := s.resolveBearer(ctx, c.Token, req.Source, vc)

		return user, schemeBearer, err
	case BasicCredential:
		user, err := s.resolveBasic(ctx, c)

		return user, schemeBasic, err
	default:
		return nil, schemeNone, fmt.Errorf("%w: no credential presented", ErrCredentialMalformed)
	}
}

func (s *Service) resolveCookie(ctx context.Context, p Provider, value string, vc ValidationContext) (*User, error) {
	if user, ok := s.cached(ctx, value); ok {
		return user, nil
	}

	return s.resolveToken(ctx, p, value, vc)
}

func (s *Service) resolveBearer(ctx context.Context, raw, source string, vc ValidationContext) (*User, error) {
	if user, ok := s.cached(ctx, raw); ok {
		return user, nil
	}

	p, err := s.route(raw, source)
	if err != nil {
		return nil, err
	}

	return s.resolveToken(ctx, p, raw, vc)
}

// route picks the provider of a bearer token. Locally signed tokens name their
// source, everything else needs the X-Auth-Source header.
func (s *Service) route(raw, source string) (Provider, error) {
	if token.MayBeToken(raw) {
		claims, err := s.codec.Parse(raw)

		switch {
		case err == nil:
			p, ok := s.registry.Get(claims.Source)
			if !ok {
				return nil, fmt.Errorf("%w: token source %q", ErrUnknownSource, claims.Source)
			}

			return p, nil
		case errors.Is(err, token.ErrExpired):
			return nil, fmt.Errorf("%w: %w", ErrCredentialInvalid, err)
		case source == "":
			return nil, fmt.Errorf("%w: %w", ErrCredentialInvalid, err)
		}
	}

	if source == "" {
		return nil, fmt.Errorf("%w: opaque token without source header", ErrUnknownSource)
	}

	p, ok := s.registry.Get(source)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, source)
	}

	return p, nil
}

// resolveToken asks p once per token, concurrent requests with the same token
// share the answer. The result is cached unless ctx is done.
func (s *Service) resolveToken(ctx context.Context, p Provider, raw string, vc ValidationContext) (*User, error) {
	key := p.SourceName() + ":" + token.Fingerprint(raw)

	v, err, _ := s.inflight.Do(key, func() (any, error) {
		user, expiresAt, errResolve := p.ResolveUserByToken(ctx, raw, vc)
		if errResolve != nil {
			return nil, errResolve
		}

		return &resolved{user: user, expiresAt: expiresAt}, nil
	})
	if err != nil {
		return nil, err //nolint:wrapcheck
	}

	if errCtx := ctx.Err(); errCtx != nil {
		return nil, fmt.Errorf("%w: %w", ErrBackendUnavailable, errCtx)
	}

	r, _ := v.(*resolved)
	s.remember(ctx, raw, r)

	return r.user, nil
}

func (s *Service) remember(ctx context.Context, raw string, r *resolved) {
	expiresAt := s.now().Add(s.maxTTL)
	if !r.expiresAt.IsZero() && r.expiresAt.Before(expiresAt) {
		expiresAt = r.expiresAt
	}

	s.cache.Set(ctx, raw, r.user.ID, expiresAt)
}

func (s *Service) cached(ctx context.Context, raw string) (*User, bool) {
	id, ok := s.cache.Get(ctx, raw)
	if !ok {
		metrics.CacheLookups.WithLabelValues("miss").Inc()

		return nil, false
	}

	user, err := s.users.FindUserByID(ctx, id)
	if err != nil {
		log.Debug().Err(err).Str("user_id", id).Msg("cached user is gone, evicting")
		s.cache.Delete(ctx, raw)
		metrics.CacheLookups.WithLabelValues("miss").Inc()

		return nil, false
	}

	if sid := s.sessionOf(raw); sid != "" {
		if _, ended := s.cache.Get(ctx, endedSessionKey(sid)); ended {
			log.Debug().Str("user_id", id).Msg("cached token belongs to an ended session, evicting")
			s.cache.Delete(ctx, raw)
			metrics.CacheLookups.WithLabelValues("miss").Inc()

			return nil, false
		}
	}

	metrics.CacheLookups.WithLabelValues("hit").Inc()

	return user, true
}

// sessionOf returns the session id of a locally signed token, empty for
// anything else.
func (s *Service) sessionOf(raw string) string {
	if !token.MayBeToken(raw) {
		return ""
	}

	claims, err := s.codec.Parse(raw)
	if err != nil {
		return ""
	}

	return claims.SessionToken
}

// endSession marks the session of raw as ended. Cached tokens of that session
// are at most maxTTL old, so the marker outlives all of them.
func (s *Service) endSession(ctx context.Context, raw string) {
	sid := s.sessionOf(raw)
	if sid == "" {
		return
	}

	s.cache.Set(ctx, endedSessionKey(sid), endedSessionMark, s.now().Add(s.maxTTL))
}

const endedSessionMark = "ended"

func endedSessionKey(sid string) string {
	return "session-ended:" + sid
}

// resolveBasic asks every BasicVerifier in registry order. Basic credentials
// are never cached.
func (s *Service) resolveBasic(ctx context.Context, cred BasicCredential) (*User, error) {
	var errs []error

	for _, v := range s.registry.basicVerifiers() {
		user, err := v.VerifyBasic(ctx, cred.Username, cred.Password)
		if err == nil {
			return user, nil
		}

		errs = append(errs, err)
	}

	if len(errs) == 0 {
		return nil, fmt.Errorf("%w: no provider accepts basic credentials", ErrUnsupported)
	}

	return nil, errors.Join(errs...)
}

// Login opens a session with the provider named source, or with the first
// provider in registry order accepting cred when source is empty.
func (s *Service) Login(ctx context.Context, source string, cred BasicCredential, vc ValidationContext) (*TokenPair, error) {
	providers := s.registry.Providers()

	if source != "" {
		p, ok := s.registry.Get(source)
		if !ok {
			log.Debug().Str("source", source).Msg("login for unknown source")

			return nil, ErrUnauthorized
		}

		providers = []Provider{p}
	}

	for _, p := range providers {
		pair, err := p.IssueToken(ctx, cred, vc)
		if err == nil {
			log.Info().Str("username", cred.Username).Str("source", p.SourceName()).Msg("user logged in")

			return pair, nil
		}

		if !errors.Is(err, ErrUnsupported) {
			log.Debug().Err(err).Str("username", cred.Username).Str("source", p.SourceName()).
				Msg("login rejected")
		}
	}

	return nil, ErrUnauthorized
}

// Refresh exchanges refreshToken for a new pair. An empty source is taken from
// the token claims.
func (s *Service) Refresh(ctx context.Context, source, refreshToken string, vc ValidationContext) (*TokenPair, error) {
	p, ok := s.provider(source, refreshToken)
	if !ok {
		log.Debug().Str("source", source).Msg("refresh for unknown source")

		return nil, ErrUnauthorized
	}

	pair, err := p.RefreshToken(ctx, refreshToken, vc)
	if err != nil {
		log.Debug().Err(err).Str("source", p.SourceName()).Msg("refresh rejected")

		return nil, ErrUnauthorized
	}

	// the refreshed session is over, its cached request tokens with it
	s.endSession(ctx, refreshToken)

	return pair, nil
}

// Revoke evicts tok and every cached token of its session from the cache and
// asks its provider to end the session. It never fails, revocation is best
// effort.
func (s *Service) Revoke(ctx context.Context, source, tok string) {
	s.cache.Delete(ctx, tok)
	s.endSession(ctx, tok)

	p, ok := s.provider(source, tok)
	if !ok {
		log.Debug().Str("source", source).Msg("revoke for unknown source")

		return
	}

	p.RevokeToken(ctx, tok)
}

// LookupUser asks the provider named source about username.
func (s *Service) LookupUser(ctx context.Context, source, username string) (*UserSummary, error) {
	p, ok := s.registry.Get(source)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, source)
	}

	return p.ResolveUserByName(ctx, username, NoFactors{}) //nolint:wrapcheck
}

func (s *Service) provider(source, tok string) (Provider, bool) {
	if source == "" && token.MayBeToken(tok) {
		if claims, err := s.codec.Parse(tok); err == nil {
			source = claims.Source
		}
	}

	if source == "" {
		source = SourceLocal
	}

	return s.registry.Get(source)
}

func outcome(err error) string {
	switch {
	case errors.Is(err, ErrCredentialMalformed):
		return "malformed"
	case errors.Is(err, ErrBackendUnavailable):
		return "unavailable"
	case errors.Is(err, ErrUnknownSource):
		return "unknown_source"
	default:
		return "invalid"
	}
}
