package daemon

import (
	"context"
	"fmt"
	"net/http"
	"slices"

	"github.com/gofiber/fiber/v2"
	mysqlstorage "github.com/gofiber/storage/mysql/v2"
	postgresstorage "github.com/gofiber/storage/postgres/v3"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"github.com/authgate/authgate/internal/auth"
	"github.com/authgate/authgate/internal/cache"
	"github.com/authgate/authgate/internal/config"
	"github.com/authgate/authgate/internal/crowd"
	"github.com/authgate/authgate/internal/db/dsn"
	"github.com/authgate/authgate/internal/directory"
	"github.com/authgate/authgate/internal/store"
	"github.com/authgate/authgate/internal/syncer"
	"github.com/authgate/authgate/internal/token"
)

const statesTable = "oauth2_states"

// newCodec creates the token codec. Without a configured key a random one is
// used, tokens then do not survive a restart.
func newCodec(cfg *config.Config) (*token.Codec, token.AgeProfile, error) {
	key := []byte(cfg.Token.SigningKey)
	if len(key) == 0 {
		log.Warn().Msg("no token signing key configured, using a random key")
	}

	var opts []token.Option
	if cfg.Token.Leeway > 0 {
		opts = append(opts, token.WithLeeway(cfg.Token.Leeway))
	}

	codec, err := token.NewCodec(key, cfg.Token.Issuer, opts...)
	if err != nil {
		return nil, token.AgeProfile{}, fmt.Errorf("failed to create token codec: %w", err)
	}

	age := token.DefaultAge
	if cfg.DevMode {
		age = token.DevAge
	}

	if cfg.Token.RequestTTL > 0 {
		age.Request = cfg.Token.RequestTTL
	}

	if cfg.Token.RefreshTTL > 0 {
		age.Refresh = cfg.Token.RefreshTTL
	}

	return codec, age, nil
}

// newCache creates the verified token cache of the configured backend.
func newCache(ctx context.Context, cfg config.Cache) (cache.Store, func() error, error) {
	if cfg.Backend != "redis" {
		m, err := cache.NewMemory(cfg.Size, nil)
		if err != nil {
			return nil, nil, err
		}

		return m, nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()

		return nil, nil, fmt.Errorf("failed to connect redis %s: %w", cfg.RedisAddr, err)
	}

	return cache.NewRedis(client, cfg.Prefix), client.Close, nil
}

// newStates picks the OAuth2 state storage. The SQL engines keep states in the
// database so every replica can redeem them.
func newStates(cfg config.DB) fiber.Storage {
	switch cfg.GormEngine {
	case "mysql":
		return mysqlstorage.New(mysqlstorage.Config{
			ConnectionURI: dsn.Create(cfg),
			Table:         statesTable,
		})
	case "postgres":
		return postgresstorage.New(postgresstorage.Config{
			ConnectionURI: dsn.Create(cfg),
			Table:         statesTable,
		})
	default:
		return cache.NewStates(0, cache.DefaultStateTTL)
	}
}

type providers struct {
	all   []auth.Provider
	ldap  *auth.LDAPProvider
	crowd *auth.CrowdProvider
	conn  *directory.Connector
}

// newProviders creates the enabled providers in login order: Crowd, LDAP,
// local, then the OAuth2 providers by name.
func newProviders(ctx context.Context, cfg *config.Config, codec *token.Codec, s *store.Store) (*providers, error) {
	p := new(providers)

	if cfg.Crowd.Enabled {
		var opts []auth.CrowdOption
		if cfg.Crowd.CookieName != "" {
			opts = append(opts, auth.WithCookieName(cfg.Crowd.CookieName))
		}

		p.crowd = auth.NewCrowdProvider(ctx, crowd.New(cfg.Crowd.Config, nil), s, opts...)
		p.all = append(p.all, p.crowd)
	}

	if cfg.LDAP.Enabled {
		p.conn = directory.New(cfg.LDAP.Config)
		p.ldap = auth.NewLDAPProvider(ctx, p.conn, codec, s, s)
		p.all = append(p.all, p.ldap)
	}

	p.all = append(p.all, auth.NewLocalProvider(codec, s, s))

	names := make([]string, 0, len(cfg.OAuth2))
	for name := range cfg.OAuth2 {
		names = append(names, name)
	}

	slices.Sort(names)

	for _, name := range names {
		o2, err := newOAuth2Provider(ctx, name, cfg.OAuth2[name], s)
		if err != nil {
			return nil, err
		}

		p.all = append(p.all, o2)
	}

	return p, nil
}

func newOAuth2Provider(ctx context.Context, name string, oc config.OAuth2, s *store.Store) (*auth.OAuth2Provider, error) {
	var (
		validator auth.TokenValidator
		endpoint  oauth2.Endpoint
		scopes    = oc.Scopes
		client    = &http.Client{Timeout: auth.DefaultHTTPTimeout}
	)

	if oc.Timeout > 0 {
		client.Timeout = oc.Timeout
	}

	switch oc.Kind {
	case "github":
		validator = auth.NewGitHubValidator(oc.ClientID, oc.ClientSecret, oc.APIURL, client)
		endpoint = auth.GitHubEndpoint

		if len(scopes) == 0 {
			scopes = []string{"read:user", "user:email"}
		}
	default:
		issuer := oc.Issuer
		if oc.Kind == "google" {
			issuer = auth.GoogleIssuer
		}

		v, err := auth.NewOIDCValidator(ctx, issuer, oc.ClientID, client)
		if err != nil {
			return nil, fmt.Errorf("failed to set up oauth2 provider %s: %w", name, err)
		}

		validator = v
		endpoint = v.Endpoint()

		if len(scopes) == 0 {
			scopes = []string{"openid", "profile", "email"}
		}
	}

	log.Info().Str("source", name).Str("kind", oc.Kind).Msg("oauth2 provider enabled")

	return auth.NewOAuth2Provider(auth.OAuth2Config{
		Name:         name,
		ClientID:     oc.ClientID,
		ClientSecret: oc.ClientSecret,
		RedirectURL:  oc.RedirectURL,
		Scopes:       scopes,
		Endpoint:     endpoint,
		HTTPClient:   client,
	}, validator, s), nil
}

// newCoordinator creates the sync coordinator of the configured source.
func newCoordinator(cfg config.Sync, p *providers, s *store.Store) (*syncer.Coordinator, error) {
	var source syncer.Source

	switch cfg.Source {
	case auth.SourceCrowd:
		if p.crowd != nil {
			source = p.crowd
		}
	default:
		if p.ldap != nil {
			source = p.ldap
		}
	}

	if source == nil {
		return nil, fmt.Errorf("%w: %q", config.ErrSyncSourceDisabled, cfg.Source)
	}

	return syncer.New(source, s, syncer.Config{
		Interval:    cfg.Interval,
		Schedule:    cfg.Schedule,
		MaxAttempts: cfg.MaxAttempts,
		RunOnStart:  cfg.RunOnStart,
		RemoveStale: cfg.RemoveStale,
	})
}
