package config

import (
	"time"

	"github.com/authgate/authgate/internal/crowd"
	"github.com/authgate/authgate/internal/directory"
	"github.com/authgate/authgate/internal/logger"
)

// Config overall data structure.
type Config struct {
	DevMode   bool // short token lifetimes, console friendly defaults
	Title     string
	DB        DB
	Log       logger.Log
	Webserver Webserver
	Token     Token
	Cache     Cache
	LDAP      LDAP
	Crowd     Crowd
	OAuth2    map[string]OAuth2 `validate:"dive"`
	Sync      Sync
	Seed      Seed
}

// Webserver implement webserver settings.
type Webserver struct {
	CleanPath      bool   // use clean path middleware to allow multi slash requests
	DisableRecover bool   // disable recover middleware
	Port           int    `validate:"required,min=1,max=65535"` // listening port for the webserver
	ShutDownTime   int    // wait time for shutdown in seconds
	URL            string `validate:"required,url"` // base url for the webserver
	CookieDomain   string // domain of the SSO cookie, the Crowd cookie config otherwise
	CookieSecure   bool
}

// Token holds the signing settings of locally issued tokens.
type Token struct {
	// SigningKey of at least 32 bytes, a random process local key when empty.
	SigningKey string
	Issuer     string
	RequestTTL time.Duration
	RefreshTTL time.Duration
	Leeway     time.Duration
}

// Cache selects the verified token cache.
type Cache struct {
	Backend       string `validate:"omitempty,oneof=memory redis"`
	Size          int    `validate:"gte=0"`
	MaxTTL        time.Duration
	RedisAddr     string `validate:"required_if=Backend redis"`
	RedisPassword string
	RedisDB       int
	Prefix        string
}

// LDAP enables the directory provider.
type LDAP struct {
	Enabled          bool
	directory.Config `mapstructure:",squash"`
}

// Crowd enables the SSO provider.
type Crowd struct {
	Enabled      bool
	CookieName   string // overrides the cookie config of the server
	crowd.Config `mapstructure:",squash"`
}

// OAuth2 configures one OAuth2 provider, keyed by its source name.
type OAuth2 struct {
	Kind         string `validate:"oneof=github google oidc"`
	ClientID     string `validate:"required"`
	ClientSecret string `validate:"required"`
	RedirectURL  string `validate:"required,url"`
	Scopes       []string
	// Issuer of an oidc provider.
	Issuer string `validate:"required_if=Kind oidc"`
	// APIURL overrides the GitHub REST API.
	APIURL string
	// Timeout of every call to the vendor, auth.DefaultHTTPTimeout when zero.
	Timeout time.Duration `validate:"gte=0"`
}

// Sync configures the directory sync coordinator.
type Sync struct {
	Enabled     bool
	Source      string `validate:"omitempty,oneof=ldap crowd"`
	Interval    time.Duration
	Schedule    string // cron spec, overrides Interval
	MaxAttempts int    `validate:"gte=0"`
	RunOnStart  bool
	RemoveStale bool
	AdminGroups []string
}

// Seed creates the first local admin on an empty user table.
type Seed struct {
	Username string
	Password string
	Email    string
}
