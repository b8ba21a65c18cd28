package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authgate/authgate/internal/crowd"
	"github.com/authgate/authgate/internal/directory"
)

func configPath(t *testing.T) string {
	t.Helper()

	// Get the project root by going up from internal/config
	projectRoot, err := filepath.Abs("../../")
	require.NoError(t, err)

	return filepath.Join(projectRoot, "etc") + string(filepath.Separator)
}

func TestReadConfig(t *testing.T) {
	cfg, err := ReadConfig(configPath(t))
	require.NoError(t, err)

	assert.Equal(t, "authgate", cfg.Title)
	assert.Equal(t, 8080, cfg.Webserver.Port)
	assert.Equal(t, "http://localhost:8080", cfg.Webserver.URL)
	assert.Equal(t, "sqlite", cfg.DB.GormEngine)

	assert.Equal(t, time.Hour, cfg.Token.RequestTTL)
	assert.Equal(t, 8*time.Hour, cfg.Token.RefreshTTL)
	assert.Equal(t, 5*time.Minute, cfg.Cache.MaxTTL)

	assert.Equal(t, "ldap://127.0.0.1:389", cfg.LDAP.URL)
	assert.Equal(t, "(uid={username})", cfg.LDAP.UserFilter)
	assert.Equal(t, 10*time.Second, cfg.LDAP.Timeout)
	assert.Equal(t, "authgate", cfg.Crowd.AppName)

	require.Contains(t, cfg.OAuth2, "github")
	assert.Equal(t, []string{"read:user", "user:email"}, cfg.OAuth2["github"].Scopes)

	assert.Equal(t, []string{"admins"}, cfg.Sync.AdminGroups)
	assert.Equal(t, "access.log", cfg.Log.File.Access.File)
	assert.Equal(t, 14, cfg.Log.File.Access.MaxAge)
}

func TestReadConfigWithJSONOverride(t *testing.T) {
	t.Setenv(EnvJSON, `{"Title":"Test Override","Webserver":{"Port":9090,"URL":"http://localhost:9090"}}`)

	cfg, err := ReadConfig(configPath(t))
	require.NoError(t, err)

	assert.Equal(t, "Test Override", cfg.Title)
	assert.Equal(t, 9090, cfg.Webserver.Port)
	assert.Equal(t, "sqlite", cfg.DB.GormEngine, "sections missing from the override are kept")
}

func TestReadConfigWithEnvOverride(t *testing.T) {
	t.Setenv("AUTHGATE_WEBSERVER_PORT", "7070")

	cfg, err := ReadConfig(configPath(t))
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Webserver.Port)
}

func TestReadConfigDefaults(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.toml"), []byte("[webserver]\nurl = \"http://localhost\"\n"), 0o600))

	cfg, err := ReadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Webserver.Port)
	assert.Equal(t, "memory", cfg.Cache.Backend)
	assert.Equal(t, time.Hour, cfg.Token.Leeway)
	assert.Equal(t, 5, cfg.Sync.MaxAttempts)
}

func TestReadConfigMissingFile(t *testing.T) {
	_, err := ReadConfig(t.TempDir())
	require.Error(t, err)
}

func validConfig() Config {
	return Config{
		Webserver: Webserver{
			Port: 8080,
			URL:  "http://localhost:8080",
		},
		DB: DB{GormEngine: "sqlite"},
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr error
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{name: "missing port", mutate: func(c *Config) { c.Webserver.Port = 0 }, wantErr: errAny},
		{name: "missing URL", mutate: func(c *Config) { c.Webserver.URL = "" }, wantErr: errAny},
		{name: "unknown cache backend", mutate: func(c *Config) { c.Cache.Backend = "memcached" }, wantErr: errAny},
		{name: "redis without address", mutate: func(c *Config) { c.Cache.Backend = "redis" }, wantErr: errAny},
		{name: "mysql without host", mutate: func(c *Config) { c.DB.GormEngine = "mysql" }, wantErr: errAny},
		{
			name:    "short signing key",
			mutate:  func(c *Config) { c.Token.SigningKey = "short" },
			wantErr: ErrSigningKeyTooShort,
		},
		{
			name:    "ldap without url",
			mutate:  func(c *Config) { c.LDAP.Enabled = true },
			wantErr: ErrLDAPURLEmpty,
		},
		{
			name:    "crowd without url",
			mutate:  func(c *Config) { c.Crowd.Enabled = true },
			wantErr: ErrCrowdURLEmpty,
		},
		{
			name: "sync of a disabled source",
			mutate: func(c *Config) {
				c.Sync = Sync{Enabled: true, Source: "ldap"}
			},
			wantErr: ErrSyncSourceDisabled,
		},
		{
			name: "sync of crowd",
			mutate: func(c *Config) {
				c.Crowd = Crowd{Enabled: true, Config: crowd.Config{URL: "http://crowd"}}
				c.Sync = Sync{Enabled: true, Source: "crowd"}
			},
		},
		{
			name: "sync of ldap",
			mutate: func(c *Config) {
				c.LDAP = LDAP{Enabled: true, Config: directory.Config{URL: "ldap://ldap"}}
				c.Sync = Sync{Enabled: true, Source: "ldap"}
			},
		},
		{
			name: "oauth2 named like a built in source",
			mutate: func(c *Config) {
				c.OAuth2 = map[string]OAuth2{"ldap": {Kind: "github", ClientID: "a", ClientSecret: "b", RedirectURL: "http://x/cb"}}
			},
			wantErr: ErrDuplicateSource,
		},
		{
			name: "oidc without issuer",
			mutate: func(c *Config) {
				c.OAuth2 = map[string]OAuth2{"corp": {Kind: "oidc", ClientID: "a", ClientSecret: "b", RedirectURL: "http://x/cb"}}
			},
			wantErr: errAny,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(&c)

			err := validate(&c)

			switch tt.wantErr {
			case nil:
				require.NoError(t, err)
			case errAny:
				require.Error(t, err)
			default:
				require.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestValidateDefaultsShutDownTime(t *testing.T) {
	c := validConfig()
	require.NoError(t, validate(&c))
	assert.Equal(t, 5, c.Webserver.ShutDownTime)
}

func TestDumpConfig(t *testing.T) {
	cfg := validConfig()
	cfg.Title = "Test"
	cfg.DevMode = true

	tomlStr, err := DumpConfig(&cfg)
	require.NoError(t, err)
	assert.True(t, strings.Contains(tomlStr, "Test"), "DumpConfig() output should contain Title")

	jsonStr, err := DumpConfigJSON(&cfg)
	require.NoError(t, err)
	assert.Contains(t, jsonStr, `"Title": "Test"`)
}

// errAny marks a case that must fail without a specific sentinel.
var errAny = errorString("any error")

type errorString string

func (e errorString) Error() string { return string(e) }
