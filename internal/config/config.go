// Package config handles input from etc/*.toml files
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/authgate/authgate/internal/auth"
)

const (
	// EnvPrefix of single value overrides, e.g. AUTHGATE_WEBSERVER_PORT.
	EnvPrefix = "AUTHGATE"

	// EnvJSON holds a JSON document merged over the file config.
	EnvJSON = "AUTHGATE_CONFIG_JSON"

	invalidErrMessage = "invalid config"
)

var structValidator = validator.New(validator.WithRequiredStructEnabled())

// ReadConfig reads main.toml from path, applies environment overrides and
// validates the result.
func ReadConfig(path string) (Config, error) {
	var c Config

	if path == "" {
		path = "./etc/"
	}

	v := viper.New()
	v.SetConfigName("main")
	v.SetConfigType("toml")
	v.AddConfigPath(path)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, errors.Wrap(err, "failed to read main config file")
	}

	if err := v.Unmarshal(&c); err != nil {
		return Config{}, errors.Wrap(err, "failed to decode main config file")
	}

	// override it from env
	if configAsJSON := os.Getenv(EnvJSON); configAsJSON != "" {
		var err error
		if c, err = decodeAndMergeConfig(c, configAsJSON); err != nil {
			return c, err
		}
	}

	return c, validate(&c)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("title", "authgate")
	v.SetDefault("webserver.port", 8080)
	v.SetDefault("webserver.shutDownTime", 5)
	v.SetDefault("db.gormEngine", "sqlite")
	v.SetDefault("db.path", "authgate.db")
	v.SetDefault("log.logLevel", "info")
	v.SetDefault("log.appName", "authgate")
	v.SetDefault("log.serviceName", "authgate")
	v.SetDefault("log.console.enabled", true)
	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.size", 10000)
	v.SetDefault("cache.maxTTL", 5*time.Minute)
	v.SetDefault("cache.prefix", "authgate:token:")
	v.SetDefault("token.leeway", time.Hour)
	v.SetDefault("sync.interval", 5*time.Minute)
	v.SetDefault("sync.maxAttempts", 5)
}

func decodeAndMergeConfig(c Config, configAsJSON string) (Config, error) {
	err := json.Unmarshal([]byte(configAsJSON), &c)
	if err != nil {
		return Config{}, errors.Wrap(err, "failed to decode "+EnvJSON)
	}

	return c, nil
}

// DumpConfig config as TOML String.
func DumpConfig(c *Config) (string, error) {
	var buffer bytes.Buffer

	if err := toml.NewEncoder(&buffer).Encode(c); err != nil {
		return "", err //nolint: wrapcheck
	}

	return buffer.String(), nil
}

// DumpConfigJSON config as JSON String.
func DumpConfigJSON(c *Config) (string, error) {
	var buffer bytes.Buffer

	j := json.NewEncoder(&buffer)
	j.SetIndent("", "  ")

	if err := j.Encode(c); err != nil {
		return "", err //nolint: wrapcheck
	}

	return buffer.String(), nil
}

// validate checks the struct tags and the rules spanning sections.
func validate(c *Config) error {
	if c.Webserver.ShutDownTime == 0 {
		c.Webserver.ShutDownTime = 5 // set default of 5 seconds
	}

	if err := structValidator.Struct(c); err != nil {
		return errors.Wrap(err, invalidErrMessage)
	}

	if c.Token.SigningKey != "" && len(c.Token.SigningKey) < 32 { //nolint:mnd
		return errors.Wrap(ErrSigningKeyTooShort, invalidErrMessage)
	}

	if c.LDAP.Enabled && c.LDAP.URL == "" {
		return errors.Wrap(ErrLDAPURLEmpty, invalidErrMessage)
	}

	if c.Crowd.Enabled && c.Crowd.URL == "" {
		return errors.Wrap(ErrCrowdURLEmpty, invalidErrMessage)
	}

	for name := range c.OAuth2 {
		switch name {
		case auth.SourceLocal, auth.SourceLDAP, auth.SourceCrowd:
			return errors.Wrap(fmt.Errorf("%w: %s", ErrDuplicateSource, name), invalidErrMessage)
		}
	}

	if c.Sync.Enabled {
		switch {
		case c.Sync.Source == auth.SourceLDAP && c.LDAP.Enabled:
		case c.Sync.Source == auth.SourceCrowd && c.Crowd.Enabled:
		default:
			return errors.Wrap(ErrSyncSourceDisabled, invalidErrMessage)
		}
	}

	return nil
}
