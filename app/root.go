// Package app implements the main application commands.
package app

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/authgate/authgate/internal/config"
	"github.com/authgate/authgate/internal/logger"
)

var rootCmd = &cobra.Command{
	Use:   "authgate",
	Short: "authgate authenticates users against local, LDAP, Crowd and OAuth2 sources",
	Long: `authgate is an authentication gateway that issues signed session tokens
for users of a local database, an LDAP directory, Atlassian Crowd or an
OAuth2 vendor, and keeps directory users and groups in sync.`,
	Args:          cobra.OnlyValidArgs,
	SilenceUsage: true,
}

var (
	configPath string // directory holding main.toml
	devMode    bool

	cfg config.Config
)

func init() { //nolint: gochecknoinits
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "./etc/", "Directory of main.toml")
	rootCmd.PersistentFlags().BoolVar(&devMode, "dev", false, "Enable dev mode")
}

// loadConfig reads the config and sets up logging, every command that touches
// the daemon runs it first.
func loadConfig(_ *cobra.Command, _ []string) error {
	var err error
	if cfg, err = config.ReadConfig(configPath); err != nil {
		return err
	}

	if devMode {
		cfg.DevMode = true
	}

	return logger.Init(cfg.Log)
}

// ExecuteContext runs the root command with ctx, commands stop once ctx is
// done.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}
