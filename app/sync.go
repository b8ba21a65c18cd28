package app

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/authgate/authgate/internal/daemon"
)

func init() { //nolint: gochecknoinits
	rootCmd.AddCommand(syncCmd)
}

var syncCmd = &cobra.Command{
	Use:     "sync",
	Short:   "Run a single directory sync pass and exit",
	PreRunE: loadConfig,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg.Sync.Enabled = true
		cfg.Sync.RunOnStart = false

		d, err := daemon.New(cmd.Context(), &cfg)
		if err != nil {
			return err
		}
		defer d.Close()

		if err = d.SyncOnce(cmd.Context()); err != nil {
			return err
		}

		log.Info().Str("source", cfg.Sync.Source).Msg("sync done")

		return nil
	},
}
