package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/authgate/authgate/internal/config"
)

func init() { //nolint: gochecknoinits
	configCmd.AddCommand(configDumpCmd)
	configDumpCmd.Flags().BoolVar(&dumpJSON, "json", false, "Dump as JSON instead of TOML")
	rootCmd.AddCommand(configCmd)
}

var (
	dumpJSON bool

	configCmd = &cobra.Command{
		Use:   "config",
		Short: "Inspect the configuration",
	}

	configDumpCmd = &cobra.Command{
		Use:   "dump",
		Short: "Print the effective configuration",
		PreRunE: func(_ *cobra.Command, _ []string) error {
			var err error

			cfg, err = config.ReadConfig(configPath)

			return err
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			dump := config.DumpConfig
			if dumpJSON {
				dump = config.DumpConfigJSON
			}

			out, err := dump(&cfg)
			if err != nil {
				return err
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), out)

			return err
		},
	}
)
