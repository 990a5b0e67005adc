package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/driftbox/driftbox/internal/client/config"
)

func init() {
	rootCmd.AddCommand(newInitCmd())
}

// newInitCmd writes a config file so the daemon can start without flags.
func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a DriftBox config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			dataDir, _ := cmd.Flags().GetString("datadir")
			serverURL, _ := cmd.Flags().GetString("server")
			token, _ := cmd.Flags().GetString("token")
			configPath, _ := cmd.Flags().GetString("config")
			if configPath == "" {
				configPath = config.DefaultConfigPath
			}

			cfg := &config.Config{
				DataDir:      dataDir,
				ServerURL:    serverURL,
				AuthToken:    token,
				SyncInterval: config.DefaultSyncInterval,
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := cfg.Save(configPath); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "config written to %s\n", configPath)
			return nil
		},
	}

	cmd.Flags().StringP("datadir", "d", config.DefaultDataDir, "DriftBox data directory")
	cmd.Flags().StringP("server", "s", "", "DriftBox server URL")
	cmd.Flags().StringP("token", "t", "", "DriftBox auth token")
	return cmd
}
