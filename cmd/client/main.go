package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/driftbox/driftbox/internal/client"
	"github.com/driftbox/driftbox/internal/client/config"
	"github.com/driftbox/driftbox/internal/utils"
	"github.com/driftbox/driftbox/internal/version"
)

const configFileName = "config"

var home, _ = os.UserHomeDir()

var rootCmd = &cobra.Command{
	Use:     "driftbox",
	Short:   "DriftBox offline-first sync client",
	Version: version.Detailed(),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig(cmd)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := &config.Config{
			Path:         viper.ConfigFileUsed(),
			DataDir:      viper.GetString("data_dir"),
			ServerURL:    viper.GetString("server_url"),
			AuthToken:    viper.GetString("auth_token"),
			SyncInterval: viper.GetDuration("sync_interval"),
		}
		if cfg.SyncInterval <= 0 {
			cfg.SyncInterval = config.DefaultSyncInterval
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		cmd.SilenceUsage = true
		showHeader()
		setupLogging(filepath.Join(cfg.DataDir, "logs", "driftbox.log"))

		c, err := client.New(cfg)
		if err != nil {
			return err
		}

		defer slog.Info("Bye!")
		return c.Start(cmd.Context())
	},
}

func init() {
	rootCmd.Flags().SortFlags = false
	rootCmd.Flags().StringP("datadir", "d", config.DefaultDataDir, "DriftBox data directory")
	rootCmd.Flags().StringP("server", "s", "", "DriftBox server URL")
	rootCmd.Flags().StringP("token", "t", "", "DriftBox auth token")
	rootCmd.Flags().Duration("interval", config.DefaultSyncInterval, "Periodic sync interval")
	rootCmd.PersistentFlags().StringP("config", "c", config.DefaultConfigPath, "DriftBox config file")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// setupLogging writes colorized logs to the terminal and rotated plain-text
// logs under the workspace logs dir.
func setupLogging(logFile string) {
	if err := utils.EnsureParent(logFile); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create log directory: %v\n", err)
		os.Exit(1)
	}

	stdoutHandler := tint.NewHandler(os.Stdout, &tint.Options{
		Level:      slog.LevelDebug,
		TimeFormat: time.RFC3339,
		NoColor:    !isatty.IsTerminal(os.Stdout.Fd()),
	})
	fileHandler := slog.NewTextHandler(&lumberjack.Logger{
		Filename:   logFile,
		MaxSize:    10, // MB
		MaxBackups: 3,
		MaxAge:     28, // days
	}, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})

	slog.SetDefault(slog.New(utils.NewMultiLogHandler(stdoutHandler, fileHandler)))
}

func showHeader() {
	color.New(color.FgHiCyan, color.Bold).
		Printf("DriftBox %s\n", version.Short())
}

func loadConfig(cmd *cobra.Command) error {
	if cmd.Flag("config").Changed {
		configFilePath, _ := cmd.Flags().GetString("config")
		viper.SetConfigFile(configFilePath)
	} else {
		viper.AddConfigPath(filepath.Join(home, ".driftbox"))
		viper.AddConfigPath(filepath.Join(home, ".config/driftbox"))
		viper.SetConfigName(configFileName)
		viper.SetConfigType("json")
	}

	if err := viper.ReadInConfig(); err != nil {
		enoent := errors.Is(err, os.ErrNotExist)
		_, notFound := err.(viper.ConfigFileNotFoundError)
		if !enoent && !notFound {
			return fmt.Errorf("config read '%s': %w", viper.ConfigFileUsed(), err)
		}
	}

	viper.BindPFlag("data_dir", cmd.Flags().Lookup("datadir"))
	viper.BindPFlag("server_url", cmd.Flags().Lookup("server"))
	viper.BindPFlag("auth_token", cmd.Flags().Lookup("token"))
	viper.BindPFlag("sync_interval", cmd.Flags().Lookup("interval"))

	viper.SetEnvPrefix("DRIFTBOX")
	viper.AutomaticEnv()

	return nil
}
