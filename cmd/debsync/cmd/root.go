package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/saittam/debsync/internal/config"
	"github.com/saittam/debsync/internal/service/sync"
	"github.com/saittam/debsync/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string

	// rootCmd represents the base command for one synchronization pass.
	rootCmd = &cobra.Command{
		Use:   "debsync",
		Short: "Mirror the newest signed upstream release into a local apt repository",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			options := &sync.Options{
				ConfigPath: configPath,
			}

			return sync.Run(ctx, options)
		},
	}

	// initCmd writes a starting configuration file to edit.
	initCmd = &cobra.Command{
		Use:   "init",
		Short: "Write a starting configuration file",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return config.Save(configPath, config.Default())
		},
	}
)

// Execute runs the debsync CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")

	rootCmd.AddCommand(initCmd)
}
