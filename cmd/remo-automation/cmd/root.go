package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/oshokin/remo-automation/internal/config"
	"github.com/oshokin/remo-automation/internal/service/scheduler"
	"github.com/oshokin/remo-automation/internal/version"
)

var (
	// configPath stores the path to the configuration YAML file.
	configPath string
	// envFile stores the path to the dotenv file.
	envFile string
	// pollInterval overrides the configured tick period.
	pollInterval time.Duration
	// logLevel overrides the configured log level.
	logLevel string
	// allowMultiple disables the single-instance check.
	allowMultiple bool

	// rootCmd represents the base command running the automation loop.
	rootCmd = &cobra.Command{
		Use:   version.Name,
		Short: "Apply threshold and time rules to Nature Remo devices.",
		Long: `Background service that polls Nature Remo sensors and controls appliances.

Every tick it fires the scheduled actions whose time has come, then fetches
fresh sensor values of every polled device and runs the actions of all
matching threshold rules (temperature high/low, humidity high, custom rules).

Settings are read from the YAML configuration file, the .env file and the
environment, in that order of increasing precedence. The API token is required.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(_ *cobra.Command, _ []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			return scheduler.Run(ctx, &scheduler.Options{
				ConfigPath:    configPath,
				EnvFile:       envFile,
				PollInterval:  pollInterval,
				LogLevel:      logLevel,
				AllowMultiple: allowMultiple,
			})
		},
	}
)

// Execute runs the remo-automation CLI and exits with non-zero status on error.
func Execute() {
	rootCmd.Version = version.Short()
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to configuration file (default "+config.DefaultConfigFilename+" if present)")
	rootCmd.Flags().StringVar(&envFile, "env-file", "", "path to dotenv file (default "+config.DefaultEnvFilename+" if present)")
	rootCmd.Flags().DurationVarP(&pollInterval, "interval", "i", 0, "tick period, overrides the configuration")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error), overrides the configuration")

	// Hidden flag for running a second loop against another configuration.
	rootCmd.Flags().BoolVar(&allowMultiple, "allow-multiple", false, "skip the single-instance check")

	err := rootCmd.Flags().MarkHidden("allow-multiple")
	if err != nil {
		panic(err)
	}
}
