package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.lumeweb.com/blob-janitor/internal/config"
	"go.uber.org/zap"
)

// Version information, set at build time
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var logLevel string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "blob-janitor",
		Short: "Remove stored photos that no database row references",
		Long: `blob-janitor compares the objects in each configured storage bucket with the
URLs referenced by the application database and deletes files that are both
unreferenced and older than the grace period.

Configuration is read from the environment (STORAGE_URL, STORAGE_SECRET_KEY,
DATABASE_URL, SWEEP_SCHEDULE, SWEEP_GRACE_PERIOD, SWEEP_BUCKETS, ...).

Examples:
  # Run the scheduler, metrics endpoint and admin API
  blob-janitor serve

  # Sweep once and print the report
  blob-janitor sweep

  # See what would be deleted from one bucket
  blob-janitor sweep --bucket profiles --dry-run`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "", "log level (overrides LOG_LEVEL)")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newSweepCmd())

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "blob-janitor %s\n", Version)
			fmt.Fprintf(cmd.OutOrStdout(), "  Commit:     %s\n", Commit)
			fmt.Fprintf(cmd.OutOrStdout(), "  Build Time: %s\n", BuildTime)
		},
	}
	rootCmd.AddCommand(versionCmd)

	return rootCmd
}

func initLogger(level string) (*zap.Logger, error) {
	atomicLevel, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	config := zap.NewProductionConfig()
	config.Level = atomicLevel
	return config.Build()
}

// loadRuntime loads configuration and builds the logger it asks for.
func loadRuntime() (*config.Config, *zap.Logger, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	level := cfg.Logging.Level
	if logLevel != "" {
		level = logLevel
	}

	logger, err := initLogger(level)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return cfg, logger, nil
}
