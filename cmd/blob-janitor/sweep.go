package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.lumeweb.com/blob-janitor/internal/config"
	"go.lumeweb.com/blob-janitor/internal/database"
	"go.lumeweb.com/blob-janitor/internal/references"
	"go.lumeweb.com/blob-janitor/internal/storage"
	"go.lumeweb.com/blob-janitor/internal/sweep"
)

type sweepOptions struct {
	buckets []string
	dryRun  bool
}

func newSweepCmd() *cobra.Command {
	opts := &sweepOptions{}

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run one sweep and print the report",
		Long: `Run a single sweep over the configured buckets, or the buckets given with
--bucket, and print the report as JSON. The exit status is non-zero when any
bucket failed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadRuntime()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			opts.apply(cfg)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			db, err := database.NewClient(ctx, cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to create database client: %w", err)
			}
			defer db.Close()

			storageClient, err := storage.NewClient(cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to create storage client: %w", err)
			}

			reconciler := sweep.NewReconciler(cfg, storageClient,
				references.NewDefaultRegistry(db.Pool(), logger), logger)

			return runSweep(ctx, reconciler, cfg.Sweep.Buckets, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringSliceVarP(&opts.buckets, "bucket", "b", nil, "bucket to sweep (repeatable, defaults to SWEEP_BUCKETS)")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "report candidates without deleting them")

	return cmd
}

func (o *sweepOptions) apply(cfg *config.Config) {
	if len(o.buckets) > 0 {
		var buckets []string
		for _, b := range o.buckets {
			if b = strings.TrimSpace(b); b != "" {
				buckets = append(buckets, b)
			}
		}
		cfg.Sweep.Buckets = buckets
	}
	if o.dryRun {
		cfg.Sweep.DryRun = true
	}
}

func runSweep(ctx context.Context, reconciler *sweep.Reconciler, buckets []string, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	report := reconciler.Sweep(ctx, buckets)

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	if failed := report.Failed(); len(failed) > 0 {
		return fmt.Errorf("sweep failed for buckets: %s", strings.Join(failed, ", "))
	}
	return nil
}
