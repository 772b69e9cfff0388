package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.lumeweb.com/blob-janitor/internal/api"
	"go.lumeweb.com/blob-janitor/internal/config"
	"go.lumeweb.com/blob-janitor/internal/database"
	"go.lumeweb.com/blob-janitor/internal/metrics"
	"go.lumeweb.com/blob-janitor/internal/references"
	"go.lumeweb.com/blob-janitor/internal/storage"
	"go.lumeweb.com/blob-janitor/internal/sweep"
	"go.uber.org/zap"
)

type Application struct {
	logger           *zap.Logger
	config           *config.Config
	database         *database.Client
	storageClient    *storage.SupabaseClient
	sweepManager     *sweep.Manager
	metricsCollector *metrics.Collector
	apiServer        *api.Server
	startTime        time.Time
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run scheduled sweeps with the metrics endpoint and admin API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadRuntime()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			return runServe(cmd.Context(), cfg, logger)
		},
	}
}

func runServe(parent context.Context, cfg *config.Config, logger *zap.Logger) error {
	if parent == nil {
		parent = context.Background()
	}

	// Create application context with cancellation
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	app, err := newApplication(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	// Handle graceful shutdown
	go handleGracefulShutdown(app, cancel)

	if err := app.start(ctx); err != nil {
		app.database.Close()
		return fmt.Errorf("failed to start application: %w", err)
	}

	// Block until context is cancelled
	<-ctx.Done()
	return nil
}

func newApplication(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Application, error) {
	storageClient, err := storage.NewClient(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	// Initialize metrics collector
	registry := prometheus.NewRegistry()
	metricsCollector, err := metrics.NewCollector(cfg, logger, registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics collector: %w", err)
	}
	if err := metricsCollector.Register(storageClient.Collectors()...); err != nil {
		return nil, fmt.Errorf("failed to register storage metrics: %w", err)
	}

	db, err := database.NewClient(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create database client: %w", err)
	}

	reconciler := sweep.NewReconciler(cfg, storageClient,
		references.NewDefaultRegistry(db.Pool(), logger),
		logger,
		sweep.WithRecorder(metricsCollector),
	)
	sweepManager := sweep.NewManager(cfg, logger, reconciler)

	app := &Application{
		logger:           logger,
		config:           cfg,
		database:         db,
		storageClient:    storageClient,
		sweepManager:     sweepManager,
		metricsCollector: metricsCollector,
		startTime:        time.Now(),
	}

	if cfg.API.Enabled {
		app.apiServer, err = api.NewServer(cfg, logger, db, sweepManager)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create API server: %w", err)
		}
	}

	return app, nil
}

func (app *Application) start(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, app.config.Database.ConnectTimeout)
	defer cancel()
	if err := app.database.Ping(pingCtx); err != nil {
		app.logger.Warn("Database not reachable at startup, sweeps will fail until it is", zap.Error(err))
	}

	if err := app.metricsCollector.Start(ctx); err != nil {
		return fmt.Errorf("failed to start metrics collector: %w", err)
	}

	if app.apiServer != nil {
		if err := app.apiServer.Start(ctx); err != nil {
			return fmt.Errorf("failed to start API server: %w", err)
		}
	}

	// Start sweep scheduler if enabled
	if app.config.Sweep.Enabled {
		if err := app.sweepManager.ConfigureSchedule(); err != nil {
			return fmt.Errorf("failed to configure sweep schedule: %w", err)
		}
		app.sweepManager.Start()
	}

	app.logger.Info("Application started successfully",
		zap.Time("start_time", app.startTime),
		zap.String("version", Version),
		zap.Bool("sweep_enabled", app.config.Sweep.Enabled),
		zap.Bool("api_enabled", app.apiServer != nil),
	)

	return nil
}

func (app *Application) stop(ctx context.Context) {
	stoppers := []func(context.Context) error{
		app.metricsCollector.Stop,
		app.sweepManager.Stop,
		app.storageClient.Wait,
	}
	if app.apiServer != nil {
		stoppers = append(stoppers, app.apiServer.Stop)
	}

	// Stop components concurrently
	errChan := make(chan error, len(stoppers))
	for _, stop := range stoppers {
		go func(stop func(context.Context) error) { errChan <- stop(ctx) }(stop)
	}

	// Wait for all components or timeout
	for i := 0; i < len(stoppers); i++ {
		select {
		case err := <-errChan:
			if err != nil {
				app.logger.Error("Component shutdown error", zap.Error(err))
			}
		case <-ctx.Done():
			app.logger.Error("Shutdown timeout reached")
			app.database.Close()
			return
		}
	}

	app.database.Close()
}

func handleGracefulShutdown(app *Application, cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	<-sigChan
	app.logger.Info("Received shutdown signal, initiating graceful shutdown")

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer shutdownCancel()

	app.stop(shutdownCtx)

	cancel() // Cancel main context
	app.logger.Info("Graceful shutdown completed")
}
