package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.lumeweb.com/blob-janitor/internal/config"
	"go.uber.org/zap"
)

// Client holds the read-only connection pool to the application database
type Client struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewClient(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Client, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	// Basic connection settings
	if cfg.Database.MaxConns > 0 {
		poolConfig.MaxConns = cfg.Database.MaxConns
	}
	poolConfig.MaxConnLifetime = time.Minute * 5
	poolConfig.MaxConnIdleTime = time.Minute
	if cfg.Database.ConnectTimeout > 0 {
		poolConfig.ConnConfig.ConnectTimeout = cfg.Database.ConnectTimeout
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create database pool: %w", err)
	}

	logger.Info("Database pool created",
		zap.String("host", poolConfig.ConnConfig.Host),
		zap.String("database", poolConfig.ConnConfig.Database),
		zap.Int32("max_conns", poolConfig.MaxConns),
	)

	return &Client{
		pool:   pool,
		logger: logger,
	}, nil
}

// Pool exposes the pool for query providers
func (c *Client) Pool() *pgxpool.Pool {
	return c.pool
}

// Ping checks the database connection
func (c *Client) Ping(ctx context.Context) error {
	if err := c.pool.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}

// Close closes the database pool
func (c *Client) Close() {
	if c.pool != nil {
		c.pool.Close()
		c.logger.Info("Database pool closed")
	}
}
