// Package database owns the Postgres pool and schema migrations for the error store.
package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ekaya-inc/bugsneak/pkg/config"
)

const (
	applicationName = "bugsneak"

	defaultMaxConns        = 25
	defaultMaxConnLifetime = time.Hour
	defaultMaxConnIdleTime = 30 * time.Minute
)

// ErrNotConfigured is returned by Healthy on a nil or closed DB.
var ErrNotConfigured = errors.New("database not configured")

// DB is the shared pgx pool. Repositories call Exec, Query and QueryRow on it directly.
type DB struct {
	*pgxpool.Pool
}

// Config describes the pool. Zero durations and sizes fall back to package defaults.
type Config struct {
	URL             string
	MaxConnections  int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// ConfigFrom builds a pool Config from the loaded database settings.
func ConfigFrom(cfg *config.DatabaseConfig) *Config {
	return &Config{
		URL:            cfg.ConnectionString(),
		MaxConnections: cfg.MaxConnections,
	}
}

func (c *Config) poolConfig() (*pgxpool.Config, error) {
	pc, err := pgxpool.ParseConfig(c.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	pc.MaxConns = defaultMaxConns
	if c.MaxConnections > 0 {
		pc.MaxConns = c.MaxConnections
	}
	pc.MaxConnLifetime = defaultMaxConnLifetime
	if c.MaxConnLifetime > 0 {
		pc.MaxConnLifetime = c.MaxConnLifetime
	}
	pc.MaxConnIdleTime = defaultMaxConnIdleTime
	if c.MaxConnIdleTime > 0 {
		pc.MaxConnIdleTime = c.MaxConnIdleTime
	}

	if _, ok := pc.ConnConfig.RuntimeParams["application_name"]; !ok {
		pc.ConnConfig.RuntimeParams["application_name"] = applicationName
	}
	return pc, nil
}

// NewConnection opens the pool and pings it once. A failed ping closes the pool.
func NewConnection(ctx context.Context, cfg *Config) (*DB, error) {
	pc, err := cfg.poolConfig()
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Healthy pings the pool within ctx. It is used by /health and the MCP health tool.
func (db *DB) Healthy(ctx context.Context) error {
	if db == nil || db.Pool == nil {
		return ErrNotConfigured
	}
	return db.Ping(ctx)
}

// Close releases every pooled connection. It is safe on a nil DB.
func (db *DB) Close() {
	if db == nil || db.Pool == nil {
		return
	}
	db.Pool.Close()
}
