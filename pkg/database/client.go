// Package database provides the PostgreSQL client, embedded migrations, and
// the ordered conversation-history store.
package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"arc-framework/sherlock/pkg/config"
)

// Client wraps a pgx connection pool for the history store. Pool connections
// are opened lazily; constructing a Client does not require the database to
// be reachable, which lets the service start in degraded mode.
type Client struct {
	pool *pgxpool.Pool
	dsn  string
}

// NewClient creates a database client from the Postgres config.
func NewClient(ctx context.Context, cfg config.PostgresConfig) (*Client, error) {
	dsn := cfg.DSN()

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres DSN: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("opening postgres pool: %w", err)
	}

	return &Client{pool: pool, dsn: dsn}, nil
}

// Pool returns the underlying pgx pool for direct queries.
func (c *Client) Pool() *pgxpool.Pool {
	return c.pool
}

// Ping verifies database connectivity.
func (c *Client) Ping(ctx context.Context) error {
	return c.pool.Ping(ctx)
}

// Close releases all pool connections.
func (c *Client) Close() {
	c.pool.Close()
}
