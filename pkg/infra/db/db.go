package db

import (
	"context"
	_ "embed"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/m-mizutani/goerr/v2"
)

//go:embed schema.sql
var schemaSQL string

// Client wraps a pgxpool.Pool and provides transaction support. It is opened
// once at process start and closed at shutdown; nothing else holds a
// connection.
type Client struct {
	pool *pgxpool.Pool
}

// Config holds connection pool settings.
type Config struct {
	DSN      string
	MaxConns int32
}

// New connects to PostgreSQL and verifies the connection.
func New(ctx context.Context, cfg Config) (*Client, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to parse database config")
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create connection pool")
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, goerr.Wrap(err, "failed to ping database")
	}

	return &Client{pool: pool}, nil
}

// Close releases the connection pool.
func (c *Client) Close() {
	c.pool.Close()
}

// Migrate applies the embedded schema. Statements are idempotent so running
// it at every startup is safe.
func (c *Client) Migrate(ctx context.Context) error {
	if _, err := c.pool.Exec(ctx, schemaSQL); err != nil {
		return goerr.Wrap(err, "failed to apply schema")
	}
	return nil
}

// withTx executes fn inside a transaction, rolling back on error. The
// deferred rollback is a no-op once the transaction committed.
func (c *Client) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return goerr.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return goerr.Wrap(err, "failed to commit transaction")
	}
	return nil
}
