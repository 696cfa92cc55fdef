package config

import (
	"github.com/m-mizutani/scribe/pkg/infra/db"
	"github.com/urfave/cli/v3"
)

// Database holds PostgreSQL configuration
type Database struct {
	DSN      string
	MaxConns int64
}

// Flags returns CLI flags for database configuration
func (c *Database) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "db-dsn",
			Usage:       "PostgreSQL connection string",
			Required:    true,
			Destination: &c.DSN,
			Sources:     cli.EnvVars("SCRIBE_DB_DSN"),
		},
		&cli.Int64Flag{
			Name:        "db-max-conns",
			Usage:       "Maximum number of pooled connections",
			Value:       8,
			Destination: &c.MaxConns,
			Sources:     cli.EnvVars("SCRIBE_DB_MAX_CONNS"),
		},
	}
}

// Config converts to the storage layer configuration.
func (c *Database) Config() db.Config {
	return db.Config{
		DSN:      c.DSN,
		MaxConns: int32(c.MaxConns),
	}
}
