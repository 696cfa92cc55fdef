package cli

import (
	"context"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/scribe/pkg/cli/config"
	"github.com/m-mizutani/scribe/pkg/infra/db"
	"github.com/urfave/cli/v3"
)

func cmdMigrate() *cli.Command {
	var dbCfg config.Database

	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply the database schema",
		Flags: dbCfg.Flags(),
		Action: func(ctx context.Context, c *cli.Command) error {
			dbClient, err := db.New(ctx, dbCfg.Config())
			if err != nil {
				return goerr.Wrap(err, "failed to connect to database")
			}
			defer dbClient.Close()

			if err := dbClient.Migrate(ctx); err != nil {
				return err
			}

			ctxlog.From(ctx).Info("Schema applied")
			return nil
		},
	}
}
