package cli

import (
	"context"
	"log/slog"
	"time"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/scribe/pkg/cli/config"
	"github.com/m-mizutani/scribe/pkg/infra/db"
	"github.com/m-mizutani/scribe/pkg/infra/queue"
	"github.com/m-mizutani/scribe/pkg/usecase"
	"github.com/urfave/cli/v3"
)

func cmdReconcile() *cli.Command {
	var (
		dbCfg    config.Database
		queueCfg config.Queue

		staleness time.Duration
		limit     int64
	)

	flags := append(dbCfg.Flags(), queueCfg.Flags()...)
	flags = append(flags,
		&cli.DurationFlag{
			Name:        "staleness",
			Usage:       "Age before an unprocessed event is re-published",
			Value:       5 * time.Minute,
			Destination: &staleness,
			Sources:     cli.EnvVars("SCRIBE_SWEEP_STALENESS"),
		},
		&cli.Int64Flag{
			Name:        "limit",
			Usage:       "Maximum events to re-publish in one sweep",
			Value:       100,
			Destination: &limit,
			Sources:     cli.EnvVars("SCRIBE_SWEEP_LIMIT"),
		},
	)

	return &cli.Command{
		Name:  "reconcile",
		Usage: "Re-publish stale unprocessed events once and exit",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			logger := ctxlog.From(ctx)

			dbClient, err := db.New(ctx, dbCfg.Config())
			if err != nil {
				return goerr.Wrap(err, "failed to connect to database")
			}
			defer dbClient.Close()

			queueClient, err := queue.New(queueCfg.Config())
			if err != nil {
				return goerr.Wrap(err, "failed to connect to queue")
			}
			defer queueClient.Close()

			uc := usecase.NewReconcile(dbClient, queueClient,
				usecase.WithStaleAfter(staleness),
				usecase.WithSweepLimit(int(limit)),
			)

			published, err := uc.Republish(ctx)
			if err != nil {
				return err
			}

			logger.Info("Reconciliation sweep complete", slog.Int("published", published))
			return nil
		},
	}
}
