package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/scribe/pkg/cli/config"
	controller "github.com/m-mizutani/scribe/pkg/controller/queue"
	"github.com/m-mizutani/scribe/pkg/infra/db"
	"github.com/m-mizutani/scribe/pkg/infra/llm"
	"github.com/m-mizutani/scribe/pkg/infra/queue"
	"github.com/m-mizutani/scribe/pkg/usecase"
	"github.com/urfave/cli/v3"
)

func cmdWorker() *cli.Command {
	var (
		dbCfg     config.Database
		queueCfg  config.Queue
		geminiCfg config.Gemini

		prefetch       int64
		sweepInterval  time.Duration
		sweepStaleness time.Duration
	)

	flags := append(dbCfg.Flags(), queueCfg.Flags()...)
	flags = append(flags, geminiCfg.Flags()...)
	flags = append(flags,
		&cli.Int64Flag{
			Name:        "prefetch",
			Usage:       "Maximum workflow runs in flight at once",
			Value:       5,
			Destination: &prefetch,
			Sources:     cli.EnvVars("SCRIBE_PREFETCH"),
		},
		&cli.DurationFlag{
			Name:        "sweep-interval",
			Usage:       "How often the reconciliation sweep runs (0 disables it)",
			Value:       time.Minute,
			Destination: &sweepInterval,
			Sources:     cli.EnvVars("SCRIBE_SWEEP_INTERVAL"),
		},
		&cli.DurationFlag{
			Name:        "sweep-staleness",
			Usage:       "Age before an unprocessed event is re-published",
			Value:       5 * time.Minute,
			Destination: &sweepStaleness,
			Sources:     cli.EnvVars("SCRIBE_SWEEP_STALENESS"),
		},
	)

	return &cli.Command{
		Name:    "worker",
		Aliases: []string{"w"},
		Usage:   "Start the dispatch queue consumer",
		Flags:   flags,
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

			llmClient, err := geminiCfg.Configure(ctx)
			if err != nil {
				return err
			}
			generator, err := llm.New(llmClient)
			if err != nil {
				return goerr.Wrap(err, "failed to create LLM client")
			}

			summarizeUC := usecase.NewSummarize(dbClient, generator, generator, generator)
			consumer := controller.NewConsumer(queueClient, summarizeUC,
				controller.WithPrefetch(int(prefetch)))

			runCtx, cancel := context.WithCancel(ctx)
			defer cancel()

			// Periodic reconciliation sweep alongside the consumer.
			if sweepInterval > 0 {
				reconcileUC := usecase.NewReconcile(dbClient, queueClient,
					usecase.WithStaleAfter(sweepStaleness))
				go func() {
					ticker := time.NewTicker(sweepInterval)
					defer ticker.Stop()
					for {
						select {
						case <-runCtx.Done():
							return
						case <-ticker.C:
							if _, err := reconcileUC.Republish(runCtx); err != nil {
								logger.Warn("reconciliation sweep failed", "error", err)
							}
						}
					}
				}()
			}

			done := make(chan error, 1)
			go func() {
				done <- consumer.Run(runCtx)
			}()

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

			select {
			case err := <-done:
				return err
			case sig := <-sigChan:
				logger.Info("Signal received, shutting down...", slog.Any("signal", sig))
				cancel()
			case <-ctx.Done():
				logger.Info("Context cancelled, shutting down...")
				cancel()
			}

			select {
			case err := <-done:
				return err
			case <-time.After(30 * time.Second):
				return goerr.New("consumer did not stop in time")
			}
		},
	}
}
