package cli

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/scribe/pkg/cli/config"
	controller "github.com/m-mizutani/scribe/pkg/controller/http"
	"github.com/m-mizutani/scribe/pkg/infra/db"
	"github.com/m-mizutani/scribe/pkg/infra/queue"
	"github.com/m-mizutani/scribe/pkg/usecase"
	"github.com/m-mizutani/scribe/pkg/utils/async"
	"github.com/urfave/cli/v3"
)

func cmdServe() *cli.Command {
	var (
		serverCfg config.Server
		dbCfg     config.Database
		queueCfg  config.Queue
	)

	flags := append(serverCfg.Flags(), dbCfg.Flags()...)
	flags = append(flags, queueCfg.Flags()...)

	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Start the webhook intake HTTP server",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			logger := ctxlog.From(ctx)

			logger.Info("Starting scribe server",
				slog.String("addr", serverCfg.Addr),
			)

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

			admissionUC := usecase.NewAdmission(dbClient, queueClient)

			server, err := controller.NewServer(
				ctx,
				dbClient,
				admissionUC,
				controller.WithAddr(serverCfg.Addr),
			)
			if err != nil {
				return goerr.Wrap(err, "failed to create HTTP server")
			}

			// The listener outlives the command context during shutdown, so
			// it runs detached with its own panic recovery.
			async.Dispatch(ctx, func(ctx context.Context) error {
				logger.Info("HTTP server starting", slog.String("addr", serverCfg.Addr))
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					return goerr.Wrap(err, "HTTP server error")
				}
				return nil
			})

			// Wait for interrupt signal
			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

			select {
			case <-ctx.Done():
				logger.Info("Context cancelled, shutting down...")
			case sig := <-sigChan:
				logger.Info("Signal received, shutting down...", slog.Any("signal", sig))
			}

			// Graceful shutdown
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()

			if err := server.Shutdown(shutdownCtx); err != nil {
				return goerr.Wrap(err, "failed to shutdown server gracefully")
			}

			logger.Info("Server shutdown complete")
			return nil
		},
	}
}
