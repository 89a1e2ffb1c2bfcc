package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/lsjoeberg/deltactl/commitlock"
	"github.com/lsjoeberg/deltactl/gologger"
	"github.com/lsjoeberg/deltactl/migrations"
	"github.com/lsjoeberg/deltactl/server"
	"github.com/lsjoeberg/deltactl/utils"
	"github.com/spf13/cobra"
)

var logger = gologger.NewLogger()

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the maintenance HTTP API",
		Long: `Serve the maintenance operations over HTTP. Listens on HTTP_PORT
(default 8080). When DELTACTL_LOCK_DSN is set, S3 table commits are
serialized through the Postgres commit lock.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger.Debug().Msg("starting deltactl server")

			var lockPool *pgxpool.Pool
			if utils.LOCK_DSN != "" {
				if _, err := migrations.RunMigrations(utils.LOCK_DSN); err != nil {
					return fmt.Errorf("error running lock migrations: %w", err)
				}
				if err := migrations.CheckMigrations(utils.LOCK_DSN); err != nil {
					return fmt.Errorf("error checking lock migrations: %w", err)
				}
				var err error
				lockPool, err = commitlock.Connect(cmd.Context(), utils.LOCK_DSN)
				if err != nil {
					return fmt.Errorf("error connecting to lock DB: %w", err)
				}
				defer lockPool.Close()
			}

			httpServer := server.StartHTTPServer(lockPool)

			c := make(chan os.Signal, 1)
			signal.Notify(c, os.Interrupt, syscall.SIGTERM)
			<-c
			logger.Warn().Msg("received shutdown signal!")

			// For AWS ALB needing some time to de-register pod
			// Convert the time to seconds
			sleepTime := utils.GetEnvOrDefaultInt("SHUTDOWN_SLEEP_SEC", 0)
			logger.Info().Msg(fmt.Sprintf("sleeping for %ds before exiting", sleepTime))

			time.Sleep(time.Second * time.Duration(sleepTime))
			logger.Info().Msg(fmt.Sprintf("slept for %ds, exiting", sleepTime))

			ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
			defer cancel()
			if err := httpServer.Shutdown(ctx); err != nil {
				logger.Error().Err(err).Msg("failed to shutdown HTTP server")
			} else {
				logger.Info().Msg("successfully shutdown HTTP server")
			}
			return nil
		},
	}
}
