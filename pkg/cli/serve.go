package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-mizutani/goerr/v2"
	httpctrl "github.com/secmon-lab/bulkdm/pkg/controller/http"
	"github.com/secmon-lab/bulkdm/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func cmdServe(env *environment) *cli.Command {
	var addr string
	var origins []string

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "HTTP server address",
			Value:       "127.0.0.1:8080",
			Sources:     cli.EnvVars("BULKDM_ADDR"),
			Destination: &addr,
		},
		&cli.StringSliceFlag{
			Name:        "allowed-origin",
			Usage:       "Origin pattern allowed to open the roster event websocket (repeatable)",
			Sources:     cli.EnvVars("BULKDM_ALLOWED_ORIGINS"),
			Destination: &origins,
		},
	}
	flags = append(flags, env.roster.Flags()...)

	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Start the local JSON API",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			uc, closer, err := env.build(ctx)
			if err != nil {
				return err
			}
			defer closer()

			// Initial sync and periodic refresh run in the background
			refreshWorker := env.roster.Worker(uc.Roster)
			if err := refreshWorker.Start(ctx); err != nil {
				return goerr.Wrap(err, "failed to start roster refresh worker")
			}

			server := &http.Server{
				Addr:              addr,
				Handler:           httpctrl.New(uc.Roster, uc.Dispatch, httpctrl.WithAllowedOrigins(origins...)),
				ReadHeaderTimeout: 30 * time.Second,
			}

			// Setup signal handling for graceful shutdown
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sigCh)

			// Start server in goroutine
			errCh := make(chan error, 1)
			go func() {
				logging.Default().Info("Starting HTTP server", "addr", addr, "csv", uc.Roster.CSVPath())
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- goerr.Wrap(err, "failed to start server")
				}
			}()

			// Wait for shutdown signal or server error
			select {
			case err := <-errCh:
				refreshWorker.Stop()
				return err
			case sig := <-sigCh:
				logging.Default().Info("Received shutdown signal", "signal", sig)
			case <-ctx.Done():
				logging.Default().Info("Context cancelled, shutting down")
			}

			// Stop roster refresh worker first
			refreshWorker.Stop()

			// Create shutdown context with timeout
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			// Attempt graceful shutdown
			if err := server.Shutdown(shutdownCtx); err != nil {
				return goerr.Wrap(err, "failed to shutdown server gracefully")
			}

			logging.Default().Info("Server shutdown completed")
			return nil
		},
	}
}
