// Command server runs the friendship-plus HTTP API.
//
//	server            start the API (same as "server serve")
//	server serve      start the API
//	server migrate    apply pending database migrations and exit
//
// All settings come from the environment, optionally seeded from a .env
// file; see internal/config.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/sakif/friendship-plus/internal/config"
	"github.com/sakif/friendship-plus/internal/repository/sqlstore"
	"github.com/sakif/friendship-plus/internal/server"
	"github.com/sakif/friendship-plus/internal/telemetry"
)

func main() {
	app := &cli.App{
		Name:   server.ServiceName,
		Usage:  "user accounts and profile directory API",
		Action: serve,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "start the HTTP server",
				Action: serve,
			},
			{
				Name:   "migrate",
				Usage:  "apply pending database migrations and exit",
				Action: migrate,
			},
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serve(c *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	shutdownTracing, err := telemetry.Setup(c.Context, server.ServiceName, cfg.OTelEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("flushing traces", slog.String("error", err.Error()))
		}
	}()

	srv, err := server.New(c.Context, cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		return err
	}

	// Run blocks until SIGINT or SIGTERM cancels the context.
	if err := srv.Run(c.Context); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		return err
	}
	return nil
}

func migrate(c *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	db, err := sqlstore.Connect(c.Context, cfg.DBDriver, cfg.DatabaseURL, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Migrate(c.Context); err != nil {
		return fmt.Errorf("migrating: %w", err)
	}
	logger.Info("migrations applied", slog.String("driver", cfg.DBDriver))
	return nil
}

// newLogger logs text at Debug in development and JSON at Info in
// production.
func newLogger(cfg config.Config) *slog.Logger {
	if cfg.IsProduction() {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}
