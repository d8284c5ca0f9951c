// Command alfred runs the Alfred web assistant.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	_ "time/tzdata"

	"github.com/alfredchat/alfred/internal/app/runtime"
	"github.com/alfredchat/alfred/internal/app/storage/postgres"
	"github.com/alfredchat/alfred/internal/config"
)

var cli struct {
	Env string `help:"Dotenv file read before the environment." default:".env" type:"path"`

	Serve   ServeCmd   `cmd:"" default:"1" help:"Start the HTTP server."`
	Migrate MigrateCmd `cmd:"" help:"Apply database migrations to the postgres store and exit."`
}

// ServeCmd runs the HTTP server until SIGINT or SIGTERM.
type ServeCmd struct{}

func (c *ServeCmd) Run(ctx context.Context, cfg *config.Config) error {
	log := runtime.NewLogger(cfg)

	app, err := runtime.NewApplication(ctx, cfg, log)
	if err != nil {
		return err
	}

	runErr := app.Run(ctx)
	if runErr != nil {
		log.WithError(runErr).Error("server stopped")
	} else {
		log.Info("shutting down")
	}

	// The serve context is already cancelled here.
	if err := app.Shutdown(context.Background()); err != nil {
		log.WithError(err).Warn("graceful shutdown incomplete")
	}
	return runErr
}

// MigrateCmd applies the embedded schema migrations.
type MigrateCmd struct{}

func (c *MigrateCmd) Run(ctx context.Context, cfg *config.Config) error {
	if cfg.Store.Driver != config.StorePostgres {
		return fmt.Errorf("migrate needs STORE_DRIVER=postgres, have %q", cfg.Store.Driver)
	}
	store, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	runtime.NewLogger(cfg).Info("database schema is up to date")
	return store.Close()
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	kctx := kong.Parse(&cli,
		kong.Name("alfred"),
		kong.Description("Alfred, a personal AI assistant with text and voice chat."),
		kong.UsageOnError(),
		kong.BindTo(ctx, (*context.Context)(nil)),
	)

	cfg, err := config.LoadFile(cli.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "alfred: configuration: %v\n", err)
		os.Exit(2)
	}

	if err := kctx.Run(cfg); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "alfred: %v\n", err)
		os.Exit(1)
	}
}
