package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"timeoff/internal/app/server"
	"timeoff/internal/platform/config"
)

func main() {
	if err := run(); err != nil {
		slog.Error("timeoff exited", "err", err)
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load()

	var migrateOnly bool
	flagSet := pflag.NewFlagSet("timeoff", pflag.ContinueOnError)
	flagSet.StringVar(&cfg.Addr, "addr", cfg.Addr, "listen address (overrides APP_ADDR)")
	flagSet.BoolVar(&migrateOnly, "migrate-only", false, "apply migrations and the bootstrap seed, then exit")
	flagSet.BoolVar(&cfg.Ephemeral, "ephemeral", false, "keep all data in process memory (development only)")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if migrateOnly {
		if err := server.Migrate(ctx, cfg); err != nil {
			return err
		}
		slog.Info("migrations applied")
		return nil
	}

	app, err := server.Build(ctx, cfg)
	if err != nil {
		return err
	}
	return app.Serve(ctx)
}
