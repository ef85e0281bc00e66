// Command driftwatchd is the DriftWatch daemon: the ingest edge, worker
// pool, retention sweeper, and HTTP/JSON API in one process. Grounded on
// cmd/rook/main.go's runAgent: flag parsing, signal.NotifyContext for
// SIGINT/SIGTERM, a SIGHUP config-reload hook.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Suvan8806/driftwatch/internal/config"
)

func main() {
	fs := flag.NewFlagSet("driftwatchd", flag.ExitOnError)
	configPath := fs.String("config", "/etc/driftwatch/config.toml", "path to config file")
	fs.Parse(os.Args[1:])

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := NewApplication(cfg)
	if err != nil {
		slog.Error("failed to build application", "error", err)
		os.Exit(1)
	}

	sighup := make(chan os.Signal, 1)
	signal.Notify(sighup, syscall.SIGHUP)
	go func() {
		for range sighup {
			if err := app.Reload(*configPath); err != nil {
				slog.Error("config reload failed", "error", err)
			}
		}
	}()

	if err := app.Run(ctx); err != nil {
		slog.Error("driftwatchd stopped with error", "error", err)
		os.Exit(1)
	}
}
