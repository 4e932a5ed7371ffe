package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kon-rad/lsp-log-store/internal/app"
	"github.com/kon-rad/lsp-log-store/internal/config"
	"github.com/kon-rad/lsp-log-store/internal/logging"
)

var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	fs := flag.NewFlagSet("lsp-log-store", flag.ContinueOnError)
	fs.Usage = func() { config.WriteHelp(os.Stderr, version) }
	showHelp := fs.Bool("help", false, "print configuration help")
	showVersion := fs.Bool("version", false, "print version")
	migrateOnly := fs.Bool("migrate-only", false, "apply migrations and exit")
	if err := fs.Parse(os.Args[1:]); err != nil {
		return 2
	}

	if *showHelp {
		config.WriteHelp(os.Stdout, version)
		return 0
	}
	if *showVersion {
		fmt.Println(version)
		return 0
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	logger, err := logging.Setup(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	rt := app.New(cfg, logger, version)
	if *migrateOnly {
		if err := rt.Migrate(ctx); err != nil {
			logger.Error("migration failed", "error", err)
			return 1
		}
		return 0
	}

	logger.Info("Starting lsp-log-store", "version", version, "driver", cfg.DBDriver)
	if err := rt.Run(ctx); err != nil {
		logger.Error("runtime stopped with error", "error", err)
		return 1
	}
	return 0
}
