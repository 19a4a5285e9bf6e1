package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"NewsFlow/internal/app"
	"NewsFlow/internal/config"
	"NewsFlow/internal/logging"
)

func main() {
	once := flag.Bool("once", false, "run a single pipeline pass and exit")
	flag.Parse()

	// Missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.Load()
	logger := logging.NewWithFormat(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}

	run := application.Run
	if *once {
		run = application.RunOnce
	}

	if err := run(ctx); err != nil {
		logger.Error("application stopped", "error", err)
		os.Exit(1)
	}
}
