package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"mortgage-copilot/internal/bootstrap"
	"mortgage-copilot/internal/config"
	"mortgage-copilot/internal/devserver"
)

func main() {
	// A missing .env is fine; the process environment still applies.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to load .env", "err", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	logger, err := bootstrap.NewLogger(os.Stdout, cfg.LogLevel)
	if err != nil {
		slog.Error("failed to create logger", "err", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	h, err := bootstrap.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to build handler", "err", err)
		os.Exit(1)
	}

	srv, err := devserver.New(h,
		devserver.WithAddr(fmt.Sprintf(":%d", cfg.HTTPPort)),
		devserver.WithShutdownTimeout(cfg.ShutdownTimeout),
		devserver.WithAllowOrigins(cfg.CORSAllowOrigins),
		devserver.WithLogger(logger),
	)
	if err != nil {
		logger.Error("failed to create dev server", "err", err)
		os.Exit(1)
	}
	if err := srv.Run(ctx); err != nil {
		logger.Error("dev server stopped", "err", err)
		os.Exit(1)
	}
}
