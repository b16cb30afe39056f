package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"mortgage-copilot/internal/bootstrap"
	"mortgage-copilot/internal/config"
)

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
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

	// ---- Handler ----
	h, err := bootstrap.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to build handler", "err", err)
		os.Exit(1)
	}

	lambda.Start(h.Handle)
}
