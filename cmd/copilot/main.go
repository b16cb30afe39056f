package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/jessevdk/go-flags"

	"mortgage-copilot/internal/cli"
	"mortgage-copilot/internal/integrations/chatapi"
	"mortgage-copilot/internal/session"
	"mortgage-copilot/internal/workflow"
)

// Options are interpreted by github.com/jessevdk/go-flags.
type Options struct {
	URL     string        `short:"u" long:"url" env:"COPILOT_URL" default:"http://localhost:8080" description:"base URL of the copilot deployment"`
	Timeout time.Duration `short:"t" long:"timeout" default:"10s" description:"per-request timeout"`
	Stage   int           `short:"s" long:"stage" default:"1" description:"stage to start on (1-based)"`
	Verbose bool          `short:"v" long:"verbose" description:"enable debug logging"`
}

func main() {
	opts := &Options{}
	parser := flags.NewParser(opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	level := slog.LevelWarn
	if opts.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	client := chatapi.NewClient(
		chatapi.WithBaseURL(opts.URL),
		chatapi.WithHTTPClient(&http.Client{Timeout: opts.Timeout}),
	)

	catalog, err := client.Catalog(ctx)
	if err != nil {
		logger.Warn("falling back to the built-in workflow", "url", opts.URL, "err", err)
		catalog = workflow.Default()
	}

	ctrl, err := session.New(catalog, client, session.WithLogger(logger))
	if err != nil {
		logger.Error("failed to start session", "err", err)
		os.Exit(1)
	}
	if opts.Stage != 1 {
		if err := ctrl.SelectStage(opts.Stage - 1); err != nil {
			logger.Error("invalid start stage", "stage", opts.Stage, "err", err)
			os.Exit(1)
		}
	}

	repl, err := cli.NewREPL(ctrl, catalog, os.Stdout)
	if err != nil {
		logger.Error("failed to start repl", "err", err)
		os.Exit(1)
	}
	if err := repl.Run(ctx, os.Stdin); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("repl stopped", "err", err)
		os.Exit(1)
	}
}
