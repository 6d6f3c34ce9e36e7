package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/funnelworks/funnel/adapter/cli"
	"github.com/funnelworks/funnel/internal/app"
	"github.com/funnelworks/funnel/pkg/config"
	"github.com/funnelworks/funnel/pkg/observability"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := observability.LoggerFromEnv()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	container, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to build application", "error", err)
		os.Exit(1)
	}
	defer container.Close()

	if err := cli.RunWorker(ctx, container); err != nil {
		logger.Error("worker failed", "error", err)
		os.Exit(1)
	}
}
