package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/relayhttp/relay/internal/cli"
	"github.com/relayhttp/relay/internal/config"
	"github.com/relayhttp/relay/internal/logging"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		logging.Nop().Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	if err := cli.Execute(ctx, cfg, logger); err != nil {
		logger.Error("execution failed", "error", err)
		os.Exit(1)
	}
}
