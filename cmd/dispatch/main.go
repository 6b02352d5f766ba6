// Command dispatch processes at most one pending job and exits.
// It is meant for cron schedulers that do not go through the HTTP trigger.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/facturia/invoice-pipeline/internal/application/service"
	"github.com/facturia/invoice-pipeline/internal/config"
	"github.com/facturia/invoice-pipeline/internal/container"
	"github.com/facturia/invoice-pipeline/pkg/utils"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "Path to config.yaml (default: configs/config.yaml if present)")
	timeout := flag.Duration("timeout", 0, "Overall deadline for the dispatch (default: jobs.dispatch_timeout)")
	flag.Parse()

	os.Exit(run(*configPath, *timeout))
}

func run(configPath string, timeout time.Duration) int {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return 1
	}
	// this process never serves the poller; the cron schedule is the loop
	cfg.Jobs.PollerEnabled = false

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
		Service:    "invoice-dispatch",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return 1
	}
	defer logger.Sync()

	if timeout <= 0 {
		timeout = cfg.Jobs.DispatchTimeout
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	c, err := container.NewContainer(cfg, logger)
	if err != nil {
		logger.Error("Failed to create container", zap.Error(err))
		return 1
	}
	if err := c.Start(ctx); err != nil {
		logger.Error("Failed to start container", zap.Error(err))
		return 1
	}
	defer c.Close()

	outcome, err := c.Services().Dispatch.DispatchOnce(ctx)
	switch {
	case errors.Is(err, service.ErrJobFailed):
		fmt.Println(outcome.Message)
		return 2
	case err != nil:
		logger.Error("Dispatch failed", zap.Error(err))
		return 1
	}

	fmt.Println(outcome.Message)
	return 0
}
