package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/trigg3rX/proof-coordinator/internal/coordinator"
	"github.com/trigg3rX/proof-coordinator/internal/coordinator/config"
	"github.com/trigg3rX/proof-coordinator/pkg/logging"
	"github.com/urfave/cli/v2"
)

const shutdownTimeout = 10 * time.Second

var version = "dev"

func main() {
	app := &cli.App{
		Name:    "coordinator",
		Usage:   "Bridge on-chain proving tasks to the proving cluster",
		Version: version,
		Flags:   config.Flags(),
		Action:  run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg, err := config.FromCLI(c)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if !cfg.DevMode {
		gin.SetMode(gin.ReleaseMode)
	}

	logger, err := logging.NewZapLogger(logging.LoggerConfig{
		LogDir:        cfg.LogDir,
		ProcessName:   logging.CoordinatorProcess,
		IsDevelopment: cfg.DevMode,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = logger.Close() }()

	logger.Info("Starting proof coordinator ...", "version", version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	coord, err := coordinator.New(ctx, cfg, logger, version)
	if err != nil {
		logger.Error("Failed to initialize coordinator", "error", err)
		return err
	}
	defer coord.Close()

	done := make(chan error, 1)
	go func() { done <- coord.Run(ctx) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutdown signal received, stopping loops ...")
	select {
	case err := <-done:
		if err != nil {
			return err
		}
		logger.Info("Proof coordinator stopped")
		return nil
	case <-time.After(shutdownTimeout):
		logger.Warn("Shutdown timed out, exiting", "timeout", shutdownTimeout)
		return nil
	}
}
