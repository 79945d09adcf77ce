// Command cookflow runs the telemetry ingestion service configured from the
// environment (and an optional .env file).
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/drblury/cookflow"
)

func main() {
	if err := run(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	bootLogger := cookflow.NewJSONServiceLogger(os.Stderr, cookflow.ParseLogLevel(os.Getenv("COOKFLOW_LOG_LEVEL")))

	if err := cookflow.LoadEnvFile(".env"); err != nil {
		bootLogger.Error("Failed to load .env file", err, nil)
		return err
	}
	cfg, err := cookflow.FromEnv(os.LookupEnv)
	if err != nil {
		bootLogger.Error("Invalid environment", err, nil)
		return err
	}
	logger := cookflow.NewJSONServiceLogger(os.Stdout, cookflow.ParseLogLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := cookflow.NewService(ctx, &cfg, logger, cookflow.ServiceDependencies{
		Hooks: cookflow.LoggingHooks(logger),
	})
	if err != nil {
		logger.Error("Failed to create service", err, nil)
		return err
	}

	if err := svc.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Service stopped", err, nil)
		return err
	}
	logger.Info("Service stopped", nil)
	return nil
}
