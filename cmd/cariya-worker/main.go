package main

import (
	"os"

	"cariya/internal/cli"
	applog "cariya/internal/log"
	"cariya/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentWorker)
	logger.Info("Starting cariya-worker")

	cfg, program, err := cli.LoadConfig()
	if err != nil {
		logger.Error("Configuration validation failed", applog.FieldError, err)
		os.Exit(1)
	}

	ctx, stop := cli.SignalContext()
	defer stop()

	components, err := cli.InitComponents(ctx, logger.Logger, cfg, program)
	if err != nil {
		logger.Error("Failed to initialize components", applog.FieldError, err)
		os.Exit(1)
	}
	defer func() {
		if err := components.Cleanup(); err != nil {
			logger.Error("Cleanup failed", applog.FieldError, err)
		}
	}()

	var consumer worker.Consumer
	if components.AMQP != nil {
		consumer = components.AMQP
	} else {
		logger.Warn("No AMQP broker available, running periodic processing only")
	}

	w := worker.NewScoreWorker(components.Batch, consumer, components.Reports, cfg.ProcessInterval)

	logger.Info("Performing startup processing check...")
	if err := w.StartupCheck(ctx); err != nil {
		// Keep running: the next tick or queued request retries.
		logger.Error("Failed startup processing check", applog.FieldError, err)
	}

	logger.Info("Worker running", "interval", cfg.ProcessInterval, "queue", cfg.AMQPQueue)
	if err := w.Run(ctx); err != nil {
		logger.Error("Worker stopped with error", applog.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Worker shutdown complete")
}
