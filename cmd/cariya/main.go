package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"cariya/internal/backend"
	"cariya/internal/cli"
	apphttp "cariya/internal/http"
	applog "cariya/internal/log"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentApp)

	cfg, program, err := cli.LoadConfig()
	if err != nil {
		logger.Error("Configuration validation failed", applog.FieldError, err)
		os.Exit(1)
	}

	ctx, stop := cli.SignalContext()
	defer stop()

	components, err := cli.InitComponents(ctx, logger.Logger, cfg, program)
	if err != nil {
		logger.Error("Failed to initialize components", applog.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	defer func() {
		if err := components.Cleanup(); err != nil {
			logger.Error("Cleanup failed", applog.FieldError, err)
		}
	}()

	deps := apphttp.Deps{
		Users:   components.Users,
		Batch:   components.Batch,
		Reports: components.Reports,
		Engine:  components.Engine,
		Logger:  logger,

		TrustedProxies: cfg.TrustedProxies,
	}
	if components.AMQP != nil {
		deps.Scheduler = components.AMQP
	}
	if p, ok := components.Store.(backend.Pinger); ok {
		deps.Ready = p.Ping
	}

	srv := apphttp.NewServer(":"+cfg.Port, deps)
	srv.MaxHeaderBytes = 1 << 16

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting cariya server",
			"port", cfg.Port,
			"backend", cfg.DataBackend,
			"window", components.Engine.Window().Start.Key()+".."+components.Engine.Window().End.Key())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err, ok := <-errCh:
		if ok {
			logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", applog.FieldError, err)
	}
	logger.Info("Server stopped gracefully")
}
