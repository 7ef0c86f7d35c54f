// Package cli provides common initialization shared by cmd/cariya,
// cmd/cariya-worker and cmd/cariyactl.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"cariya/internal/backend"
	"cariya/internal/config"
	applog "cariya/internal/log"
)

// SetupLogger installs the application logger as the slog default.
// LOG_LEVEL and LOG_FORMAT (text or json) adjust it.
func SetupLogger(component string) *applog.Logger {
	cfg := applog.DefaultConfig()
	cfg.Component = component
	cfg.Level = applog.ParseLevel(os.Getenv("LOG_LEVEL"))
	if os.Getenv("LOG_FORMAT") == "json" {
		cfg.Format = "json"
	}
	logger := applog.New(cfg)
	applog.SetDefault(logger)
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadConfig reads and validates the environment configuration and the
// program file it points at.
func LoadConfig() (*config.Config, config.Program, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, config.Program{}, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, config.Program{}, err
	}
	program, err := config.LoadProgram(cfg.ProgramFile)
	if err != nil {
		return nil, config.Program{}, fmt.Errorf("program: %w", err)
	}
	return cfg, program, nil
}

// InitComponents builds the backend for cfg.
func InitComponents(ctx context.Context, logger *slog.Logger, cfg *config.Config, program config.Program) (*backend.Components, error) {
	bcfg, err := backend.FromAppConfig(cfg, program)
	if err != nil {
		return nil, err
	}
	return backend.NewFactory(logger).Build(ctx, bcfg)
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
