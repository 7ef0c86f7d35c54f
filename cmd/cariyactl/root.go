package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"cariya/internal/backend"
	"cariya/internal/cli"
	"cariya/internal/config"
	applog "cariya/internal/log"
)

type rootOptions struct {
	backend     string
	dbPath      string
	programFile string
	logLevel    string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "cariyactl",
		Short:         "Cariya savings program administration",
		Long:          "Settle program months, register users and print compliance and donor reports.",
		SilenceUsage:  true,
	}

	root.PersistentFlags().StringVar(&opts.backend, "backend", "", "Data backend (memory or sqlite); overrides DATA_BACKEND")
	root.PersistentFlags().StringVar(&opts.dbPath, "db", "", "SQLite database path; overrides SQLITE_DB_PATH")
	root.PersistentFlags().StringVar(&opts.programFile, "program", "", "Program TOML file; overrides CARIYA_PROGRAM_FILE")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "Log level written to stderr")

	root.AddCommand(
		newProcessMonthCmd(opts),
		newSegmentsCmd(opts),
		newDonorViewCmd(opts),
		newRegisterCmd(opts),
		newMigrateCmd(opts),
	)
	return root
}

// loadConfig reads the environment and applies the command line overrides.
func (o *rootOptions) loadConfig() (*config.Config, config.Program, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, config.Program{}, err
	}
	if o.backend != "" {
		cfg.DataBackend = o.backend
	}
	if o.dbPath != "" {
		cfg.SQLiteDBPath = o.dbPath
	}
	if o.programFile != "" {
		cfg.ProgramFile = o.programFile
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

// withComponents builds the backend, runs fn and releases the backend.
func (o *rootOptions) withComponents(cmd *cobra.Command, fn func(ctx context.Context, c *backend.Components) error) error {
	logger := applog.New(applog.Config{
		Level:     applog.ParseLevel(o.logLevel),
		Component: applog.ComponentApp,
		Output:    cmd.ErrOrStderr(),
	})
	applog.SetDefault(logger)

	cfg, program, err := o.loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	components, err := cli.InitComponents(ctx, logger.Logger, cfg, program)
	if err != nil {
		return err
	}
	defer func() {
		if err := components.Cleanup(); err != nil {
			cmd.PrintErrf("cleanup: %v\n", err)
		}
	}()
	return fn(ctx, components)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
