package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"cariya/internal/amqp"
	"cariya/internal/analytics"
	"cariya/internal/cache"
	"cariya/internal/core"
	"cariya/internal/docstore"
	"cariya/internal/docstore/memory"
	"cariya/internal/scoring"
	"cariya/internal/services"
	"cariya/internal/sheets"
	gsheet "cariya/internal/sheets/google"
	"cariya/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger,
	}
}

// Build opens the store, connects the optional broker and report sheet,
// and wires the services on top. Optional integrations that fail to start
// are logged and left out.
func (f *DefaultFactory) Build(ctx context.Context, cfg Config) (*Components, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	store, err := f.openStore(cfg)
	if err != nil {
		return nil, err
	}

	window, err := cfg.Program.ProgramWindow()
	if err != nil {
		store.Close()
		return nil, err
	}
	engine := scoring.NewEngine(store, scoring.Config{Unit: cfg.Program.Unit(), Window: window})

	var amqpClient *amqp.Client
	var events services.EventPublisher
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, cfg.AMQPEventsQueue)
		if err != nil {
			f.logger.Warn("Failed to initialize AMQP client, continuing without events", "error", err)
			amqpClient = nil
		} else {
			events = amqpClient
			f.logger.Info("Initialized AMQP client",
				"exchange", cfg.AMQPExchange,
				"queue", cfg.AMQPQueue,
				"events_queue", cfg.AMQPEventsQueue)
		}
	}

	reportWriter := f.reportWriter(ctx, cfg)

	thresholds := analytics.Thresholds{
		High:               cfg.Program.Thresholds.High,
		Moderate:           cfg.Program.Thresholds.Moderate,
		ChildrenAssumption: cfg.Program.Thresholds.ChildrenAssumption,
	}
	analyzer := analytics.NewAnalyzer(store, engine, thresholds)

	size := cfg.ReportCacheSize
	if size < 1 {
		size = 16
	}
	segmentsCache := cache.NewLRUCache[analytics.Report](size, cfg.ReportCacheTTL)
	donorCache := cache.NewLRUCache[core.DonorView](size, cfg.ReportCacheTTL)
	reports := services.NewReports(store, analyzer, segmentsCache, donorCache)

	caches := cache.NewManager()
	caches.Register(segmentsCache)
	caches.Register(donorCache)
	if cfg.ReportCacheTTL > 0 {
		caches.StartCleanup(cfg.ReportCacheTTL)
	}

	f.logger.Info("Initialized backend",
		"type", cfg.Type,
		"window_start", window.Start,
		"window_end", window.End,
		"unit", cfg.Program.Unit(),
		"amqp_enabled", amqpClient != nil)

	return &Components{
		Store:    store,
		Engine:   engine,
		Users:    services.NewUserService(store, engine, events),
		Batch:    services.NewBatchProcessor(store, engine, events, reportWriter),
		Reports:  reports,
		Analyzer: analyzer,
		Sheets:   reportWriter,
		AMQP:     amqpClient,
		Program:  cfg.Program,
		Cleanup: func() error {
			caches.Stop()
			var errs []error
			if amqpClient != nil {
				errs = append(errs, amqpClient.Close())
			}
			errs = append(errs, store.Close())
			return errors.Join(errs...)
		},
	}, nil
}

func (f *DefaultFactory) openStore(cfg Config) (docstore.Store, error) {
	switch cfg.Type {
	case SQLiteBackend:
		repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		f.logger.Info("Initialized SQLite store", "db_path", cfg.SQLiteDBPath)
		return repo, nil
	case MemoryBackend:
		f.logger.Info("Initialized memory store")
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", cfg.Type)
	}
}

// reportWriter returns nil when no spreadsheet is configured or the client
// cannot start; month runs then skip the export.
func (f *DefaultFactory) reportWriter(ctx context.Context, cfg Config) sheets.DonorReportWriter {
	if cfg.GoogleSpreadsheetID == "" {
		return nil
	}
	cli, err := gsheet.New(ctx, cfg.GoogleSpreadsheetID, cfg.DonorSheetName)
	if err != nil {
		f.logger.Warn("Failed to initialize Google Sheets client, skipping donor report export", "error", err)
		return nil
	}
	f.logger.Info("Initialized Google Sheets donor report", "sheet", cfg.DonorSheetName)
	return cli
}
