package backend

import (
	"context"
	"time"

	"cariya/internal/amqp"
	"cariya/internal/analytics"
	"cariya/internal/config"
	"cariya/internal/docstore"
	"cariya/internal/scoring"
	"cariya/internal/services"
	"cariya/internal/sheets"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// Components is everything a binary needs, built from one configuration.
type Components struct {
	Store    docstore.Store
	Engine   *scoring.Engine
	Users    *services.UserService
	Batch    *services.BatchProcessor
	Reports  *services.Reports
	Analyzer *analytics.Analyzer
	// Sheets is nil when no donor report spreadsheet is configured.
	Sheets sheets.DonorReportWriter
	// AMQP is nil when no broker is configured or it was unreachable.
	AMQP    *amqp.Client
	Program config.Program
	Cleanup CleanupFunc
}

// Pinger is implemented by stores that can report their health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Factory creates components based on configuration
type Factory interface {
	Build(ctx context.Context, cfg Config) (*Components, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	SQLiteDBPath string

	AMQPURL         string
	AMQPExchange    string
	AMQPQueue       string
	AMQPEventsQueue string

	GoogleSpreadsheetID string
	DonorSheetName      string

	ReportCacheSize int
	ReportCacheTTL  time.Duration

	Program config.Program
}

// BackendType represents the type of document store
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
