package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	// HTTP Server
	Port           string   `env:"PORT" envDefault:"8081"`
	TrustedProxies []string `env:"TRUSTED_PROXIES" envSeparator:","`

	// Database
	SQLiteDBPath string `env:"SQLITE_DB_PATH" envDefault:"./data/cariya.db"`

	// AMQP
	AMQPURL         string `env:"AMQP_URL"`
	AMQPExchange    string `env:"AMQP_EXCHANGE" envDefault:"cariya"`
	AMQPQueue       string `env:"AMQP_QUEUE" envDefault:"score_month"`
	AMQPEventsQueue string `env:"AMQP_EVENTS_QUEUE" envDefault:"ledger_events"`

	// Google Sheets donor report
	GoogleSpreadsheetID string `env:"GOOGLE_SPREADSHEET_ID"`
	DonorSheetName      string `env:"DONOR_SHEET_NAME" envDefault:"Donor View"`

	// Program file (window, unit amount, thresholds)
	ProgramFile string `env:"CARIYA_PROGRAM_FILE"`

	// Worker
	ProcessInterval time.Duration `env:"PROCESS_INTERVAL" envDefault:"24h"`

	// Segments report cache
	ReportCacheTTL  time.Duration `env:"REPORT_CACHE_TTL" envDefault:"5m"`
	ReportCacheSize int           `env:"REPORT_CACHE_SIZE" envDefault:"16"`

	// Backend selection
	DataBackend string `env:"DATA_BACKEND" envDefault:"memory"`
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	for _, cidr := range c.TrustedProxies {
		if _, _, err := net.ParseCIDR(strings.TrimSpace(cidr)); err != nil {
			errors = append(errors, fmt.Sprintf("invalid trusted proxy '%s': must be a CIDR", cidr))
		}
	}

	validBackends := []string{"memory", "sqlite"}
	isValidBackend := false
	for _, backend := range validBackends {
		if c.DataBackend == backend {
			isValidBackend = true
			break
		}
	}
	if !isValidBackend {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	if c.DataBackend == "sqlite" {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.GoogleSpreadsheetID != "" && strings.TrimSpace(c.DonorSheetName) == "" {
		errors = append(errors, "donor sheet name is required when GOOGLE_SPREADSHEET_ID is set")
	}

	if c.ProgramFile != "" {
		if _, err := os.Stat(c.ProgramFile); os.IsNotExist(err) {
			errors = append(errors, fmt.Sprintf("program file does not exist: %s", c.ProgramFile))
		}
	}

	if c.ProcessInterval < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid process interval %v: must be at least 1 minute", c.ProcessInterval))
	} else if c.ProcessInterval > 31*24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid process interval %v: must be at most 31 days", c.ProcessInterval))
	}

	if c.ReportCacheSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid report cache size %d: must be at least 1", c.ReportCacheSize))
	}
	if c.ReportCacheTTL < 0 {
		errors = append(errors, fmt.Sprintf("invalid report cache TTL %v: must not be negative", c.ReportCacheTTL))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}
