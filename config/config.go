package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration. Values come from flags first,
// then the environment (with .env support), then defaults.
type Config struct {
	Port         int
	DatabasePath string

	// FiscalYearStartMonth is a business input (1-12); yearly periods
	// anchor on it.
	FiscalYearStartMonth time.Month

	// Invoice numbering policy - an external collaborator's concern,
	// consumed here as plain configuration.
	InvoicePrefix  string
	InvoicePadding int
	InvoiceStart   int

	// SchedulerInterval is how often the background backfill/overdue sweep
	// runs. Zero disables the scheduler.
	SchedulerInterval time.Duration
}

// Load reads .env (if present) and the environment. Empty flag values fall
// back to env vars, then defaults.
func Load(dbPath string, port int) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	if dbPath == "" {
		dbPath = getEnv("DATABASE_PATH", "./obligations.db")
	}
	if port == 0 {
		port = getEnvInt("PORT", 8080)
	}

	fyMonth := getEnvInt("FISCAL_YEAR_START_MONTH", 4)
	if fyMonth < 1 || fyMonth > 12 {
		return nil, fmt.Errorf("FISCAL_YEAR_START_MONTH must be 1-12, got %d", fyMonth)
	}

	interval := time.Duration(getEnvInt("SCHEDULER_INTERVAL_MINUTES", 60)) * time.Minute

	return &Config{
		Port:                 port,
		DatabasePath:         dbPath,
		FiscalYearStartMonth: time.Month(fyMonth),
		InvoicePrefix:        getEnv("INVOICE_PREFIX", "INV-"),
		InvoicePadding:       getEnvInt("INVOICE_PADDING", 4),
		InvoiceStart:         getEnvInt("INVOICE_START", 1),
		SchedulerInterval:    interval,
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
