// Package config reads the service configuration from the environment.
// A .env file in the working directory is loaded first when present;
// variables already set in the environment win over it.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/neomorfeo/circulation/internal/adapter/otel"
	"github.com/neomorfeo/circulation/internal/domain"
)

// Config is the complete runtime configuration of the service.
type Config struct {
	Port         string
	StoreDriver  string // "sqlite" or "postgres"
	DatabasePath string // SQLite file
	DatabaseURL  string // Postgres DSN
	LogLevel     slog.Level
	Policy       domain.Policy
	Otel         otel.Config
}

// DSN returns the data source name for the configured driver.
func (c Config) DSN() string {
	if c.StoreDriver == "postgres" {
		return c.DatabaseURL
	}
	return c.DatabasePath
}

// Load reads .env (if any) and the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("loading .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from environment variables only.
func FromEnv() (Config, error) {
	cfg := Config{
		Port:         envOrDefault("PORT", "8080"),
		StoreDriver:  envOrDefault("STORE_DRIVER", "sqlite"),
		DatabasePath: envOrDefault("DATABASE_PATH", "circulation.db"),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		Policy:       domain.DefaultPolicy(),
		Otel: otel.Config{
			ServiceName:    envOrDefault("OTEL_SERVICE_NAME", "circulation"),
			ServiceVersion: envOrDefault("OTEL_SERVICE_VERSION", "0.1.0"),
			Environment:    envOrDefault("OTEL_ENVIRONMENT", "development"),
			Exporter:       envOrDefault("OTEL_EXPORTER", otel.ExporterStdout),
			Insecure:       os.Getenv("OTEL_EXPORTER_OTLP_INSECURE") == "true",
		},
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(envOrDefault("LOG_LEVEL", "info"))); err != nil {
		return Config{}, fmt.Errorf("LOG_LEVEL: %w", err)
	}

	switch cfg.StoreDriver {
	case "sqlite":
	case "postgres":
		if cfg.DatabaseURL == "" {
			return Config{}, errors.New("DATABASE_URL is required when STORE_DRIVER=postgres")
		}
	default:
		return Config{}, fmt.Errorf("STORE_DRIVER: unknown driver %q", cfg.StoreDriver)
	}

	if v := os.Getenv("RESERVATION_CAP"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return Config{}, fmt.Errorf("RESERVATION_CAP: want a positive integer, got %q", v)
		}
		cfg.Policy.ReservationCap = n
	}

	if v := os.Getenv("LOAN_PERIOD_DAYS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return Config{}, fmt.Errorf("LOAN_PERIOD_DAYS: want a positive integer, got %q", v)
		}
		cfg.Policy.LoanPeriod = time.Duration(n) * 24 * time.Hour
	}

	if v := os.Getenv("FINE_AMOUNT"); v != "" {
		amount, err := decimal.NewFromString(v)
		if err != nil || amount.IsNegative() {
			return Config{}, fmt.Errorf("FINE_AMOUNT: want a non-negative decimal, got %q", v)
		}
		cfg.Policy.FineAmount = amount
	}

	if v := os.Getenv("OTEL_SAMPLE_RATIO"); v != "" {
		ratio, err := strconv.ParseFloat(v, 64)
		if err != nil || ratio < 0 || ratio > 1 {
			return Config{}, fmt.Errorf("OTEL_SAMPLE_RATIO: want a number between 0 and 1, got %q", v)
		}
		cfg.Otel.SampleRatio = ratio
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
