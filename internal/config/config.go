// Package config loads runtime settings from the environment, after reading
// an optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"booking-bot/internal/database"
	"booking-bot/pkg/logger"

	"github.com/joho/godotenv"
)

const (
	StorageMemory   = "memory"
	StorageBolt     = "bolt"
	StoragePostgres = "postgres"
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	BotToken       string
	BotAPIEndpoint string
	OwnerID        int64

	Storage  string
	BoltPath string
	Database database.Config

	Workers        int
	QueueSize      int
	RateLimit      float64
	RateLimitBurst int
	SessionTTL     time.Duration

	RetryAttempts uint64
	RetryBase     time.Duration
	RetryMax      time.Duration

	DateLayout        string
	TimeLayout        string
	RequireFutureDate bool

	CatalogFile      string
	ReminderSchedule string
	SweepSchedule    string
	MetricsAddr      string

	Logger logger.Config
}

// Load reads .env if present and builds the config from the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds the config from the current environment only.
func FromEnv() (*Config, error) {
	var errs []error

	cfg := &Config{
		BotToken:       os.Getenv("BOT_TOKEN"),
		BotAPIEndpoint: getEnv("BOT_API_ENDPOINT", ""),

		Storage:  strings.ToLower(getEnv("STORAGE", StorageMemory)),
		BoltPath: getEnv("BOLT_PATH", "booking.db"),
		Database: database.Config{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     os.Getenv("DB_USER"),
			Password: os.Getenv("DB_PASSWORD"),
			DBName:   getEnv("DB_NAME", "booking"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},

		DateLayout:       getEnv("DATE_LAYOUT", "2006-01-02"),
		TimeLayout:       getEnv("TIME_LAYOUT", "15:04"),
		CatalogFile:      os.Getenv("CATALOG_FILE"),
		ReminderSchedule: getEnv("REMINDER_SCHEDULE", "0 19-23 * * *"),
		SweepSchedule:    getEnv("SESSION_SWEEP_SCHEDULE", "@every 5m"),
		MetricsAddr:      getEnv("METRICS_ADDR", ":9090"),

		Logger: logger.Config{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
			Output: getEnv("LOG_OUTPUT", "stdout"),
		},
	}

	if cfg.BotToken == "" {
		errs = append(errs, errors.New("BOT_TOKEN is required"))
	}

	var err error
	if cfg.OwnerID, err = getEnvInt64("OWNER_ID", 0); err != nil {
		errs = append(errs, err)
	}
	if cfg.Workers, err = getEnvInt("WORKERS", 4); err != nil {
		errs = append(errs, err)
	}
	if cfg.QueueSize, err = getEnvInt("QUEUE_SIZE", 100); err != nil {
		errs = append(errs, err)
	}
	if cfg.RateLimit, err = getEnvFloat("RATE_LIMIT_PER_SEC", 2); err != nil {
		errs = append(errs, err)
	}
	if cfg.RateLimitBurst, err = getEnvInt("RATE_LIMIT_BURST", 5); err != nil {
		errs = append(errs, err)
	}
	if cfg.SessionTTL, err = getEnvDuration("SESSION_TTL", 30*time.Minute); err != nil {
		errs = append(errs, err)
	}
	attempts, err := getEnvInt("STORE_RETRY_ATTEMPTS", 3)
	if err != nil {
		errs = append(errs, err)
	} else if attempts < 0 {
		errs = append(errs, fmt.Errorf("STORE_RETRY_ATTEMPTS must not be negative"))
	} else {
		cfg.RetryAttempts = uint64(attempts)
	}
	if cfg.RetryBase, err = getEnvDuration("STORE_RETRY_BASE", 100*time.Millisecond); err != nil {
		errs = append(errs, err)
	}
	if cfg.RetryMax, err = getEnvDuration("STORE_RETRY_MAX", 2*time.Second); err != nil {
		errs = append(errs, err)
	}
	if cfg.RequireFutureDate, err = getEnvBool("REQUIRE_FUTURE_DATE", false); err != nil {
		errs = append(errs, err)
	}

	switch cfg.Storage {
	case StorageMemory, StorageBolt, StoragePostgres:
	default:
		errs = append(errs, fmt.Errorf("STORAGE must be one of memory, bolt, postgres, got %q", cfg.Storage))
	}
	if cfg.RetryBase <= 0 {
		errs = append(errs, errors.New("STORE_RETRY_BASE must be positive"))
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return cfg, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvInt64(key string, def int64) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func getEnvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getEnvBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}
