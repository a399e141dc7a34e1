package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App struct {
		Environment string
		LogLevel    string
		LogDir      string
		Port        int
	}

	Market struct {
		BaseURL  string
		APIKey   string
		Currency string
		PageSize int
		Timeout  time.Duration
	}

	Scheduler struct {
		Interval        time.Duration
		ErrorBackoff    time.Duration
		MaxBackoff      time.Duration
		MaxFailures     int
		BackoffStrategy string
	}

	Broadcast struct {
		QueueSize    int
		WriteTimeout time.Duration
		PingInterval time.Duration
	}

	Sheets struct {
		Enabled         bool
		SpreadsheetID   string
		SheetName       string
		MaxRows         int
		CredentialsFile string
		Timeout         time.Duration
	}

	ClickHouse struct {
		Enabled  bool
		Addr     string
		Database string
		User     string
		Password string
		Table    string
		Timeout  time.Duration
	}

	Redis struct {
		Enabled  bool
		Addr     string
		Password string
		DB       int
		Key      string
		TTL      time.Duration
		Timeout  time.Duration
	}

	Breaker struct {
		MaxRequests uint32
		Interval    time.Duration
		Timeout     time.Duration
		TripRatio   float64
	}
}

const (
	BackoffConstant    = "constant"
	BackoffExponential = "exponential"
)

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	cfg := FromEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv builds a Config from environment variables, applying defaults.
func FromEnv() *Config {
	cfg := &Config{}

	// App settings
	cfg.App.Environment = getEnvOrDefault("APP_ENV", "production")
	cfg.App.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")
	cfg.App.LogDir = getEnvOrDefault("LOG_DIR", "logs")
	cfg.App.Port = getEnvAsIntOrDefault("PORT", 5000)

	// Market data provider
	cfg.Market.BaseURL = getEnvOrDefault("MARKET_BASE_URL", "https://api.coingecko.com/api/v3")
	cfg.Market.APIKey = os.Getenv("MARKET_API_KEY")
	cfg.Market.Currency = getEnvOrDefault("MARKET_CURRENCY", "usd")
	cfg.Market.PageSize = getEnvAsIntOrDefault("MARKET_PAGE_SIZE", 50)
	cfg.Market.Timeout = getEnvAsDurationOrDefault("MARKET_TIMEOUT", 10*time.Second)

	// Refresh cadence
	cfg.Scheduler.Interval = getEnvAsDurationOrDefault("REFRESH_INTERVAL", 300*time.Second)
	cfg.Scheduler.ErrorBackoff = getEnvAsDurationOrDefault("REFRESH_ERROR_BACKOFF", 60*time.Second)
	cfg.Scheduler.MaxBackoff = getEnvAsDurationOrDefault("REFRESH_MAX_BACKOFF", 10*time.Minute)
	cfg.Scheduler.MaxFailures = getEnvAsIntOrDefault("REFRESH_MAX_FAILURES", 5)
	cfg.Scheduler.BackoffStrategy = getEnvOrDefault("REFRESH_BACKOFF_STRATEGY", BackoffConstant)

	// Live broadcast
	cfg.Broadcast.QueueSize = getEnvAsIntOrDefault("BROADCAST_QUEUE_SIZE", 4)
	cfg.Broadcast.WriteTimeout = getEnvAsDurationOrDefault("BROADCAST_WRITE_TIMEOUT", 5*time.Second)
	cfg.Broadcast.PingInterval = getEnvAsDurationOrDefault("BROADCAST_PING_INTERVAL", 10*time.Second)

	// Spreadsheet mirror
	cfg.Sheets.SpreadsheetID = os.Getenv("GOOGLE_SPREADSHEET_ID")
	cfg.Sheets.Enabled = getEnvAsBoolOrDefault("SHEETS_ENABLED", cfg.Sheets.SpreadsheetID != "")
	cfg.Sheets.SheetName = getEnvOrDefault("SHEETS_SHEET_NAME", "Sheet1")
	cfg.Sheets.MaxRows = getEnvAsIntOrDefault("SHEETS_MAX_ROWS", 50)
	cfg.Sheets.CredentialsFile = getEnvOrDefault("GOOGLE_CREDENTIALS_FILE", "credentials.json")
	cfg.Sheets.Timeout = getEnvAsDurationOrDefault("SHEETS_TIMEOUT", 30*time.Second)

	// ClickHouse mirror
	cfg.ClickHouse.Enabled = getEnvAsBoolOrDefault("CLICKHOUSE_ENABLED", false)
	cfg.ClickHouse.Addr = getEnvOrDefault("CLICKHOUSE_ADDR", "localhost:9000")
	cfg.ClickHouse.Database = getEnvOrDefault("CLICKHOUSE_DB", "default")
	cfg.ClickHouse.User = getEnvOrDefault("CLICKHOUSE_USER", "default")
	cfg.ClickHouse.Password = os.Getenv("CLICKHOUSE_PASSWORD")
	cfg.ClickHouse.Table = getEnvOrDefault("CLICKHOUSE_TABLE", "crypto_market_snapshot")
	cfg.ClickHouse.Timeout = getEnvAsDurationOrDefault("CLICKHOUSE_QUERY_TIMEOUT", 30*time.Second)

	// Redis latest-cycle cache
	cfg.Redis.Enabled = getEnvAsBoolOrDefault("REDIS_ENABLED", false)
	cfg.Redis.Addr = getEnvOrDefault("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = os.Getenv("REDIS_PASSWORD")
	cfg.Redis.DB = getEnvAsIntOrDefault("REDIS_DB", 0)
	cfg.Redis.Key = getEnvOrDefault("REDIS_KEY", "crypto_tracker:latest")
	cfg.Redis.TTL = getEnvAsDurationOrDefault("REDIS_TTL", 15*time.Minute)
	cfg.Redis.Timeout = getEnvAsDurationOrDefault("REDIS_TIMEOUT", 5*time.Second)

	// Circuit breaker around persistence
	cfg.Breaker.MaxRequests = uint32(getEnvAsIntOrDefault("BREAKER_MAX_REQUESTS", 1))
	cfg.Breaker.Interval = getEnvAsDurationOrDefault("BREAKER_INTERVAL", 30*time.Minute)
	cfg.Breaker.Timeout = getEnvAsDurationOrDefault("BREAKER_TIMEOUT", 10*time.Minute)
	cfg.Breaker.TripRatio = getEnvAsFloatOrDefault("BREAKER_TRIP_RATIO", 0.6)

	return cfg
}

// Validate checks the values the refresh pipeline depends on.
func (c *Config) Validate() error {
	var errs []error

	if c.Market.PageSize <= 0 {
		errs = append(errs, errors.New("MARKET_PAGE_SIZE must be positive"))
	}
	if c.Market.Timeout <= 0 {
		errs = append(errs, errors.New("MARKET_TIMEOUT must be positive"))
	}
	if c.Scheduler.Interval <= 0 {
		errs = append(errs, errors.New("REFRESH_INTERVAL must be positive"))
	}
	if c.Scheduler.ErrorBackoff <= 0 {
		errs = append(errs, errors.New("REFRESH_ERROR_BACKOFF must be positive"))
	}
	if c.Scheduler.MaxFailures <= 0 {
		errs = append(errs, errors.New("REFRESH_MAX_FAILURES must be positive"))
	}
	switch c.Scheduler.BackoffStrategy {
	case BackoffConstant, BackoffExponential:
	default:
		errs = append(errs, fmt.Errorf("REFRESH_BACKOFF_STRATEGY %q is not one of %s, %s",
			c.Scheduler.BackoffStrategy, BackoffConstant, BackoffExponential))
	}
	if c.Broadcast.QueueSize <= 0 {
		errs = append(errs, errors.New("BROADCAST_QUEUE_SIZE must be positive"))
	}
	if c.Sheets.Enabled {
		if c.Sheets.SpreadsheetID == "" {
			errs = append(errs, errors.New("GOOGLE_SPREADSHEET_ID is required when sheets are enabled"))
		}
		if c.Sheets.MaxRows <= 0 {
			errs = append(errs, errors.New("SHEETS_MAX_ROWS must be positive"))
		} else if c.Market.PageSize > c.Sheets.MaxRows {
			errs = append(errs, fmt.Errorf("MARKET_PAGE_SIZE %d exceeds SHEETS_MAX_ROWS %d",
				c.Market.PageSize, c.Sheets.MaxRows))
		}
	}

	return errors.Join(errs...)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// Durations accept Go syntax ("90s") or a bare number of seconds.
func getEnvAsDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
