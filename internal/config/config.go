package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"pharmacy/backend/internal/alerts"
)

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	Port                  string
	AllowedOrigins        []string
	Environment           string
	LogLevel              string
	StoreDriver           string
	DatabaseURL           string
	SQLitePath            string
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	ReportCacheTTLSeconds int
	KafkaBrokers          []string
	KafkaTopic            string
	AuthSecret            string
	AccessTokenTTLMinutes int
	AlertThresholds       alerts.Thresholds
	AlertScanIntervalSecs int
}

// Load reads the environment, after an optional .env file in the working
// directory. Variables already set in the environment win over .env.
func Load() Config {
	_ = godotenv.Load()

	defaults := alerts.DefaultThresholds()
	cfg := Config{
		Port:                  getEnv("PORT", "8080"),
		AllowedOrigins:        splitList(getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000")),
		Environment:           strings.ToLower(getEnv("ENVIRONMENT", "development")),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		StoreDriver:           strings.ToLower(getEnv("STORE_DRIVER", "")),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		SQLitePath:            getEnv("SQLITE_PATH", "pharmacy.db"),
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		RedisDB:               getInt("REDIS_DB", 0, 0),
		ReportCacheTTLSeconds: getInt("REPORT_CACHE_TTL_SECONDS", 30, 1),
		KafkaBrokers:          splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:            getEnv("KAFKA_TOPIC", "pharmacy.inventory"),
		AuthSecret:            strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes: getInt("ACCESS_TOKEN_TTL_MINUTES", 480, 1),
		AlertThresholds: alerts.Thresholds{
			LowStock:          getInt("LOW_STOCK_THRESHOLD", defaults.LowStock, 0),
			CriticalStock:     getInt("CRITICAL_STOCK_THRESHOLD", defaults.CriticalStock, 0),
			ExpiryWarningDays: getInt("EXPIRY_WARNING_DAYS", defaults.ExpiryWarningDays, 0),
		},
		AlertScanIntervalSecs: getInt("ALERT_SCAN_INTERVAL_SECONDS", 0, 0),
	}

	// Without an explicit driver a DATABASE_URL implies postgres.
	if cfg.StoreDriver == "" {
		cfg.StoreDriver = DriverMemory
		if cfg.DatabaseURL != "" {
			cfg.StoreDriver = DriverPostgres
		}
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

func (c Config) ReportCacheTTL() time.Duration {
	return time.Duration(c.ReportCacheTTLSeconds) * time.Second
}

func (c Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenTTLMinutes) * time.Minute
}

// AlertScanInterval is zero when periodic scanning is off.
func (c Config) AlertScanInterval() time.Duration {
	return time.Duration(c.AlertScanIntervalSecs) * time.Second
}

// Validate rejects settings the server cannot start with.
func (c Config) Validate() error {
	switch c.StoreDriver {
	case DriverMemory, DriverSQLite:
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("STORE_DRIVER=postgres requires DATABASE_URL")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if !c.IsDevelopment() && len(c.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be at least 32 characters outside development")
	}
	if c.AlertThresholds.CriticalStock > c.AlertThresholds.LowStock {
		return fmt.Errorf("CRITICAL_STOCK_THRESHOLD must not exceed LOW_STOCK_THRESHOLD")
	}
	return nil
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func getInt(key string, fallback int, min int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	val, err := strconv.Atoi(raw)
	if err != nil || val < min {
		return fallback
	}
	return val
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
