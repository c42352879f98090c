package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store driver names accepted by STORE_DRIVER.
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMongo    = "mongo"
	StoreDriverMemory   = "memory"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv        string
	Port          string
	StoreDriver   string
	DatabaseURL   string
	MongoURI      string
	MongoDatabase string
	JWTSecret     string
	GeoIPDBPath   string

	LedgerBaseURL string
	LedgerAPIKey  string
	LedgerTimeout time.Duration

	PayoutMaxRetries        int
	PayoutBaseDelay         time.Duration
	PayoutBackoffMultiplier int

	SweepEnabled   bool
	SweepBatchSize int
	SweepSchedule  string

	HTTPReadTimeout    time.Duration
	HTTPWriteTimeout   time.Duration
	HTTPIdleTimeout    time.Duration
	RateLimitPerMin    int
	CORSAllowedOrigins []string
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:        getEnv("APP_ENV", "development"),
		Port:          getEnv("PORT", "8080"),
		StoreDriver:   getEnv("STORE_DRIVER", StoreDriverPostgres),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		MongoURI:      os.Getenv("MONGO_URI"),
		MongoDatabase: getEnv("MONGO_DATABASE", "grantpay"),
		JWTSecret:     os.Getenv("JWT_SECRET"),
		GeoIPDBPath:   os.Getenv("GEOIP_DB_PATH"),

		LedgerBaseURL: os.Getenv("LEDGER_BASE_URL"),
		LedgerAPIKey:  os.Getenv("LEDGER_API_KEY"),
		LedgerTimeout: time.Second * time.Duration(getEnvInt("LEDGER_TIMEOUT_SECONDS", 30)),

		PayoutMaxRetries:        getEnvInt("PAYOUT_MAX_RETRIES", 3),
		PayoutBaseDelay:         time.Millisecond * time.Duration(getEnvInt("PAYOUT_BASE_DELAY_MS", 5000)),
		PayoutBackoffMultiplier: getEnvInt("PAYOUT_BACKOFF_MULTIPLIER", 2),

		SweepEnabled:   getEnvBool("SWEEP_ENABLED", false),
		SweepBatchSize: getEnvInt("SWEEP_BATCH_SIZE", 10),
		SweepSchedule:  getEnv("SWEEP_SCHEDULE", "@every 30s"),

		HTTPReadTimeout:    time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:   time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:    time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:    getEnvInt("RATE_LIMIT_PER_MINUTE", 60),
		CORSAllowedOrigins: splitCSV(os.Getenv("CORS_ALLOWED_ORIGINS")),
	}

	switch cfg.StoreDriver {
	case StoreDriverPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required when STORE_DRIVER=postgres")
		}
	case StoreDriverMongo:
		if cfg.MongoURI == "" {
			return nil, fmt.Errorf("MONGO_URI is required when STORE_DRIVER=mongo")
		}
	case StoreDriverMemory:
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	if cfg.PayoutMaxRetries < 1 {
		return nil, fmt.Errorf("PAYOUT_MAX_RETRIES must be at least 1")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func splitCSV(v string) []string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
