package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	// Application
	AppEnv    string
	LogLevel  string
	LogFormat string
	UserID    string
	Timezone  string

	// Database
	DatabaseURL    string
	DatabaseDriver string
	SQLitePath     string
	LocalMode      bool

	// Redis
	RedisURL string

	// RabbitMQ
	RabbitMQURL string

	// Outbox
	OutboxPollInterval     time.Duration
	OutboxBatchSize        int
	OutboxMaxRetries       int
	OutboxRetentionDays    int
	OutboxCleanupInterval  time.Duration
	OutboxProcessorEnabled bool

	// Publisher circuit breaker
	PublisherBreakerEnabled   bool
	PublisherBreakerThreshold int
	PublisherBreakerTimeout   time.Duration

	// Sweep
	SweepSchedule  string
	SweepWorkers   int
	SweepBatchSize int

	// HTTP / worker
	HTTPAddr            string
	WorkerHealthAddr    string
	WorkerStatsInterval time.Duration
	AllowedOrigins      []string

	// Websocket transport
	WSSendBuffer   int
	WSWriteTimeout time.Duration
	WSPingInterval time.Duration
	WSConnectRate  float64
	WSConnectBurst int

	// Dispatch
	DispatchSendTimeout time.Duration
	NotifyRelay         string
	NotifyChannel       string
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	// A missing .env file is fine.
	_ = godotenv.Load()

	databaseURL := getEnv("DATABASE_URL", "")

	cfg := &Config{
		AppEnv:    getEnv("APP_ENV", "development"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
		UserID:    getEnv("TRACKLANE_USER_ID", "00000000-0000-0000-0000-000000000001"),
		Timezone:  getEnv("TIMEZONE", "Local"),

		DatabaseURL:    databaseURL,
		DatabaseDriver: getEnv("DATABASE_DRIVER", defaultDriver(databaseURL)),
		SQLitePath:     getEnv("SQLITE_PATH", ""),
		LocalMode:      databaseURL == "" || strings.HasPrefix(databaseURL, "sqlite"),

		RedisURL:    getEnv("REDIS_URL", ""),
		RabbitMQURL: getEnv("RABBITMQ_URL", ""),

		OutboxPollInterval:     getDurationEnv("OUTBOX_POLL_INTERVAL", 100*time.Millisecond),
		OutboxBatchSize:        getIntEnv("OUTBOX_BATCH_SIZE", 100),
		OutboxMaxRetries:       getIntEnv("OUTBOX_MAX_RETRIES", 5),
		OutboxRetentionDays:    getIntEnv("OUTBOX_RETENTION_DAYS", 14),
		OutboxCleanupInterval:  getDurationEnv("OUTBOX_CLEANUP_INTERVAL", 24*time.Hour),
		OutboxProcessorEnabled: getBoolEnv("OUTBOX_PROCESSOR_ENABLED", true),

		PublisherBreakerEnabled:   getBoolEnv("PUBLISHER_BREAKER_ENABLED", true),
		PublisherBreakerThreshold: getIntEnv("PUBLISHER_BREAKER_THRESHOLD", 5),
		PublisherBreakerTimeout:   getDurationEnv("PUBLISHER_BREAKER_TIMEOUT", 30*time.Second),

		SweepSchedule:  getEnv("SWEEP_SCHEDULE", "@every 1m"),
		SweepWorkers:   getIntEnv("SWEEP_WORKERS", 8),
		SweepBatchSize: getIntEnv("SWEEP_BATCH_SIZE", 500),

		HTTPAddr:            getEnv("HTTP_ADDR", "0.0.0.0:8080"),
		WorkerHealthAddr:    getEnv("WORKER_HEALTH_ADDR", "0.0.0.0:8081"),
		WorkerStatsInterval: getDurationEnv("WORKER_STATS_INTERVAL", time.Minute),
		AllowedOrigins:      getListEnv("ALLOWED_ORIGINS", []string{"*"}),

		WSSendBuffer:   getIntEnv("WS_SEND_BUFFER", 32),
		WSWriteTimeout: getDurationEnv("WS_WRITE_TIMEOUT", 10*time.Second),
		WSPingInterval: getDurationEnv("WS_PING_INTERVAL", 30*time.Second),
		WSConnectRate:  getFloatEnv("WS_CONNECT_RATE", 20),
		WSConnectBurst: getIntEnv("WS_CONNECT_BURST", 40),

		DispatchSendTimeout: getDurationEnv("DISPATCH_SEND_TIMEOUT", 5*time.Second),
		NotifyRelay:         getEnv("NOTIFY_RELAY", "local"),
		NotifyChannel:       getEnv("NOTIFY_CHANNEL", "tracklane:notifications"),
	}

	return cfg, nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// Location resolves Timezone. Unknown names fall back to time.Local.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// OutboxRetention converts OutboxRetentionDays to a duration.
func (c *Config) OutboxRetention() time.Duration {
	if c.OutboxRetentionDays <= 0 {
		return 0
	}
	return time.Duration(c.OutboxRetentionDays) * 24 * time.Hour
}

// UsesRedisRelay reports whether notifications fan out across nodes via Redis.
func (c *Config) UsesRedisRelay() bool {
	return c.NotifyRelay == "redis" && c.RedisURL != ""
}

func defaultDriver(databaseURL string) string {
	if strings.HasPrefix(databaseURL, "postgres://") || strings.HasPrefix(databaseURL, "postgresql://") {
		return "postgres"
	}
	return "sqlite"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
