package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"
)

// Store backends.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Notification backends.
const (
	NotifyLog   = "log"
	NotifyRedis = "redis"
	NotifyKafka = "kafka"
	NotifyNone  = "none"
)

// Config holds all configuration for the application
type Config struct {
	TelegramToken  string
	WebhookURL     string
	DatabaseURL    string
	MigrationsPath string
	StoreBackend   string
	LogLevel       string
	PrometheusPort string
	Port           string

	NotifyBackend      string
	NotifyBuffer       int
	RedisAddr          string
	RedisChannelPrefix string
	KafkaBrokers       []string
	KafkaTopic         string
}

// Load reads an optional .env file and then the environment. The returned
// config has been validated.
func Load() (*Config, error) {
	// A missing .env file is fine; real deployments use the environment.
	_ = godotenv.Load()

	cfg := &Config{
		TelegramToken:      os.Getenv("TELEGRAM_TOKEN"),
		WebhookURL:         os.Getenv("WEBHOOK_URL"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		MigrationsPath:     getEnvOrDefault("MIGRATIONS_PATH", "migrations"),
		StoreBackend:       strings.ToLower(getEnvOrDefault("STORE_BACKEND", StorePostgres)),
		LogLevel:           getEnvOrDefault("LOG_LEVEL", "info"),
		PrometheusPort:     getEnvOrDefault("PROMETHEUS_PORT", "9090"),
		Port:               getEnvOrDefault("PORT", "8080"),
		NotifyBackend:      strings.ToLower(getEnvOrDefault("NOTIFY_BACKEND", NotifyLog)),
		RedisAddr:          os.Getenv("REDIS_ADDR"),
		RedisChannelPrefix: getEnvOrDefault("REDIS_CHANNEL_PREFIX", "giftpool"),
		KafkaBrokers:       splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:         getEnvOrDefault("KAFKA_TOPIC", "giftpool.events"),
	}

	var result *multierror.Error
	buffer, err := strconv.Atoi(getEnvOrDefault("NOTIFY_BUFFER", "256"))
	if err != nil {
		result = multierror.Append(result, fmt.Errorf("NOTIFY_BUFFER must be an integer: %w", err))
	}
	cfg.NotifyBuffer = buffer

	if err := cfg.Validate(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var result *multierror.Error

	switch c.StoreBackend {
	case StorePostgres:
		if c.DatabaseURL == "" {
			result = multierror.Append(result, fmt.Errorf("DATABASE_URL environment variable is required for the postgres store"))
		}
	case StoreMemory:
	default:
		result = multierror.Append(result, fmt.Errorf("STORE_BACKEND must be %q or %q, got %q", StorePostgres, StoreMemory, c.StoreBackend))
	}

	switch c.NotifyBackend {
	case NotifyLog, NotifyNone:
	case NotifyRedis:
		if c.RedisAddr == "" {
			result = multierror.Append(result, fmt.Errorf("REDIS_ADDR environment variable is required for redis notifications"))
		}
	case NotifyKafka:
		if len(c.KafkaBrokers) == 0 {
			result = multierror.Append(result, fmt.Errorf("KAFKA_BROKERS environment variable is required for kafka notifications"))
		}
		if c.KafkaTopic == "" {
			result = multierror.Append(result, fmt.Errorf("KAFKA_TOPIC must not be empty"))
		}
	default:
		result = multierror.Append(result, fmt.Errorf("NOTIFY_BACKEND must be one of log, redis, kafka, none, got %q", c.NotifyBackend))
	}

	if c.NotifyBuffer < 1 {
		result = multierror.Append(result, fmt.Errorf("NOTIFY_BUFFER must be positive"))
	}
	if c.WebhookURL != "" && c.TelegramToken == "" {
		result = multierror.Append(result, fmt.Errorf("WEBHOOK_URL requires TELEGRAM_TOKEN"))
	}
	for name, port := range map[string]string{"PORT": c.Port, "PROMETHEUS_PORT": c.PrometheusPort} {
		if n, err := strconv.Atoi(port); err != nil || n < 1 || n > 65535 {
			result = multierror.Append(result, fmt.Errorf("%s must be a valid port, got %q", name, port))
		}
	}

	return result.ErrorOrNil()
}

// getEnvOrDefault returns environment variable value or default if not set
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
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
