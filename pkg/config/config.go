package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	// Load environment variables from .env files when present.
	_ "github.com/joho/godotenv/autoload"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Storage       StorageConfig
	Import        ImportConfig
	Auth          AuthConfig
	Observability ObservabilityConfig
	Notification  NotificationConfig
}

type ServerConfig struct {
	Host               string
	Port               int
	BaseURL            string
	RateLimitPerSecond int
	RateLimitBurst     int
	MaxUploadBytes     int64
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type StorageConfig struct {
	LocalPath string
}

// ImportConfig tunes the sales file pipeline.
type ImportConfig struct {
	AllowedExtensions []string
	Currency          string
	RetryDelay        time.Duration
	MaxAttempts       int
	PollInterval      time.Duration
	StaleAfter        time.Duration
	QueueName         string
}

type AuthConfig struct {
	JWTSecret string
}

type ObservabilityConfig struct {
	MetricsEnabled bool
}

type NotificationConfig struct {
	ResendAPIKey  string
	FromAddress   string
	WebhookURL    string
	WebhookSecret string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:               getEnv("SERVER_HOST", "localhost"),
			Port:               getEnvAsInt("SERVER_PORT", 8080),
			BaseURL:            getEnv("BASE_URL", "http://localhost:8080"),
			RateLimitPerSecond: getEnvAsInt("SERVER_RATE_LIMIT_PER_SECOND", 50),
			RateLimitBurst:     getEnvAsInt("SERVER_RATE_LIMIT_BURST", 100),
			MaxUploadBytes:     int64(getEnvAsInt("SERVER_MAX_UPLOAD_BYTES", 10<<20)),
		},
		Database: DatabaseConfig{
			Host:     getEnv("POSTGRES_HOST", "localhost"),
			Port:     getEnvAsInt("POSTGRES_PORT", 5432),
			User:     getEnv("POSTGRES_USER", "postgres"),
			Password: getEnv("POSTGRES_PASSWORD", "postgres"),
			Database: getEnv("POSTGRES_DB", "sales-dev"),
			SSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Storage: StorageConfig{
			LocalPath: getEnv("STORAGE_LOCAL_PATH", "./uploads"),
		},
		Import: ImportConfig{
			AllowedExtensions: getEnvAsList("IMPORT_ALLOWED_EXTENSIONS", []string{"xlsx"}),
			Currency:          getEnv("IMPORT_CURRENCY", "BRL"),
			RetryDelay:        getEnvAsDuration("IMPORT_RETRY_DELAY", 5*time.Minute),
			MaxAttempts:       getEnvAsInt("IMPORT_MAX_ATTEMPTS", 5),
			PollInterval:      getEnvAsDuration("IMPORT_POLL_INTERVAL", time.Second),
			StaleAfter:        getEnvAsDuration("IMPORT_STALE_AFTER", 30*time.Minute),
			QueueName:         getEnv("IMPORT_QUEUE_NAME", "sales-imports"),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
		},
		Observability: ObservabilityConfig{
			MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
		},
		Notification: NotificationConfig{
			ResendAPIKey:  getEnv("RESEND_API_KEY", ""),
			FromAddress:   getEnv("NOTIFICATION_FROM", "vendas@localhost"),
			WebhookURL:    getEnv("NOTIFICATION_WEBHOOK_URL", ""),
			WebhookSecret: getEnv("NOTIFICATION_WEBHOOK_SECRET", ""),
		},
	}

	if cfg.Auth.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	if len(cfg.Import.AllowedExtensions) == 0 {
		return nil, errors.New("IMPORT_ALLOWED_EXTENSIONS must list at least one extension")
	}

	if cfg.Import.MaxAttempts < 1 {
		return nil, fmt.Errorf("IMPORT_MAX_ATTEMPTS must be positive, got %d", cfg.Import.MaxAttempts)
	}

	return cfg, nil
}

// DSN returns the database connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList reads a comma separated list, lowercasing and trimming leading dots.
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		part = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(part), "."))
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
