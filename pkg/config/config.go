// Package config loads application configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Environment names accepted by ENVIRONMENT.
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

// Config holds all application configuration.
type Config struct {
	Environment   string
	Timezone      string
	Location      *time.Location
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Queue         QueueConfig
	Upload        UploadConfig
	Crypto        CryptoConfig
	Log           LogConfig
	Observability ObservabilityConfig
	Profiling     ProfilingConfig
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host               string
	Port               int
	RateLimitPerSecond int
	RateLimitBurst     int
}

// DatabaseConfig configures the Postgres connection.
type DatabaseConfig struct {
	Type     string
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string
}

// DSN renders the pgx connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}

// RedisConfig holds the Redis endpoint. Recognized for deployment parity;
// the task queue runs in-process (see pkg/queue).
type RedisConfig struct {
	URL string
}

// QueueConfig configures the background task queue.
type QueueConfig struct {
	BrokerURL   string
	Workers     int
	MaxRetries  int
	TaskTimeout time.Duration
}

// UploadConfig configures statement upload staging.
type UploadConfig struct {
	Dir string
}

// CryptoConfig holds the key used to encrypt statement passwords at rest.
type CryptoConfig struct {
	FernetKey string
}

// LogConfig configures logging.
type LogConfig struct {
	Level string
}

// ObservabilityConfig toggles the metrics endpoint.
type ObservabilityConfig struct {
	MetricsEnabled bool
}

// ProfilingConfig toggles the pprof server.
type ProfilingConfig struct {
	Enabled bool
	Port    int
}

// Load reads configuration from the environment and validates it.
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", EnvDevelopment),
		Timezone:    getEnv("TIMEZONE", "Asia/Kolkata"),
		Server: ServerConfig{
			Host:               getEnv("HOST", "0.0.0.0"),
			Port:               getEnvInt("PORT", 8000),
			RateLimitPerSecond: getEnvInt("RATE_LIMIT_PER_SECOND", 0),
			RateLimitBurst:     getEnvInt("RATE_LIMIT_BURST", 0),
		},
		Database: DatabaseConfig{
			Type:     getEnv("DATABASE_TYPE", "postgresql"),
			Host:     getEnv("DATABASE_HOST", "localhost"),
			Port:     getEnvInt("DATABASE_PORT", 5432),
			Name:     getEnv("DATABASE_NAME", "statements"),
			User:     getEnv("DATABASE_USER", "postgres"),
			Password: getEnv("DATABASE_PASSWORD", ""),
			SSLMode:  getEnv("DATABASE_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", "redis://localhost:6379/0"),
		},
		Upload: UploadConfig{
			Dir: getEnv("UPLOAD_DIR", os.TempDir()),
		},
		Crypto: CryptoConfig{
			FernetKey: getEnv("FERNET_KEY", ""),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Observability: ObservabilityConfig{
			MetricsEnabled: getEnvBool("METRICS_ENABLED", true),
		},
		Profiling: ProfilingConfig{
			Enabled: getEnvBool("PPROF_ENABLED", false),
			Port:    getEnvInt("PPROF_PORT", 6060),
		},
	}

	cfg.Queue = QueueConfig{
		BrokerURL:   getEnv("QUEUE_BROKER_URL", cfg.Redis.URL),
		Workers:     getEnvInt("QUEUE_WORKERS", 4),
		MaxRetries:  getEnvInt("QUEUE_MAX_RETRIES", 3),
		TaskTimeout: time.Duration(getEnvInt("QUEUE_TASK_TIMEOUT_SECONDS", 300)) * time.Second,
	}

	switch cfg.Environment {
	case EnvDevelopment, EnvStaging, EnvProduction:
	default:
		return nil, fmt.Errorf("invalid ENVIRONMENT %q", cfg.Environment)
	}

	switch cfg.Database.Type {
	case "postgresql", "postgres":
	default:
		return nil, fmt.Errorf("unsupported DATABASE_TYPE %q", cfg.Database.Type)
	}

	if cfg.Crypto.FernetKey == "" {
		return nil, fmt.Errorf("FERNET_KEY is required")
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", cfg.Timezone, err)
	}
	cfg.Location = loc

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
