package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Runner    RunnerConfig
	Rail      RailConfig
	Sync      SyncConfig
	Firebase  FirebaseConfig
	Telemetry TelemetryConfig
}

type ServerConfig struct {
	Port string
	Host string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type RunnerConfig struct {
	Enabled        bool
	WorkerCount    int
	QueueSize      int
	MaxAttempts    int
	BackoffBase    time.Duration
	BackoffMax     time.Duration
	ClaimPeriod    time.Duration
	ClaimBatch     int
	TaskTimeout    time.Duration
	FanoutInterval time.Duration
	FanoutOnStart  bool
}

type RailConfig struct {
	BaseURL  string
	Token    string
	Provider string
}

type SyncConfig struct {
	GracePeriod time.Duration
}

type FirebaseConfig struct {
	CredentialsFile string
}

type TelemetryConfig struct {
	Enabled      bool
	ServiceName  string
	OTLPEndpoint string
	MetricsPort  string
}

func Load() (*Config, error) {

	dbPort, err := strconv.Atoi(getEnv("DB_PORT", "5432"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_PORT: %w", err)
	}

	// Parse runner configuration
	runnerWorkers, err := strconv.Atoi(getEnv("RUNNER_WORKERS", "5"))
	if err != nil {
		return nil, fmt.Errorf("invalid RUNNER_WORKERS: %w", err)
	}
	runnerQueueSize, err := strconv.Atoi(getEnv("RUNNER_QUEUE_SIZE", "100"))
	if err != nil {
		return nil, fmt.Errorf("invalid RUNNER_QUEUE_SIZE: %w", err)
	}
	runnerMaxAttempts, err := strconv.Atoi(getEnv("RUNNER_MAX_ATTEMPTS", "8"))
	if err != nil {
		return nil, fmt.Errorf("invalid RUNNER_MAX_ATTEMPTS: %w", err)
	}
	runnerBackoffBase, err := time.ParseDuration(getEnv("RUNNER_BACKOFF_BASE", "30s"))
	if err != nil {
		return nil, fmt.Errorf("invalid RUNNER_BACKOFF_BASE: %w", err)
	}
	runnerBackoffMax, err := time.ParseDuration(getEnv("RUNNER_BACKOFF_MAX", "30m"))
	if err != nil {
		return nil, fmt.Errorf("invalid RUNNER_BACKOFF_MAX: %w", err)
	}
	runnerClaimPeriod, err := time.ParseDuration(getEnv("RUNNER_CLAIM_PERIOD", "15s"))
	if err != nil {
		return nil, fmt.Errorf("invalid RUNNER_CLAIM_PERIOD: %w", err)
	}
	runnerClaimBatch, err := strconv.Atoi(getEnv("RUNNER_CLAIM_BATCH", "20"))
	if err != nil {
		return nil, fmt.Errorf("invalid RUNNER_CLAIM_BATCH: %w", err)
	}
	runnerTaskTimeout, err := time.ParseDuration(getEnv("RUNNER_TASK_TIMEOUT", "2m"))
	if err != nil {
		return nil, fmt.Errorf("invalid RUNNER_TASK_TIMEOUT: %w", err)
	}
	fanoutInterval, err := time.ParseDuration(getEnv("FANOUT_INTERVAL", "6h"))
	if err != nil {
		return nil, fmt.Errorf("invalid FANOUT_INTERVAL: %w", err)
	}

	gracePeriod, err := time.ParseDuration(getEnv("SYNC_GRACE_PERIOD", "1h"))
	if err != nil {
		return nil, fmt.Errorf("invalid SYNC_GRACE_PERIOD: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
			Host: getEnv("HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     dbPort,
			User:     getEnv("DB_USER", "railsync"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "railsync"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Runner: RunnerConfig{
			Enabled:        getBoolEnv("RUNNER_ENABLED", true),
			WorkerCount:    runnerWorkers,
			QueueSize:      runnerQueueSize,
			MaxAttempts:    runnerMaxAttempts,
			BackoffBase:    runnerBackoffBase,
			BackoffMax:     runnerBackoffMax,
			ClaimPeriod:    runnerClaimPeriod,
			ClaimBatch:     runnerClaimBatch,
			TaskTimeout:    runnerTaskTimeout,
			FanoutInterval: fanoutInterval,
			FanoutOnStart:  getBoolEnv("FANOUT_ON_START", false),
		},
		Rail: RailConfig{
			BaseURL:  getEnv("RAIL_BASE_URL", "https://bankaccountdata.gocardless.com"),
			Token:    getEnv("RAIL_TOKEN", ""),
			Provider: getEnv("RAIL_PROVIDER", "gocardless"),
		},
		Sync: SyncConfig{
			GracePeriod: gracePeriod,
		},
		Firebase: FirebaseConfig{
			CredentialsFile: getEnv("FIREBASE_CREDENTIALS_FILE", ""),
		},
		Telemetry: TelemetryConfig{
			Enabled:      getBoolEnv("OTEL_ENABLED", false),
			ServiceName:  getEnv("OTEL_SERVICE_NAME", "railsync-api"),
			OTLPEndpoint: getEnv("OTEL_EXPORTER_ENDPOINT", "localhost:4317"),
			MetricsPort:  getEnv("METRICS_PORT", "9090"),
		},
	}

	// Validate required fields
	if cfg.Rail.Token == "" {
		return nil, fmt.Errorf("RAIL_TOKEN is required")
	}
	if cfg.Runner.MaxAttempts < 1 {
		return nil, fmt.Errorf("RUNNER_MAX_ATTEMPTS must be at least 1")
	}

	return cfg, nil
}

func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	// Accept: true, false, 1, 0, yes, no (case-insensitive)
	switch strings.ToLower(value) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return defaultValue
	}
}
