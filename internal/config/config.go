package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// DatabaseConfig selects the gorm dialector and its DSN.
type DatabaseConfig struct {
	// Driver is one of "sqlite" (cgo), "sqlite-purego" or "postgres"
	Driver string
	DSN    string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// StatusConfig holds the fallback thresholds used when a cluster does not set its own.
type StatusConfig struct {
	DefaultGrace                time.Duration
	DefaultConfidenceMultiplier float64
}

type IngestConfig struct {
	ServerAddr        string
	Database          DatabaseConfig
	Redis             *RedisConfig
	Status            StatusConfig
	ClockSkew         time.Duration
	KeyGrace          time.Duration
	AdminUsername     string
	AdminPassword     string
	DashboardUsername string
	DashboardPassword string
}

type WorkerConfig struct {
	// ServerAddr serves the worker health endpoint
	ServerAddr    string
	Database      DatabaseConfig
	Redis         *RedisConfig
	Status        StatusConfig
	Concurrency   int
	PollInterval  time.Duration
	LeaseTimeout  time.Duration
	// MaxAttempts is the total number of tries a job gets before it is flagged
	MaxAttempts   int
	SweepInterval time.Duration
	SweepBatch    int
	// JobRetention is how long processed jobs are kept before purging; zero keeps them forever
	JobRetention time.Duration
}

type AgentConfig struct {
	AgentAddr         string
	IngestURL         string
	ServerID          string
	ClusterID         string
	KeyVersion        int
	PrivateKeyPath    string
	StatusFile        string
	HeartbeatInterval time.Duration
	RequestTimeout    time.Duration
	// Retry configuration for a single heartbeat delivery
	SendMaxRetries        int
	SendInitialBackoff    time.Duration
	SendMaxBackoff        time.Duration
	SendBackoffMultiplier float64
}

// LoadIngestConfig reads ingest config from environment (and an optional .env file) or returns defaults
func LoadIngestConfig() (*IngestConfig, error) {
	_ = godotenv.Load()

	return &IngestConfig{
		ServerAddr:        envOrDefault("INGEST_ADDR", ":8080"),
		Database:          loadDatabaseConfig(),
		Redis:             loadRedisConfig(),
		Status:            loadStatusConfig(),
		ClockSkew:         envSeconds("CLOCK_SKEW_SECONDS", 5*time.Minute),
		KeyGrace:          envSeconds("KEY_GRACE_SECONDS", 10*time.Minute),
		AdminUsername:     envOrDefault("ADMIN_USER", "admin"),
		AdminPassword:     envOrDefault("ADMIN_PASSWORD", "password"),
		DashboardUsername: envOrDefault("DASHBOARD_USER", "dashboard"),
		DashboardPassword: envOrDefault("DASHBOARD_PASSWORD", "dashboardpass"),
	}, nil
}

// LoadWorkerConfig reads worker config from environment (and an optional .env file) or returns defaults
func LoadWorkerConfig() (*WorkerConfig, error) {
	_ = godotenv.Load()

	pollInterval := time.Second
	if v := os.Getenv("POLL_INTERVAL_MS"); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i > 0 {
			pollInterval = time.Duration(i) * time.Millisecond
		}
	}

	return &WorkerConfig{
		ServerAddr:    envOrDefault("WORKER_ADDR", ":8082"),
		Database:      loadDatabaseConfig(),
		Redis:         loadRedisConfig(),
		Status:        loadStatusConfig(),
		Concurrency:   envInt("WORKER_CONCURRENCY", 4),
		PollInterval:  pollInterval,
		LeaseTimeout:  envSeconds("LEASE_TIMEOUT_SECONDS", 2*time.Minute),
		MaxAttempts:   envInt("MAX_ATTEMPTS", 5),
		SweepInterval: envSeconds("SWEEP_INTERVAL_SECONDS", 15*time.Second),
		SweepBatch:    envInt("SWEEP_BATCH", 500),
		JobRetention:  time.Duration(envInt("JOB_RETENTION_HOURS", 0)) * time.Hour,
	}, nil
}

// LoadAgentConfig reads agent config from environment (and an optional .env file) or returns defaults
func LoadAgentConfig() (*AgentConfig, error) {
	_ = godotenv.Load()

	multiplier := 2.0
	if v := os.Getenv("SEND_BACKOFF_MULTIPLIER"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			multiplier = f
		}
	}

	return &AgentConfig{
		AgentAddr:             envOrDefault("AGENT_ADDR", ":8081"),
		IngestURL:             envOrDefault("INGEST_URL", "http://localhost:8080"),
		ServerID:              os.Getenv("SERVER_ID"),
		ClusterID:             os.Getenv("CLUSTER_ID"),
		KeyVersion:            envInt("KEY_VERSION", 1),
		PrivateKeyPath:        envOrDefault("PRIVATE_KEY_PATH", "./cluster_key"),
		StatusFile:            os.Getenv("STATUS_FILE"),
		HeartbeatInterval:     envSeconds("HEARTBEAT_INTERVAL", 30*time.Second),
		RequestTimeout:        envSeconds("REQUEST_TIMEOUT", 10*time.Second),
		SendMaxRetries:        envInt("SEND_MAX_RETRIES", 3),
		SendInitialBackoff:    envSeconds("SEND_INITIAL_BACKOFF", time.Second),
		SendMaxBackoff:        envSeconds("SEND_MAX_BACKOFF", 10*time.Second),
		SendBackoffMultiplier: multiplier,
	}, nil
}

func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver: envOrDefault("DATABASE_DRIVER", "sqlite"),
		DSN:    envOrDefault("DATABASE_DSN", "./data/heartbeats.db"),
	}
}

// loadRedisConfig returns nil when REDIS_HOST is unset; services then run poll-only.
func loadRedisConfig() *RedisConfig {
	host := os.Getenv("REDIS_HOST")
	if host == "" {
		return nil
	}
	return &RedisConfig{
		Host:     host,
		Port:     envInt("REDIS_PORT", 6379),
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       envInt("REDIS_DB", 0),
	}
}

func loadStatusConfig() StatusConfig {
	multiplier := 3.0
	if v := os.Getenv("DEFAULT_CONFIDENCE_MULTIPLIER"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 1 {
			multiplier = f
		}
	}
	return StatusConfig{
		DefaultGrace:                envSeconds("DEFAULT_GRACE_SECONDS", 60*time.Second),
		DefaultConfidenceMultiplier: multiplier,
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func envSeconds(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return time.Duration(i) * time.Second
		}
	}
	return def
}
