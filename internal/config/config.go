// Package config provides configuration management for the graph scanner.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig
	Cache    CacheConfig
	Engine   EngineConfig
	Worker   WorkerConfig
	Seed     SeedConfig
	Logging  LoggingConfig
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Postgres   PostgresConfig
	ClickHouse ClickHouseConfig
	Redis      RedisConfig
}

// PostgresConfig holds Postgres configuration
type PostgresConfig struct {
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	MaxConnections int
}

// ClickHouseConfig holds ClickHouse configuration
type ClickHouseConfig struct {
	Host     string
	Port     string
	Database string
	User     string
	Password string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
}

// CacheConfig holds snapshot cache configuration
type CacheConfig struct {
	TTL time.Duration
}

// EngineConfig holds analysis engine defaults. Depth ceilings are hard
// invariants of the engine, not configuration; only result-size and
// scan limits are tunable.
type EngineConfig struct {
	DefaultConnectionLimit int // direct-connection result cap (default: 50)
	DefaultExpandLimit     int // multi-hop result cap (default: 100)
	TransferScanLimit      int // transfers fetched per address for pattern analysis (default: 1000)
}

// WorkerConfig holds metrics refresh worker configuration
type WorkerConfig struct {
	Concurrency int // parallel per-address refreshes (default: 4)
	BatchSize   int // addresses fetched per store page (default: 100)
}

// SeedConfig holds synthetic dataset generation configuration
type SeedConfig struct {
	Accounts   int   // number of accounts to generate
	Transfers  int   // number of transfers to generate
	RandSeed   int64 // RNG seed for reproducible datasets
	BatchSize  int   // rows per batch write
	WritesPerS int   // store write pacing
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// .env file is optional - environment variables can be set directly
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "graph_scanner"),
				User:           getEnv("POSTGRES_USER", "scanner"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 100),
			},
			ClickHouse: ClickHouseConfig{
				Host:     getEnv("CLICKHOUSE_HOST", "localhost"),
				Port:     getEnv("CLICKHOUSE_PORT", "9000"),
				Database: getEnv("CLICKHOUSE_DB", "graph_scanner"),
				User:     getEnv("CLICKHOUSE_USER", "default"),
				Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			},
			Redis: RedisConfig{
				Host:           getEnv("REDIS_HOST", "localhost"),
				Port:           getEnv("REDIS_PORT", "6379"),
				Password:       getEnv("REDIS_PASSWORD", ""),
				DB:             getEnvAsInt("REDIS_DB", 0),
				MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 50),
			},
		},
		Cache: CacheConfig{
			TTL: getEnvAsDuration("CACHE_TTL", 15*time.Minute),
		},
		Engine: EngineConfig{
			DefaultConnectionLimit: getEnvAsInt("ENGINE_CONNECTION_LIMIT", 50),
			DefaultExpandLimit:     getEnvAsInt("ENGINE_EXPAND_LIMIT", 100),
			TransferScanLimit:      getEnvAsInt("ENGINE_TRANSFER_SCAN_LIMIT", 1000),
		},
		Worker: WorkerConfig{
			Concurrency: getEnvAsInt("WORKER_CONCURRENCY", 4),
			BatchSize:   getEnvAsInt("WORKER_BATCH_SIZE", 100),
		},
		Seed: SeedConfig{
			Accounts:   getEnvAsInt("SEED_ACCOUNTS", 500),
			Transfers:  getEnvAsInt("SEED_TRANSFERS", 5000),
			RandSeed:   int64(getEnvAsInt("SEED_RAND_SEED", 42)),
			BatchSize:  getEnvAsInt("SEED_BATCH_SIZE", 1000),
			WritesPerS: getEnvAsInt("SEED_WRITES_PER_SECOND", 500),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	return config, nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
