package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server ServerConfig `json:"server"`

	// Database Configuration (MySQL message store)
	Database DatabaseConfig `json:"database"`

	// MongoDB Configuration (GridFS media store)
	MongoDB MongoConfig `json:"mongodb"`

	// Redis Configuration (presence)
	Redis RedisConfig `json:"redis"`

	// Client-side outbox configuration
	Outbox OutboxConfig `json:"outbox"`

	// Client-side live socket configuration
	Socket SocketConfig `json:"socket"`

	// Logging Configuration
	Logging LoggingConfig `json:"logging"`
}

// ServerConfig contains server-related configuration
type ServerConfig struct {
	Port         string `json:"port"`
	Host         string `json:"host"`
	ReadTimeout  int    `json:"read_timeout"`
	WriteTimeout int    `json:"write_timeout"`
	Environment  string `json:"environment"` // development, staging, production
}

// DatabaseConfig contains MySQL connection configuration
type DatabaseConfig struct {
	Host         string `json:"host"`
	Port         string `json:"port"`
	Username     string `json:"username"`
	Password     string `json:"password"`
	DatabaseName string `json:"database_name"`
	MaxOpenConns int    `json:"max_open_conns"`
	MaxIdleConns int    `json:"max_idle_conns"`
}

// MongoConfig contains the GridFS media store configuration
type MongoConfig struct {
	Host     string `json:"host"`
	Port     string `json:"port"`
	Database string `json:"database"`
	Enabled  bool   `json:"enabled"`
}

// RedisConfig contains the presence store configuration
type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	Enabled  bool   `json:"enabled"`
}

// OutboxConfig tunes the client outbox processor. Durations are seconds.
type OutboxConfig struct {
	Path           string `json:"path"`            // sqlite file path
	Interval       int    `json:"interval"`        // pass interval
	BaseDelay      int    `json:"base_delay"`      // first retry delay
	MaxDelay       int    `json:"max_delay"`       // backoff cap
	MaxRetries     int    `json:"max_retries"`     // attempts before abandon
	AttemptTimeout int    `json:"attempt_timeout"` // per-send timeout
}

// SocketConfig tunes the client reconnection manager. Durations are seconds.
type SocketConfig struct {
	URL              string `json:"url"`
	HandshakeTimeout int    `json:"handshake_timeout"`
	MaxAttempts      int    `json:"max_attempts"`
	BaseDelay        int    `json:"base_delay"`
	MaxDelay         int    `json:"max_delay"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level      string `json:"level"`       // debug, info, warn, error
	Format     string `json:"format"`      // json, text
	OutputPath string `json:"output_path"` // stdout, stderr, or file path
}

// LoadConfig reads .env (when present) and builds the full config from
// environment variables with development defaults.
func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println(".env file not found, using system env variables")
	}

	return &Config{
		Server: ServerConfig{
			Port:         getEnvOrDefault("SERVER_PORT", "8080"),
			Host:         getEnvOrDefault("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:  getEnvIntOrDefault("SERVER_READ_TIMEOUT", 15),
			WriteTimeout: getEnvIntOrDefault("SERVER_WRITE_TIMEOUT", 15),
			Environment:  getEnvOrDefault("ENVIRONMENT", "development"),
		},
		Database: DatabaseConfig{
			Host:         getEnvOrDefault("DB_HOST", "localhost"),
			Port:         getEnvOrDefault("DB_PORT", "3306"),
			Username:     getEnvOrDefault("DB_USER", "gorelay"),
			Password:     getEnvOrDefault("DB_PASSWORD", "gorelay123"),
			DatabaseName: getEnvOrDefault("DB_NAME", "gorelay"),
			MaxOpenConns: getEnvIntOrDefault("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvIntOrDefault("DB_MAX_IDLE_CONNS", 5),
		},
		MongoDB: MongoConfig{
			Host:     getEnvOrDefault("MONGO_HOST", "localhost"),
			Port:     getEnvOrDefault("MONGO_PORT", "27017"),
			Database: getEnvOrDefault("MONGO_DB", "gorelay_media"),
			Enabled:  getEnvOrDefault("MONGO_ENABLED", "true") == "true",
		},
		Redis: RedisConfig{
			Addr:     getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
			Password: getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:       getEnvIntOrDefault("REDIS_DB", 0),
			Enabled:  getEnvOrDefault("REDIS_ENABLED", "true") == "true",
		},
		Outbox: OutboxConfig{
			Path:           getEnvOrDefault("OUTBOX_PATH", "outbox.db"),
			Interval:       getEnvIntOrDefault("OUTBOX_INTERVAL", 5),
			BaseDelay:      getEnvIntOrDefault("OUTBOX_BASE_DELAY", 1),
			MaxDelay:       getEnvIntOrDefault("OUTBOX_MAX_DELAY", 32),
			MaxRetries:     getEnvIntOrDefault("OUTBOX_MAX_RETRIES", 5),
			AttemptTimeout: getEnvIntOrDefault("OUTBOX_ATTEMPT_TIMEOUT", 10),
		},
		Socket: SocketConfig{
			URL:              getEnvOrDefault("SOCKET_URL", "ws://localhost:8080/ws"),
			HandshakeTimeout: getEnvIntOrDefault("SOCKET_HANDSHAKE_TIMEOUT", 10),
			MaxAttempts:      getEnvIntOrDefault("SOCKET_MAX_ATTEMPTS", 10),
			BaseDelay:        getEnvIntOrDefault("SOCKET_BASE_DELAY", 1),
			MaxDelay:         getEnvIntOrDefault("SOCKET_MAX_DELAY", 32),
		},
		Logging: LoggingConfig{
			Level:      getEnvOrDefault("LOG_LEVEL", "info"),
			Format:     getEnvOrDefault("LOG_FORMAT", "text"),
			OutputPath: getEnvOrDefault("LOG_OUTPUT", "stdout"),
		},
	}
}

// DSN builds the MySQL connection string from the database section.
func (cfg *Config) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.Database.Username,
		cfg.Database.Password,
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.DatabaseName,
	)
}

// GetMongoURI builds the MongoDB connection URI.
func (cfg *Config) GetMongoURI() string {
	return fmt.Sprintf("mongodb://%s:%s", cfg.MongoDB.Host, cfg.MongoDB.Port)
}

// OutboxPassInterval returns the processor pass interval as a duration.
func (cfg *Config) OutboxPassInterval() time.Duration {
	return time.Duration(cfg.Outbox.Interval) * time.Second
}

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvIntOrDefault(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("invalid int for %s=%q, using default %d", key, v, fallback)
		return fallback
	}
	return n
}
