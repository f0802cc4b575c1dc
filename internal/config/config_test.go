package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_DefaultBehavior(t *testing.T) {
	// Clean environment for testing defaults
	clearTestEnvVars()
	defer clearTestEnvVars()

	config := LoadConfig()

	require.NotNil(t, config)

	// Database defaults
	assert.Equal(t, "localhost", config.Database.Host)
	assert.Equal(t, "3306", config.Database.Port)
	assert.Equal(t, "gorelay", config.Database.Username)
	assert.Equal(t, "gorelay", config.Database.DatabaseName)
	assert.Equal(t, 25, config.Database.MaxOpenConns)
	assert.Equal(t, 5, config.Database.MaxIdleConns)

	// Outbox defaults match the retry policy defaults
	assert.Equal(t, 5, config.Outbox.Interval)
	assert.Equal(t, 1, config.Outbox.BaseDelay)
	assert.Equal(t, 32, config.Outbox.MaxDelay)
	assert.Equal(t, 5, config.Outbox.MaxRetries)

	// Socket defaults match the reconnect policy defaults
	assert.Equal(t, 10, config.Socket.HandshakeTimeout)
	assert.Equal(t, 10, config.Socket.MaxAttempts)
	assert.Equal(t, 1, config.Socket.BaseDelay)
	assert.Equal(t, 32, config.Socket.MaxDelay)
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	clearTestEnvVars()
	defer clearTestEnvVars()

	os.Setenv("DB_HOST", "db.internal")
	os.Setenv("DB_PORT", "3307")
	os.Setenv("OUTBOX_MAX_RETRIES", "8")
	os.Setenv("SOCKET_URL", "ws://relay.internal/ws")
	os.Setenv("REDIS_ENABLED", "false")

	config := LoadConfig()

	assert.Equal(t, "db.internal", config.Database.Host)
	assert.Equal(t, "3307", config.Database.Port)
	assert.Equal(t, 8, config.Outbox.MaxRetries)
	assert.Equal(t, "ws://relay.internal/ws", config.Socket.URL)
	assert.False(t, config.Redis.Enabled)
}

func TestLoadConfig_InvalidIntFallsBack(t *testing.T) {
	clearTestEnvVars()
	defer clearTestEnvVars()

	os.Setenv("OUTBOX_MAX_RETRIES", "not-a-number")

	config := LoadConfig()
	assert.Equal(t, 5, config.Outbox.MaxRetries)
}

func TestConfig_DSN(t *testing.T) {
	cfg := &Config{
		Database: DatabaseConfig{
			Host:         "localhost",
			Port:         "3306",
			Username:     "gorelay",
			Password:     "secret",
			DatabaseName: "gorelay",
		},
	}

	dsn := cfg.DSN()
	assert.Equal(t, "gorelay:secret@tcp(localhost:3306)/gorelay?charset=utf8mb4&parseTime=True&loc=Local", dsn)
}

func TestConfig_GetMongoURI(t *testing.T) {
	cfg := &Config{MongoDB: MongoConfig{Host: "mongo", Port: "27017"}}
	assert.Equal(t, "mongodb://mongo:27017", cfg.GetMongoURI())
}

func clearTestEnvVars() {
	vars := []string{
		"SERVER_PORT", "SERVER_HOST", "ENVIRONMENT",
		"DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME",
		"MONGO_HOST", "MONGO_PORT", "MONGO_DB", "MONGO_ENABLED",
		"REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB", "REDIS_ENABLED",
		"OUTBOX_PATH", "OUTBOX_INTERVAL", "OUTBOX_BASE_DELAY",
		"OUTBOX_MAX_DELAY", "OUTBOX_MAX_RETRIES", "OUTBOX_ATTEMPT_TIMEOUT",
		"SOCKET_URL", "SOCKET_HANDSHAKE_TIMEOUT", "SOCKET_MAX_ATTEMPTS",
		"SOCKET_BASE_DELAY", "SOCKET_MAX_DELAY",
		"LOG_LEVEL", "LOG_FORMAT", "LOG_OUTPUT",
	}
	for _, v := range vars {
		os.Unsetenv(v)
	}
}
