package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"HTTP_ADDR", "DATABASE_URL", "REDIS_URL", "SIM_INTERVAL", "BINS_SEED_PATH", "LOG_LEVEL", "LOG_FORMAT", "COLLECT_KEY_TTL", "KAFKA_BROKERS", "KAFKA_TOPIC"} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg := Load(filepath.Join(t.TempDir(), "missing.env"))

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Empty(t, cfg.DatabaseURL)
	assert.Empty(t, cfg.RedisURL)
	assert.Equal(t, 30*time.Second, cfg.SimInterval)
	assert.Equal(t, 30*time.Minute, cfg.CollectKeyTTL)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Equal(t, "bin-events", cfg.KafkaTopic)
	assert.Empty(t, cfg.Warnings)
}

func TestLoadFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("HTTP_ADDR", ":9000")
	t.Setenv("SIM_INTERVAL", "5s")
	t.Setenv("BINS_SEED_PATH", "/data/bins.json")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")

	cfg := Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.Equal(t, ":9000", cfg.HTTPAddr)
	assert.Equal(t, 5*time.Second, cfg.SimInterval)
	assert.Equal(t, "/data/bins.json", cfg.SeedPath)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
}

func TestLoadBadDurationFallsBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("SIM_INTERVAL", "soon")
	t.Setenv("COLLECT_KEY_TTL", "-1m")

	cfg := Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.Equal(t, 30*time.Second, cfg.SimInterval)
	assert.Equal(t, 30*time.Minute, cfg.CollectKeyTTL)
	assert.Len(t, cfg.Warnings, 2)
}

func TestLoadDotEnvDoesNotOverride(t *testing.T) {
	clearEnv(t)
	t.Setenv("HTTP_ADDR", ":7000")
	// dotenv only fills variables that are absent, not empty
	require.NoError(t, os.Unsetenv("LOG_LEVEL"))
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("HTTP_ADDR=:6000\nLOG_LEVEL=debug\n"), 0o644))

	cfg := Load(path)
	assert.Equal(t, ":7000", cfg.HTTPAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
}
