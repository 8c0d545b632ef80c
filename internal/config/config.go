package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr      string
	DatabaseURL   string
	RedisURL      string
	SimInterval   time.Duration
	SeedPath      string
	LogLevel      string
	LogFormat     string
	CollectKeyTTL time.Duration
	KafkaBrokers  []string
	KafkaTopic    string

	// Warnings collects settings that were present but unusable; the caller
	// logs them once a logger exists.
	Warnings []string
}

// Load reads .env files (if any) and the process environment.
func Load(envFiles ...string) Config {
	// a missing .env is the normal case outside development
	_ = godotenv.Load(envFiles...)

	cfg := Config{
		HTTPAddr:    envOrDefault("HTTP_ADDR", ":8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    os.Getenv("REDIS_URL"),
		SeedPath:    os.Getenv("BINS_SEED_PATH"),
		LogLevel:    envOrDefault("LOG_LEVEL", "info"),
		LogFormat:   envOrDefault("LOG_FORMAT", "json"),
		KafkaTopic:  envOrDefault("KAFKA_TOPIC", "bin-events"),
	}
	for _, b := range strings.Split(os.Getenv("KAFKA_BROKERS"), ",") {
		if b = strings.TrimSpace(b); b != "" {
			cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
		}
	}
	cfg.SimInterval = cfg.duration("SIM_INTERVAL", 30*time.Second)
	cfg.CollectKeyTTL = cfg.duration("COLLECT_KEY_TTL", 30*time.Minute)
	return cfg
}

func (c *Config) duration(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		c.Warnings = append(c.Warnings, key+"="+raw+" is not a positive duration, using "+fallback.String())
		return fallback
	}
	return d
}

func envOrDefault(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
