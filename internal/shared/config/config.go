package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all process configuration, loaded once from the environment
// (optionally seeded from a .env file for local development).
type Config struct {
	HTTPAddr string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	RedisURL string

	SweepInterval time.Duration
	BoardPastTTL  time.Duration
}

func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		HTTPAddr:      getEnv("HTTP_ADDR", ":9000"),
		DBHost:        getEnv("DB_HOST", "localhost"),
		DBPort:        getEnv("DB_PORT", "5432"),
		DBUser:        getEnv("DB_USER", "postgres"),
		DBPassword:    getEnv("DB_PASSWORD", "postgres"),
		DBName:        getEnv("DB_NAME", "callbid"),
		DBSSLMode:     getEnv("DB_SSLMODE", "disable"),
		RedisURL:      os.Getenv("REDIS_URL"),
		SweepInterval: getEnvDuration("SWEEP_INTERVAL_SECONDS", 5) * time.Second,
		BoardPastTTL:  getEnvDuration("BOARD_PAST_TTL_SECONDS", 60) * time.Second,
	}
}

// PostgresDSN builds the connection string the same way migrations expect it.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvDuration(key string, fallback int64) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			return time.Duration(n)
		}
	}
	return time.Duration(fallback)
}
