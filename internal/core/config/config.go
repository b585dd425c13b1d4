package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port          string
	DatabaseURL   string
	Env           string
	WebhookURL    string
	WebhookSecret string
	JWTSecret     string
	TokenTTL      time.Duration
	LockTimeout   time.Duration
	MetricsAddr   string
}

// LoadConfig reads .env if present and returns the merged configuration.
func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil {
		slog.Warn("no .env file found, relying on system env variables")
	}

	return &Config{
		Port:          getEnv("PORT", "3000"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		Env:           getEnv("ENV", "development"),
		WebhookURL:    getEnv("WEBHOOK_URL", ""),
		WebhookSecret: getEnv("WEBHOOK_SECRET", ""),
		JWTSecret:     getEnv("JWT_SECRET", "dev-secret-change-me"),
		TokenTTL:      time.Duration(getEnvInt("TOKEN_TTL_MIN", 60)) * time.Minute,
		LockTimeout:   time.Duration(getEnvInt("LOCK_TIMEOUT_MS", 3000)) * time.Millisecond,
		MetricsAddr:   getEnv("METRICS_ADDR", ":9100"),
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		slog.Warn("ignoring non-numeric env value", "key", key, "value", value)
		return fallback
	}
	return n
}
