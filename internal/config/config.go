package config

import (
	"errors"
	"os"
	"strconv"
	"time"
)

type Config struct {
	ServerPort         string
	DatabaseURL        string
	RedisURL           string
	RedisChannelPrefix string
	JWTSecret          string
	JWTExpiry          time.Duration
	PullBatchSize      int
	StreamHeartbeat    time.Duration
}

func LoadConfig() (*Config, error) {
	expiry, err := time.ParseDuration(getEnv("JWT_EXPIRY", "24h"))
	if err != nil {
		return nil, errors.New("invalid JWT_EXPIRY format")
	}

	heartbeat, err := time.ParseDuration(getEnv("STREAM_HEARTBEAT", "15s"))
	if err != nil || heartbeat <= 0 {
		return nil, errors.New("invalid STREAM_HEARTBEAT format")
	}

	batchSize, err := strconv.Atoi(getEnv("PULL_BATCH_SIZE", "100"))
	if err != nil || batchSize <= 0 {
		return nil, errors.New("PULL_BATCH_SIZE must be a positive integer")
	}

	cfg := &Config{
		ServerPort:         getEnv("SERVER_PORT", "8080"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		RedisURL:           os.Getenv("REDIS_URL"),
		RedisChannelPrefix: getEnv("REDIS_CHANNEL_PREFIX", "cardsync"),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		JWTExpiry:          expiry,
		PullBatchSize:      batchSize,
		StreamHeartbeat:    heartbeat,
	}

	// Validate required fields
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	return cfg, nil
}

// Helper: get env with default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
