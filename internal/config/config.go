package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Addr            string
	StoreURL        string
	StoreToken      string
	JWTSecret       string
	AccessTTL       time.Duration
	AutosaveDelay   time.Duration
	DefaultTimezone string
	CORSOrigin      string
	LogLevel        string
	LogPretty       bool
	// Redis Configuration
	RedisURL     string
	WorkqueueTTL time.Duration
}

func Load() Config {
	return Config{
		Addr:            getenv("AUTHORING_ADDR", ":8710"),
		StoreURL:        getenv("ARCHIVE_STORE_URL", "http://localhost:5000/api"),
		StoreToken:      getenv("ARCHIVE_STORE_TOKEN", ""),
		JWTSecret:       getenv("NEWSDESK_JWT_SECRET", "newsdesk-dev-secret"),
		AccessTTL:       time.Duration(getenvInt("NEWSDESK_ACCESS_TTL_SECONDS", 28800)) * time.Second,
		AutosaveDelay:   time.Duration(getenvInt("NEWSDESK_AUTOSAVE_MS", 3000)) * time.Millisecond,
		DefaultTimezone: getenv("NEWSDESK_DEFAULT_TIMEZONE", "UTC"),
		CORSOrigin:      getenv("NEWSDESK_CORS_ORIGIN", "*"),
		LogLevel:        getenv("NEWSDESK_LOG_LEVEL", "info"),
		LogPretty:       getenvBool("NEWSDESK_LOG_PRETTY", false),
		// Redis - optional, work queue recovery disabled if not configured
		RedisURL:     getenv("REDIS_URL", ""),
		WorkqueueTTL: time.Duration(getenvInt("NEWSDESK_WORKQUEUE_TTL_SECONDS", 86400)) * time.Second,
	}
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
