package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr        string
	DatabaseDSN     string
	JWTSecret       string
	JWTIssuer       string
	TokenTTL        time.Duration
	RedisAddr       string
	RedisPassword   string
	RedisChannel    string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	LogLevel        string
	AllowedOrigins  []string
}

func Load() (Config, error) {
	cfg := Config{
		HTTPAddr:        getenv("HTTP_ADDR", ":8080"),
		DatabaseDSN:     os.Getenv("DB_DSN"),
		JWTSecret:       os.Getenv("JWT_SECRET"),
		JWTIssuer:       getenv("JWT_ISSUER", "campuschat"),
		TokenTTL:        getenvDuration("TOKEN_TTL", 24*time.Hour),
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		RedisPassword:   os.Getenv("REDIS_PASSWORD"),
		RedisChannel:    getenv("REDIS_CHANNEL", "campuschat:events"),
		RequestTimeout:  getenvDuration("REQUEST_TIMEOUT", 15*time.Second),
		ShutdownTimeout: getenvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		LogLevel:        getenv("LOG_LEVEL", "info"),
		AllowedOrigins:  getenvList("ALLOWED_ORIGINS"),
	}

	if cfg.DatabaseDSN == "" {
		return cfg, errors.New("DB_DSN is not set")
	}
	if cfg.JWTSecret == "" {
		return cfg, errors.New("JWT_SECRET is not set")
	}
	return cfg, nil
}

func getenv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	if val := os.Getenv(key + "_SECONDS"); val != "" {
		if seconds, err := strconv.Atoi(val); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return fallback
}

func getenvList(key string) []string {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
