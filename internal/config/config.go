package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Auth        AuthConfig
	RateLimit   RateLimitConfig
	Realtime    RealtimeConfig
	Logging     LoggingConfig
	Environment string
}

type ServerConfig struct {
	Host    string
	Port    int
	BaseURL string
}

type DatabaseConfig struct {
	URL            string
	MaxConnections int
	MaxIdle        int
	MigrationsPath string
}

type AuthConfig struct {
	JWTSecret string
	JWTExpiry time.Duration
	Issuer    string
}

type RateLimitConfig struct {
	PublicPerMinute int
	AuthPerMinute   int
	LoginPerMinute  int
}

// RealtimeConfig governs the live update channel. AllowAnonymousSubscribe
// controls whether a connection without a valid identity may still watch
// event rooms; registration commands always require authentication.
type RealtimeConfig struct {
	AllowAnonymousSubscribe bool
	WriteTimeout            time.Duration
	MaxRoomsPerConnection   int
}

type LoggingConfig struct {
	Level  string
	Format string
}

func Load() (Config, error) {
	cfg := Config{
		Server: ServerConfig{
			Host:    getEnv("SERVER_HOST", "0.0.0.0"),
			Port:    getEnvInt("SERVER_PORT", 8080),
			BaseURL: getEnv("SERVER_BASE_URL", "http://localhost:8080"),
		},
		Database: DatabaseConfig{
			URL:            getEnv("DATABASE_URL", ""),
			MaxConnections: getEnvInt("DATABASE_MAX_CONNECTIONS", 25),
			MaxIdle:        getEnvInt("DATABASE_MAX_IDLE_CONNECTIONS", 5),
			MigrationsPath: getEnv("DATABASE_MIGRATIONS_PATH", "internal/storage/postgres/migrations"),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
			JWTExpiry: time.Duration(getEnvInt("JWT_EXPIRY_HOURS", 168)) * time.Hour,
			Issuer:    getEnv("JWT_ISSUER", "gatherly"),
		},
		RateLimit: RateLimitConfig{
			PublicPerMinute: getEnvInt("RATE_LIMIT_PUBLIC", 120),
			AuthPerMinute:   getEnvInt("RATE_LIMIT_AUTHENTICATED", 300),
			LoginPerMinute:  getEnvInt("RATE_LIMIT_LOGIN", 10),
		},
		Realtime: RealtimeConfig{
			AllowAnonymousSubscribe: getEnvBool("REALTIME_ALLOW_ANONYMOUS_SUBSCRIBE", false),
			WriteTimeout:            time.Duration(getEnvInt("REALTIME_WRITE_TIMEOUT_SECONDS", 5)) * time.Second,
			MaxRoomsPerConnection:   getEnvInt("REALTIME_MAX_ROOMS_PER_CONNECTION", 32),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Environment: getEnv("ENVIRONMENT", "development"),
	}

	if cfg.Database.URL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.Auth.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET is required")
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
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

func getEnvBool(key string, fallback bool) bool {
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
