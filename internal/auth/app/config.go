package app

import (
	"os"
	"strconv"
	"time"

	"github.com/fairmarketlabs/tradejournal/internal/auth/service"
	"github.com/fairmarketlabs/tradejournal/pkg/jwtx"
)

type Config struct {
	Issuer             string // Required: issuer claim for tokens
	AccessTokenSecret  string // Required: HS256 secret for access tokens
	RefreshTokenSecret string // Required: HS256 secret for refresh tokens

	AccessTokenTTL  time.Duration // Optional: access token lifetime (default: 15m)
	RefreshTokenTTL time.Duration // Optional: refresh token lifetime (default: 7 days)
	SessionMaxAge   time.Duration // Optional: absolute session (family) age (default: 30 days)
	MaxRotations    int           // Optional: rotation ceiling per family (default: 96)

	MaxLoginAttempts    int           // Optional: failed logins before lockout (default: 5)
	LockoutBaseDuration time.Duration // Optional: first lockout duration (default: 15m)
	LockoutMultiplier   int           // Optional: escalation factor per lockout (default: 2)
	LockoutMaxDuration  time.Duration // Optional: lockout ceiling (default: 1h)

	DatabaseFile         string        // Optional: path to SQLite database file (default: ./auth.db)
	PepperFile           string        // Optional: path to pepper file for password hashing (default: ./pepper)
	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Housekeeping interval (default: 1h)
	SentryDSN            string        // Optional: error reporting DSN
}

func LoadConfig() Config {
	cfg := Config{
		Issuer:             getEnvOrDefault("AUTH_ISSUER", "tradejournal-auth"),
		AccessTokenSecret:  os.Getenv("AUTH_ACCESS_TOKEN_SECRET"),
		RefreshTokenSecret: os.Getenv("AUTH_REFRESH_TOKEN_SECRET"),

		AccessTokenTTL:  getEnvDurationOrDefault("AUTH_ACCESS_TOKEN_TTL", jwtx.DefaultAccessTokenTTL),
		RefreshTokenTTL: getEnvDurationOrDefault("AUTH_REFRESH_TOKEN_TTL", jwtx.DefaultRefreshTokenTTL),
		SessionMaxAge:   getEnvDurationOrDefault("AUTH_SESSION_MAX_AGE", service.DefaultSessionMaxAge),
		MaxRotations:    getEnvIntOrDefault("AUTH_MAX_ROTATIONS", service.DefaultMaxRotations),

		MaxLoginAttempts:    getEnvIntOrDefault("AUTH_MAX_LOGIN_ATTEMPTS", service.DefaultMaxLoginAttempts),
		LockoutBaseDuration: getEnvDurationOrDefault("AUTH_LOCKOUT_BASE_DURATION", service.DefaultLockoutBaseDuration),
		LockoutMultiplier:   getEnvIntOrDefault("AUTH_LOCKOUT_MULTIPLIER", service.DefaultLockoutMultiplier),
		LockoutMaxDuration:  getEnvDurationOrDefault("AUTH_LOCKOUT_MAX_DURATION", service.DefaultLockoutMaxDuration),

		DatabaseFile:         getEnvOrDefault("AUTH_DATABASE_FILE", "auth.db"),
		PepperFile:           getEnvOrDefault("AUTH_PEPPER_FILE", "pepper"),
		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 1*time.Hour),
		SentryDSN:            os.Getenv("SENTRY_DSN"),
	}

	return cfg
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Try parsing as integer minutes (for backwards compatibility)
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}
