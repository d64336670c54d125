// Package bootstrap builds the dependencies shared by the DayTrip binaries
// from environment configuration.
package bootstrap

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/daytrip/daytrip/internal/auth"
)

// Defaults for the token issuer and audience claims.
const (
	DefaultIssuer   = "https://api.daytrip.tw"
	DefaultAudience = "daytrip-api"
)

// LoadDotEnv loads variables from .env files into the environment. Variables
// already set win. Missing files are ignored.
func LoadDotEnv(log zerolog.Logger, paths ...string) {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			log.Warn().Err(err).Str("path", p).Msg("failed to load env file")
			continue
		}
		log.Debug().Str("path", p).Msg("loaded env file")
	}
}

// NewLogger creates the root logger for a binary. LOG_LEVEL selects the level
// (default: info) and LOG_FORMAT=console switches to human-readable output.
func NewLogger(service, version string) zerolog.Logger {
	level, err := zerolog.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var log zerolog.Logger
	if os.Getenv("LOG_FORMAT") == "console" {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	} else {
		log = zerolog.New(os.Stdout)
	}

	return log.Level(level).
		With().
		Timestamp().
		Str("service", service).
		Str("version", version).
		Logger()
}

// JWTConfigFromEnv reads JWT_SIGNING_KEY, JWT_ISSUER and JWT_AUDIENCE.
func JWTConfigFromEnv() auth.JWTConfig {
	return auth.JWTConfig{
		SigningKey: os.Getenv("JWT_SIGNING_KEY"),
		Issuer:     getEnvOrDefault("JWT_ISSUER", DefaultIssuer),
		Audience:   getEnvOrDefault("JWT_AUDIENCE", DefaultAudience),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil && d > 0 {
		return d
	}
	return defaultValue
}
