package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// App holds the runtime configuration loaded from environment variables.
type App struct {
	Env      string
	HTTPPort string

	GraphQLEndpoint string
	GraphQLAPIKey   string
	GraphQLSchema   string
	GraphQLTimeout  time.Duration
	GraphQLPageSize int

	DatabaseDriver string
	DatabaseURL    string
	RedisAddr      string

	CacheTTL  time.Duration
	Timezone  string
	ChartDays int

	FaceServiceURL string
	FaceSkip       bool

	QueueBackend    string
	RateLimitPerMin int
	CORSOrigins     []string

	SeedRetries    int
	SeedRetryDelay time.Duration
	SeedPace       time.Duration
	SeedSettle     time.Duration

	LogLevel  string
	LogFormat string
}

// Load returns application config populated from environment variables with sensible defaults.
// A .env file in the working directory is read first when present.
func Load() App {
	_ = godotenv.Load()

	return App{
		Env:      getEnv("APP_ENV", "dev"),
		HTTPPort: getEnv("HTTP_PORT", "8081"),

		GraphQLEndpoint: getEnv("GRAPHQL_ENDPOINT", ""),
		GraphQLAPIKey:   getEnv("GRAPHQL_API_KEY", ""),
		GraphQLSchema:   getEnv("GRAPHQL_SCHEMA", "records"),
		GraphQLTimeout:  durationEnv("GRAPHQL_TIMEOUT", 15*time.Second),
		GraphQLPageSize: intEnv("GRAPHQL_PAGE_SIZE", 100),

		DatabaseDriver: getEnv("DATABASE_DRIVER", "pgx"),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		RedisAddr:      getEnv("REDIS_ADDR", "localhost:6379"),

		CacheTTL:  durationEnv("DASHBOARD_CACHE_TTL", time.Minute),
		Timezone:  getEnv("DASHBOARD_TIMEZONE", "UTC"),
		ChartDays: intEnv("CHART_DAYS", 5),

		FaceServiceURL: getEnv("FACE_SERVICE_URL", "http://localhost:8000"),
		FaceSkip:       boolEnv("FACE_SKIP", true),

		QueueBackend:    getEnv("QUEUE_BACKEND", "redis"),
		RateLimitPerMin: intEnv("RATE_LIMIT_PER_MIN", 120),
		CORSOrigins:     listEnv("CORS_ORIGINS"),

		SeedRetries:    intEnv("SEED_RETRIES", 3),
		SeedRetryDelay: durationEnv("SEED_RETRY_DELAY", 2*time.Second),
		SeedPace:       durationEnv("SEED_PACE", 500*time.Millisecond),
		SeedSettle:     durationEnv("SEED_SETTLE", 5*time.Second),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}
}

// Production reports whether the process runs in a production environment.
func (a App) Production() bool {
	return a.Env == "production" || a.Env == "prod"
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			log.Warn().Str("key", key).Err(err).Dur("fallback", fallback).Msg("invalid duration, using fallback")
			return fallback
		}
		return d
	}
	return fallback
}

func boolEnv(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if val == "1" || val == "true" || val == "TRUE" {
			return true
		}
		if val == "0" || val == "false" || val == "FALSE" {
			return false
		}
		log.Warn().Str("key", key).Bool("fallback", fallback).Msg("invalid bool, using fallback")
	}
	return fallback
}

func intEnv(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		var parsed int
		if _, err := fmt.Sscanf(val, "%d", &parsed); err == nil {
			return parsed
		}
		log.Warn().Str("key", key).Int("fallback", fallback).Msg("invalid int, using fallback")
	}
	return fallback
}

// listEnv splits a comma-separated value; unset yields nil.
func listEnv(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
