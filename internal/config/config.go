package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// supported session store backends
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

type Config struct {
	Environment    string
	Port           string
	StoreBackend   string
	DatabaseURL    string
	RedisURL       string
	AllowedOrigins []string
}

// loads configuration from environment variables
func LoadEnvironmentVariables() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		_ = err // not an error - production environments may not have .env file
	}

	environment := os.Getenv("ENVIRONMENT")
	if environment == "" {
		environment = "development"
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	backend := os.Getenv("STORE_BACKEND")
	if backend == "" {
		backend = BackendMemory
	}

	databaseURL := os.Getenv("DATABASE_URL")
	redisURL := os.Getenv("REDIS_URL")

	switch backend {
	case BackendMemory:
	case BackendPostgres:
		if databaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL environment variable is required for the postgres store backend")
		}
	case BackendRedis:
		if redisURL == "" {
			return nil, fmt.Errorf("REDIS_URL environment variable is required for the redis store backend")
		}
	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q (expected memory, postgres, or redis)", backend)
	}

	return &Config{
		Environment:    environment,
		Port:           port,
		StoreBackend:   backend,
		DatabaseURL:    databaseURL,
		RedisURL:       redisURL,
		AllowedOrigins: parseAllowedOrigins(os.Getenv("ALLOWED_ORIGINS")),
	}, nil
}

func parseAllowedOrigins(raw string) []string {
	if raw == "" {
		return []string{}
	}

	origins := strings.Split(raw, ",")

	for i := range origins {
		origins[i] = strings.TrimSpace(origins[i])
	}

	return origins
}
