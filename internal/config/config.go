package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

const defaultOrigin = "https://mi-tienda-pwa-kned.vercel.app"

type Config struct {
	Host     string
	Port     string
	LogLevel string

	AllowedOrigins []string

	Backend        string
	DatabaseURL    string
	RedisURL       string
	RedisNamespace string

	MetricsEnabled bool
	MetricsToken   string

	AddRateLimitPerMin int
}

func (c Config) Addr() string {
	return c.Host + ":" + c.Port
}

// Load reads an optional .env file and then the process environment. Values
// already present in the environment win over the file.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Host:     getenv("HOST", "0.0.0.0"),
		Port:     getenv("PORT", "3001"),
		LogLevel: strings.ToLower(getenv("LOG_LEVEL", "info")),

		AllowedOrigins: getenvCSV("CORS_ALLOWED_ORIGINS", []string{defaultOrigin}),

		Backend:        strings.ToLower(getenv("STORE_BACKEND", BackendMemory)),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		RedisURL:       os.Getenv("REDIS_URL"),
		RedisNamespace: getenv("REDIS_NAMESPACE", "tienda"),

		MetricsEnabled: getenvBool("METRICS_ENABLED", true),
		MetricsToken:   os.Getenv("METRICS_TOKEN"),

		AddRateLimitPerMin: getenvInt("ADD_RATE_LIMIT_PER_MIN", 0),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("PORT must be numeric: %q", c.Port)
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}

	switch c.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for the postgres backend")
		}
	case BackendRedis:
		if c.RedisURL == "" {
			return errors.New("REDIS_URL is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.Backend)
	}

	if len(c.AllowedOrigins) == 0 {
		return errors.New("at least one CORS origin must be configured")
	}
	if c.AddRateLimitPerMin < 0 {
		return errors.New("ADD_RATE_LIMIT_PER_MIN must not be negative")
	}
	return nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvInt(k string, def int) int {
	v, err := strconv.Atoi(os.Getenv(k))
	if err != nil {
		return def
	}
	return v
}

func getenvBool(k string, def bool) bool {
	v, err := strconv.ParseBool(os.Getenv(k))
	if err != nil {
		return def
	}
	return v
}

func getenvCSV(k string, def []string) []string {
	raw := os.Getenv(k)
	if raw == "" {
		return def
	}
	out := make([]string, 0, 4)
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
