// Package config loads and validates application configuration.
//
// Values are layered, later sources winning:
//  1. built-in defaults
//  2. an optional YAML file named by CONFIG_FILE
//  3. environment variables (a .env file in the working directory is loaded first)
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// ConfigFileEnvVar names the environment variable holding the YAML file path.
const ConfigFileEnvVar = "CONFIG_FILE"

// Config holds all configuration values for the API server and seed tool.
type Config struct {
	// Port is the TCP port the HTTP server listens on. Defaults to "8080".
	Port string `koanf:"port"`

	// DatabaseURL is the Postgres connection string. Required.
	DatabaseURL string `koanf:"database_url"`

	// LogLevel controls the minimum log level. Defaults to "info".
	// Valid values: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// CORSOrigins is the list of allowed cross-origin request origins.
	// Defaults to ["http://localhost:5173"] (Vite dev server).
	// Set CORS_ORIGINS to a comma-separated list to override.
	CORSOrigins []string `koanf:"cors_origins"`

	// MaxBodyBytes caps request bodies. Defaults to 1 MiB.
	MaxBodyBytes int64 `koanf:"max_body_bytes"`

	// RateLimitRequests is the per-IP request budget per RateLimitWindow.
	// Zero disables rate limiting.
	RateLimitRequests int           `koanf:"rate_limit_requests"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
}

func defaults() Config {
	return Config{
		Port:              "8080",
		LogLevel:          "info",
		CORSOrigins:       []string{"http://localhost:5173"},
		MaxBodyBytes:      1 << 20,
		RateLimitRequests: 300,
		RateLimitWindow:   time.Minute,
	}
}

// envKeys maps the recognised environment variables to koanf paths.
var envKeys = map[string]string{
	"PORT":                "port",
	"DATABASE_URL":        "database_url",
	"LOG_LEVEL":           "log_level",
	"CORS_ORIGINS":        "cors_origins",
	"MAX_BODY_BYTES":      "max_body_bytes",
	"RATE_LIMIT_REQUESTS": "rate_limit_requests",
	"RATE_LIMIT_WINDOW":   "rate_limit_window",
}

// Load reads configuration and returns a Config.
// Returns an error listing any required variables that are not set.
func Load() (Config, error) {
	// A missing .env file is the normal case outside local development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("config: load .env: %w", err)
	}

	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaults(), "koanf"), nil); err != nil {
		return Config{}, fmt.Errorf("config: load defaults: %w", err)
	}

	if path := os.Getenv(ConfigFileEnvVar); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("config: load %s: %w", path, err)
		}
	}

	// Empty variables are treated as unset so they never erase a default.
	envProvider := env.ProviderWithValue("", ".", func(key, value string) (string, any) {
		path, ok := envKeys[key]
		if !ok || strings.TrimSpace(value) == "" {
			return "", nil
		}
		if path == "cors_origins" {
			return path, splitCSV(value)
		}
		return path, value
	})
	if err := k.Load(envProvider, nil); err != nil {
		return Config{}, fmt.Errorf("config: load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	var missing []string
	if c.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if len(missing) > 0 {
		return fmt.Errorf("required environment variables not set: %s", strings.Join(missing, ", "))
	}

	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return fmt.Errorf("invalid LOG_LEVEL %q: must be one of debug, info, warn, error", c.LogLevel)
	}
	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("invalid MAX_BODY_BYTES %d: must be positive", c.MaxBodyBytes)
	}
	if c.RateLimitRequests < 0 {
		return fmt.Errorf("invalid RATE_LIMIT_REQUESTS %d: must not be negative", c.RateLimitRequests)
	}
	return nil
}

// SlogLevel returns the configured log level.
func (c Config) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// splitCSV splits a comma-separated string into a trimmed slice, ignoring empty entries.
func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if t := strings.TrimSpace(part); t != "" {
			out = append(out, t)
		}
	}
	return out
}
