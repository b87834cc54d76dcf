// Package config gathers application settings from the environment,
// optionally seeded from a .env file.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds every runtime setting of the server.
type Config struct {
	// Host is the interface to listen on. The default only accepts local
	// connections; use "0.0.0.0" to serve the outside world.
	Host string
	// Port to listen on; 0 picks a random free port.
	Port int

	// DBPath is the SQLite database file.
	DBPath string

	// AuthSecret signs and verifies bearer tokens. Empty disables the
	// auth middleware entirely.
	AuthSecret string

	// Syntaxes is the allow-list for the snippet syntax field. Empty
	// accepts any value.
	Syntaxes []string

	// WritesEnabled gates PUT/PATCH/DELETE. The static stand-in for a
	// real ownership policy.
	WritesEnabled bool

	// LogLevel is one of debug, info, warn, error.
	LogLevel slog.Level
}

// Load reads settings from the environment with sensible defaults. A .env
// file in the working directory is honoured when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Host:          getEnv("SNIPPETD_HOST", "127.0.0.1"),
		DBPath:        getEnv("SNIPPETD_DB_PATH", "data/snippetd.db"),
		AuthSecret:    getEnv("SNIPPETD_AUTH_SECRET", ""),
		WritesEnabled: true,
		LogLevel:      slog.LevelInfo,
	}

	port, err := getEnvInt("SNIPPETD_PORT", 8000)
	if err != nil {
		return nil, err
	}
	cfg.Port = port

	if raw := getEnv("SNIPPETD_SYNTAXES", ""); raw != "" {
		for _, syntax := range strings.Split(raw, ",") {
			if syntax = strings.TrimSpace(syntax); syntax != "" {
				cfg.Syntaxes = append(cfg.Syntaxes, syntax)
			}
		}
	}

	if raw := getEnv("SNIPPETD_WRITES_ENABLED", ""); raw != "" {
		enabled, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("config: SNIPPETD_WRITES_ENABLED: %w", err)
		}
		cfg.WritesEnabled = enabled
	}

	if raw := getEnv("SNIPPETD_LOG_LEVEL", ""); raw != "" {
		var level slog.Level
		if err := level.UnmarshalText([]byte(raw)); err != nil {
			return nil, fmt.Errorf("config: SNIPPETD_LOG_LEVEL: %w", err)
		}
		cfg.LogLevel = level
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return value, nil
}
