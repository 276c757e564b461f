package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Config is the process configuration, parsed from the environment.
type Config struct {
	Port        string `env:"PORT" envDefault:"8080"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// Storage backend: redis, sqlite, or postgres.
	StorageBackend string `env:"STORAGE_BACKEND" envDefault:"sqlite"`
	RedisURL       string `env:"REDIS_URL" envDefault:"localhost:6379"`
	SQLitePath     string `env:"SQLITE_PATH" envDefault:"data/sheetengine.db"`
	PostgresURL    string `env:"POSTGRES_URL"`

	// LLM provider for ruleset design and character population:
	// anthropic, ollama, or mock.
	LLMProvider     string `env:"LLM_PROVIDER" envDefault:"anthropic"`
	AnthropicAPIKey string `env:"ANTHROPIC_API_KEY"`
	ModelName       string `env:"MODEL_NAME" envDefault:"claude-sonnet-4-20250514"`
	// BackendModelName, when set, handles setup-time structured generation
	// so the primary model is reserved for interactive traffic.
	BackendModelName string `env:"BACKEND_MODEL_NAME"`
	OllamaURL        string `env:"OLLAMA_URL" envDefault:"http://localhost:11434"`

	// DataDir holds ruleset vocabulary files shipped with the binary.
	DataDir string `env:"DATA_DIR" envDefault:"data"`
}

// Load parses configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// SlogLevel maps LOG_LEVEL onto a slog level. Unknown values fall back
// to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
