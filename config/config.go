// Package config loads runtime configuration from the environment, with
// optional .env file support.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all runtime settings.
type Config struct {
	// Addr is the HTTP listen address.
	Addr string
	// DBPath is the SQLite database path; empty selects the in-memory store.
	DBPath string
	// SeedPath is an optional YAML catalog seed file applied at startup.
	SeedPath string

	// ModelProvider selects the LLM backend, "openai" or "anthropic".
	ModelProvider string
	// ModelName overrides the provider's default model.
	ModelName string

	// HistoryLimit caps how many recalled entries seed a conversation.
	HistoryLimit int

	LogLevel  string
	LogFormat string

	OpenAIAPIKey    string
	AnthropicAPIKey string
	TavilyAPIKey    string
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present; real environment variables win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Addr:            envOr("PARLEY_ADDR", ":8000"),
		DBPath:          os.Getenv("PARLEY_DB"),
		SeedPath:        os.Getenv("PARLEY_SEED"),
		ModelProvider:   envOr("PARLEY_MODEL_PROVIDER", "openai"),
		ModelName:       os.Getenv("PARLEY_MODEL"),
		LogLevel:        envOr("PARLEY_LOG_LEVEL", "info"),
		LogFormat:       envOr("PARLEY_LOG_FORMAT", "text"),
		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		TavilyAPIKey:    os.Getenv("TAVILY_API_KEY"),
	}

	limit, err := envInt("PARLEY_HISTORY_LIMIT", 10)
	if err != nil {
		return nil, err
	}
	cfg.HistoryLimit = limit

	switch cfg.ModelProvider {
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable is not set")
		}
	case "anthropic":
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable is not set")
		}
	default:
		return nil, fmt.Errorf("unsupported model provider: %s", cfg.ModelProvider)
	}

	return cfg, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}
