// Package config provides configuration management for the bot.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	TelegramToken string
	OllamaURL     string
	OllamaModel   string
	ModelTimeout  time.Duration

	RetrievalURL  string
	RetrievalTopK int

	MaxToolRounds int
	LogLevel      string

	GoogleClientID    string
	GoogleSecret      string
	GoogleRedirectURL string
	GoogleTokenFile   string
}

// envBindings maps config keys to the environment variables that set them.
var envBindings = map[string]string{
	"telegram_token":      "TELEGRAM_BOT_TOKEN",
	"ollama_url":          "OLLAMA_URL",
	"ollama_model":        "OLLAMA_MODEL",
	"model_timeout":       "MODEL_TIMEOUT",
	"retrieval_url":       "RETRIEVAL_URL",
	"retrieval_top_k":     "RETRIEVAL_TOP_K",
	"max_tool_rounds":     "MAX_TOOL_ROUNDS",
	"log_level":           "LOG_LEVEL",
	"google_client_id":    "GOOGLE_CLIENT_ID",
	"google_secret":       "GOOGLE_CLIENT_SECRET",
	"google_redirect_url": "GOOGLE_REDIRECT_URL",
	"google_token_file":   "GOOGLE_TOKEN_FILE",
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("ollama_url", "http://localhost:11434/api/chat")
	v.SetDefault("ollama_model", "qwen3:8b")
	v.SetDefault("model_timeout", "120s")
	v.SetDefault("retrieval_top_k", 3)
	v.SetDefault("max_tool_rounds", 10)
	v.SetDefault("log_level", "info")
	v.SetDefault("google_redirect_url", "urn:ietf:wg:oauth:2.0:oob")
	v.SetDefault("google_token_file", "google_token.json")

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("binding %s: %w", env, err)
		}
	}

	cfg := &Config{
		TelegramToken:     v.GetString("telegram_token"),
		OllamaURL:         v.GetString("ollama_url"),
		OllamaModel:       v.GetString("ollama_model"),
		ModelTimeout:      v.GetDuration("model_timeout"),
		RetrievalURL:      v.GetString("retrieval_url"),
		RetrievalTopK:     v.GetInt("retrieval_top_k"),
		MaxToolRounds:     v.GetInt("max_tool_rounds"),
		LogLevel:          v.GetString("log_level"),
		GoogleClientID:    v.GetString("google_client_id"),
		GoogleSecret:      v.GetString("google_secret"),
		GoogleRedirectURL: v.GetString("google_redirect_url"),
		GoogleTokenFile:   v.GetString("google_token_file"),
	}

	if cfg.MaxToolRounds <= 0 {
		return nil, fmt.Errorf("MAX_TOOL_ROUNDS must be positive, got %d", cfg.MaxToolRounds)
	}
	return cfg, nil
}
