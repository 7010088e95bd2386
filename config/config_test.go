package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, env := range envBindings {
		t.Setenv(env, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:11434/api/chat", cfg.OllamaURL)
	assert.Equal(t, 120*time.Second, cfg.ModelTimeout)
	assert.Equal(t, 3, cfg.RetrievalTopK)
	assert.Equal(t, 10, cfg.MaxToolRounds)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "google_token.json", cfg.GoogleTokenFile)
	assert.Empty(t, cfg.TelegramToken)
	assert.Empty(t, cfg.RetrievalURL)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "tok-123")
	t.Setenv("OLLAMA_MODEL", "llama3:70b")
	t.Setenv("RETRIEVAL_URL", "http://retriever:8080/search")
	t.Setenv("MAX_TOOL_ROUNDS", "5")
	t.Setenv("MODEL_TIMEOUT", "30s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "tok-123", cfg.TelegramToken)
	assert.Equal(t, "llama3:70b", cfg.OllamaModel)
	assert.Equal(t, "http://retriever:8080/search", cfg.RetrievalURL)
	assert.Equal(t, 5, cfg.MaxToolRounds)
	assert.Equal(t, 30*time.Second, cfg.ModelTimeout)
}

func TestLoadRejectsNonPositiveRoundCap(t *testing.T) {
	t.Setenv("MAX_TOOL_ROUNDS", "0")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MAX_TOOL_ROUNDS")
}

func TestParseLogLevel(t *testing.T) {
	cases := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"info", slog.LevelInfo, false},
		{"DEBUG", slog.LevelDebug, false},
		{" warn ", slog.LevelWarn, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}
	for _, tc := range cases {
		level, err := ParseLogLevel(tc.in)
		if tc.wantErr {
			assert.Error(t, err, "input %q", tc.in)
			continue
		}
		require.NoError(t, err, "input %q", tc.in)
		assert.Equal(t, tc.want, level, "input %q", tc.in)
	}
}
