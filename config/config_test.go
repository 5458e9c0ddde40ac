package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))

	require.NoError(t, err, "a missing config file falls back to defaults")
	assert.Equal(t, "8000", cfg.Port)
	assert.Equal(t, "./docs", cfg.DocsDir)
	assert.Equal(t, "/data", cfg.IndexDir)
	assert.Equal(t, "./index", cfg.LocalIndexDir)
	assert.Equal(t, "claude-3-haiku-20240307", cfg.AnthropicModel)
	assert.Equal(t, "gpt-4o-mini", cfg.OpenAIModel)
	assert.Equal(t, 4000, cfg.ChunkSize)
	assert.Equal(t, 500, cfg.ChunkOverlap)
	assert.Equal(t, 50, cfg.BatchSize)
	assert.Equal(t, 10, cfg.BatchPauseSeconds)
	assert.Equal(t, 60, cfg.RateLimitBackoffSeconds)
	assert.Equal(t, int64(50*1024*1024), cfg.MaxFileSizeBytes)
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `port: "9000"
docs_dir: /srv/docs
chunk_size: 2000
allowed_origins:
  - https://chat.example.kz
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadConfig(path)

	require.NoError(t, err)
	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, "/srv/docs", cfg.DocsDir)
	assert.Equal(t, 2000, cfg.ChunkSize)
	assert.Equal(t, []string{"https://chat.example.kz"}, cfg.AllowedOrigins)
	assert.Equal(t, 500, cfg.ChunkOverlap, "unset values keep their defaults")
}

func TestLoadConfigReadsSecretsFromEnv(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("ADMIN_PASSWORD", "secret")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))

	require.NoError(t, err)
	assert.Equal(t, "sk-test", cfg.OpenAIAPIKey)
	assert.Equal(t, "secret", cfg.AdminPassword)
	assert.Empty(t, cfg.TelegramBotToken)
}

func TestLoadConfigRejectsBrokenFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: [broken"), 0644))

	_, err := LoadConfig(path)

	assert.Error(t, err)
}
