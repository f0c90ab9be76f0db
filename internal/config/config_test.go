package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.HTTPAddress)
	assert.Equal(t, ":50051", cfg.Server.GRPCAddress)
	assert.Equal(t, 1000, cfg.Server.RateLimitPerMinute)
	assert.Equal(t, 60*time.Second, cfg.Integrations.TestGenerator.Timeout)
	assert.Equal(t, 30*time.Second, cfg.Integrations.Ticketing.Timeout)
	assert.Equal(t, 10*time.Second, cfg.Integrations.Notifications.Timeout)
	assert.Equal(t, "/api/v1/generate", cfg.Integrations.TestGenerator.Path)
	assert.Equal(t, "/api/v1/jira/tickets", cfg.Integrations.Ticketing.Path)
	assert.Equal(t, "/api/v1/notifications", cfg.Integrations.Notifications.Path)
	assert.Equal(t, ProviderMemory, cfg.Cache.Provider)
}

func TestLoadFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "feedback.yaml")
	body := `
server:
  httpAddress: ":9090"
storage:
  inMemory: true
integrations:
  baseURL: http://integrations:8080
  ticketing:
    provider: github
    github:
      owner: acme
      repo: web
logging:
  level: debug
execution:
  maxConcurrent: 4
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	t.Setenv("MIRADOR_FEEDBACK_LOG_FORMAT", "json")
	t.Setenv("MIRADOR_FEEDBACK_TICKETING_TIMEOUT", "5s")
	t.Setenv("MIRADOR_FEEDBACK_GITHUB_TOKEN", "secret")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.HTTPAddress)
	assert.Equal(t, ":50051", cfg.Server.GRPCAddress)
	assert.True(t, cfg.Storage.InMemory)
	assert.Equal(t, "http://integrations:8080", cfg.Integrations.BaseURL)
	assert.Equal(t, ProviderGitHub, cfg.Integrations.Ticketing.Provider)
	assert.Equal(t, "acme", cfg.Integrations.Ticketing.GitHub.Owner)
	assert.Equal(t, "secret", cfg.Integrations.Ticketing.GitHub.Token)
	assert.Equal(t, 5*time.Second, cfg.Integrations.Ticketing.Timeout)
	assert.Equal(t, "/api/v1/jira/tickets", cfg.Integrations.Ticketing.Path)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.JSON)
	assert.Equal(t, 4, cfg.Execution.MaxConcurrent)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestLoadRejectsUnknownProvider(t *testing.T) {
	t.Setenv("MIRADOR_FEEDBACK_NOTIFICATIONS_PROVIDER", "carrier-pigeon")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "integrations.notifications.provider")
}

func TestValidateRequiresStoragePath(t *testing.T) {
	cfg := defaultConfig()
	cfg.Storage.Path = ""
	require.Error(t, cfg.Validate())

	cfg.Storage.InMemory = true
	require.NoError(t, cfg.Validate())
}

func TestExampleConfigLoads(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "configs", "feedback.example.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8090", cfg.Integrations.BaseURL)
	assert.Equal(t, 16, cfg.Execution.MaxConcurrent)
}
