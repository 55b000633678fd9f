package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigFromFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
roshita:
  base_url: http://test-roshita.net/api
  timeout: 5s
planner:
  page_size: 10
session:
  store: redis
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "http://test-roshita.net/api", cfg.Roshita.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.Roshita.Timeout)
	assert.Equal(t, 10, cfg.Planner.PageSize)
	assert.True(t, cfg.UsesRedis())

	// untouched keys keep their defaults
	assert.Equal(t, "ar", cfg.Session.DefaultLanguage)
	assert.Equal(t, "planner.audit", cfg.Audit.Channel)
	assert.Equal(t, 100, cfg.Planner.MaxPages)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9090\n")
	t.Setenv("PLANNER_SERVER_PORT", "7070")
	t.Setenv("PLANNER_ROSHITA_BASE_URL", "https://staging.roshita.net/api")
	t.Setenv("PLANNER_DATABASE_ENABLED", "true")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "https://staging.roshita.net/api", cfg.Roshita.BaseURL)
	assert.True(t, cfg.Database.Enabled)
}

func TestValidateRejectsBadValues(t *testing.T) {
	path := writeConfig(t, `
session:
  store: etcd
  default_language: fr
audit:
  database: true
`)

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session.store")
	assert.Contains(t, err.Error(), "session.default_language")
	assert.Contains(t, err.Error(), "audit.database requires database.enabled")
}

func TestMissingExplicitFileFails(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yml"))
	assert.Error(t, err)
}

func TestSessionEncryptionKey(t *testing.T) {
	path := writeConfig(t, "session:\n  encryption_key: not-a-key\n")
	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session.encryption_key")

	t.Setenv("PLANNER_SESSION_ENCRYPTION_KEY", "000102030405060708090a0b0c0d0e0f")
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "000102030405060708090a0b0c0d0e0f", cfg.Session.EncryptionKey)
}
