package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadExpandsEnvPlaceholders(t *testing.T) {
	t.Setenv("TEST_API_KEY", "sekret")
	t.Setenv("TEST_REDIS_ADDR", "localhost:6379")

	dir := t.TempDir()
	path := writeConfig(t, `
api:
  port: 9000
  api_key: "${TEST_API_KEY}"
database:
  path: "`+filepath.Join(dir, "engine.db")+`"
redis:
  address: "${TEST_REDIS_ADDR}"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.API.Port)
	assert.Equal(t, "sekret", cfg.API.APIKey)
	assert.Equal(t, "localhost:6379", cfg.Redis.Address)
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
database:
  path: "`+filepath.Join(t.TempDir(), "engine.db")+`"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.API.Port)
	assert.Equal(t, 4, cfg.Workers.Count)
	assert.Equal(t, 3, cfg.Workers.MaxRetries)
	assert.Equal(t, 60, cfg.Generation.HorizonDays)
	assert.Equal(t, 3, cfg.Generation.ChunkDays)
	assert.Equal(t, 60, cfg.Generation.FallbackDurationMinute)
	assert.Equal(t, "UTC", cfg.Dispatch.ReferenceTimezone)

	assert.Equal(t, 2*time.Minute, cfg.JobTimeout())
	assert.Equal(t, 500*time.Millisecond, cfg.BackoffBase())
	assert.Zero(t, cfg.SnapshotTTL())
}

func TestLoadDurationOverrides(t *testing.T) {
	path := writeConfig(t, `
database:
  path: "`+filepath.Join(t.TempDir(), "engine.db")+`"
workers:
  job_timeout_seconds: 30
  backoff_base_millis: 100
generation:
  snapshot_ttl_hours: 12
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.JobTimeout())
	assert.Equal(t, 100*time.Millisecond, cfg.BackoffBase())
	assert.Equal(t, 12*time.Hour, cfg.SnapshotTTL())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
