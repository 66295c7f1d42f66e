package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/veracitybio/veracity/pkg/config"
	"github.com/veracitybio/veracity/pkg/inference"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "veracity.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
inference:
  backend_url: http://inference.local:8080
  targets: [pro-model, flash-model]
  max_attempts_per_target: 2
  attempt_timeout: 90s
  cache_url: redis://localhost:6379/0
  cache_ttl: 12h
  backoffs:
    rate_limited:
      base: 60s
      multiplier: 2
      cap: 600s
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://inference.local:8080", cfg.Inference.BackendURL)
	assert.Equal(t, []string{"pro-model", "flash-model"}, cfg.Inference.Targets)
	assert.Equal(t, 2, cfg.Inference.MaxAttemptsPerTarget)
	assert.Equal(t, 90*time.Second, time.Duration(cfg.Inference.AttemptTimeout))
	assert.Equal(t, 12*time.Hour, time.Duration(cfg.Inference.CacheTTL))

	backoffs, err := cfg.Inference.ClientBackoffs()
	require.NoError(t, err)
	assert.Equal(t, inference.Backoff{
		Base:       60 * time.Second,
		Multiplier: 2,
		Cap:        600 * time.Second,
	}, backoffs[inference.ClassRateLimited])
}

func TestLoad_MissingTargets(t *testing.T) {
	path := writeConfig(t, `
inference:
  backend_url: http://inference.local:8080
`)

	_, err := config.Load(path)
	require.Error(t, err)
}

func TestLoad_BadDuration(t *testing.T) {
	path := writeConfig(t, `
inference:
  backend_url: http://inference.local:8080
  targets: [pro-model]
  attempt_timeout: ninety seconds
`)

	_, err := config.Load(path)
	require.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestClientBackoffs_UnknownClass(t *testing.T) {
	cfg := config.Inference{
		Backoffs: map[string]config.Backoff{"made_up": {}},
	}

	_, err := cfg.ClientBackoffs()
	require.Error(t, err)
}
