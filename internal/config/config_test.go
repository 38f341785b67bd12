package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/rxflow/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 5*time.Minute, cfg.SessionTTL)
	assert.Equal(t, 0.70, cfg.ConfidenceFloor)
	assert.Equal(t, 0.85, cfg.ClarifyCeiling)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 0.95, cfg.AutoConfirmScore)
	assert.Equal(t, 0.75, cfg.ClarifyScore)
	assert.Equal(t, 5, cfg.BackendFailureThreshold)
	assert.Equal(t, 30*time.Second, cfg.BackendRecoveryTimeout)
}

func TestLoad_YAMLOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"http_addr: \":9090\"\nlog_level: debug\nsession_ttl: 10m\nmax_retries: 5\n",
	), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 10*time.Minute, cfg.SessionTTL)
	assert.Equal(t, 5, cfg.MaxRetries)
	// Untouched keys keep their defaults.
	assert.Equal(t, 0.70, cfg.ConfidenceFloor)
}

func TestLoad_EnvWinsOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("http_addr: \":9090\"\n"), 0o644))

	t.Setenv("RXFLOW_HTTP_ADDR", ":7070")
	t.Setenv("RXFLOW_REDIS_ADDR", "localhost:6379")
	t.Setenv("RXFLOW_CONFIDENCE_FLOOR", "0.6")
	t.Setenv("RXFLOW_EVALUATOR_TIMEOUT", "500ms")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.HTTPAddr)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, 0.6, cfg.ConfidenceFloor)
	assert.Equal(t, 500*time.Millisecond, cfg.EvaluatorTimeout)
}

func TestLoad_MissingFileFails(t *testing.T) {
	_, err := config.Load("/does/not/exist.yaml")
	assert.Error(t, err)
}

func TestLoad_RejectsInvalidThresholds(t *testing.T) {
	t.Setenv("RXFLOW_CONFIDENCE_FLOOR", "1.5")
	_, err := config.Load("")
	assert.Error(t, err)
}

func TestLoad_RejectsCeilingBelowFloor(t *testing.T) {
	t.Setenv("RXFLOW_CLARIFY_CEILING", "0.5")
	_, err := config.Load("")
	assert.Error(t, err)
}
