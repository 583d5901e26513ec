package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeConfig(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Http.Port)
	assert.Equal(t, 0.2, cfg.Model.TestRatio)
	assert.Equal(t, int64(42), cfg.Model.Seed)
	assert.Equal(t, "decision_tree", cfg.Model.Type)
}

func TestLoadYAMLAndEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, `
http:
  port: 9090
  timeout: 5s
model:
  max_depth: 3
  test_ratio: 0.25
  seed: 7
log:
  level: debug
`)
	t.Setenv("LOANGUARD_LOG_LEVEL", "warn")
	t.Setenv("LOANGUARD_RETRAIN_EACH_REQUEST", "true")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Http.Port)
	assert.Equal(t, 5*time.Second, cfg.Http.Timeout)
	assert.Equal(t, 3, cfg.Model.MaxDepth)
	assert.Equal(t, 0.25, cfg.Model.TestRatio)
	assert.Equal(t, int64(7), cfg.Model.Seed)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.True(t, cfg.Model.RetrainEachRequest)
	// untouched sections keep defaults
	assert.Equal(t, "data/loanguard.db", cfg.Database.Path)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, "model:\n  test_ratio: 1.5\n")
	_, err := Load(path)
	require.Error(t, err)

	writeConfig(t, path, "http:\n  port: [oops\n")
	_, err = Load(path)
	require.Error(t, err)

	t.Setenv("LOANGUARD_HTTP_PORT", "eighty")
	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestWatchReportsModelChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, "model:\n  max_depth: 2\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan ModelConfig, 4)
	require.NoError(t, Watch(ctx, path, cfg.Model, func(m ModelConfig) { changes <- m }, zap.NewNop()))

	writeConfig(t, path, "model:\n  max_depth: 5\n")

	// a partially written file may be observed first
	deadline := time.After(5 * time.Second)
	for {
		select {
		case m := <-changes:
			if m.MaxDepth == 5 {
				return
			}
		case <-deadline:
			t.Fatal("expected a model config change")
		}
	}
}
