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
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfigMergesOverDefaults(t *testing.T) {
	path := writeConfig(t, `
name: three-workers
trainer:
  timesteps: 500
  headless: true
  shutdown_grace: 3s
agents:
  - kind: linear
    count: 2
    envs: 10
  - kind: random
    count: 1
    envs: 10
environment:
  num_envs: 30
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "three-workers", cfg.Name)
	assert.Equal(t, "train", cfg.Mode, "default kept")
	assert.Equal(t, 500, cfg.Trainer.Timesteps)
	assert.True(t, cfg.Trainer.Headless)
	assert.Equal(t, 3*time.Second, cfg.Trainer.ShutdownGrace)
	assert.Equal(t, 1000, cfg.Trainer.ProgressInterval, "default kept")
	assert.Equal(t, "pointmass", cfg.Environment.Type)
	assert.Equal(t, 30, cfg.Environment.NumEnvs)
	assert.Equal(t, 3, cfg.AgentCount())
	assert.Equal(t, []int{10, 10, 10}, cfg.EnvCounts())
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 100000, cfg.Trainer.Timesteps)
	assert.False(t, cfg.Trainer.Headless)
	assert.Nil(t, cfg.EnvCounts(), "even split")
}

func TestLoadConfigErrors(t *testing.T) {
	cases := map[string]string{
		"bad yaml":     "trainer: [",
		"bad mode":     "mode: fly",
		"no envs":      "environment:\n  num_envs: 0",
		"zero count":   "agents:\n  - kind: random\n    count: 0",
		"bad device":   "environment:\n  device: tpu",
		"unknown type": "environment:\n  type: cartpole",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, body))
			assert.Error(t, err)
		})
	}

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
