package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeTestFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "")
	t.Setenv("LAVIS_PORT", "")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "anthropic", cfg.LLM.Provider)
	require.Equal(t, 8177, cfg.Port)
	require.Equal(t, 2, cfg.Memory.KeepImageCount)
	require.Equal(t, "fs", cfg.ColdStorage.Backend)
}

func TestLoadHonorsOverrides(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "openai")
	t.Setenv("LAVIS_MAX_STEPS", "12")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "openai", cfg.LLM.Provider)
	require.Equal(t, 12, cfg.Reasoning.MaxSteps)
}

func TestLoadReadsYAMLFileAndEnvStillWins(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/config.yaml"
	require.NoError(t, writeTestFile(path, "port: 9090\nllm:\n  provider: google\nscheduler:\n  worker_pool_size: 7\n"))

	t.Setenv("LAVIS_CONFIG_FILE", path)
	t.Setenv("LLM_PROVIDER", "") // unset: YAML value should apply
	t.Setenv("LAVIS_PORT", "")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 9090, cfg.Port)
	require.Equal(t, "google", cfg.LLM.Provider)
	require.Equal(t, 7, cfg.Scheduler.WorkerPoolSize)

	t.Setenv("LLM_PROVIDER", "anthropic")
	cfg, err = Load()
	require.NoError(t, err)
	require.Equal(t, "anthropic", cfg.LLM.Provider, "env var must win over the YAML file")
}
