package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 3, cfg.Workflow.MaxAttempts)
	assert.Equal(t, 2000, cfg.Workflow.CharLimit)
	assert.Equal(t, 3, cfg.Batch.Workers)
	assert.Equal(t, "gemini", cfg.LLM.Provider)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Batch.Workers, cfg.Batch.Workers)
}

func TestLoad_ParsesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
workflow:
  max_attempts: 5
  char_limit: 1500
batch:
  workers: 8
links:
  probe_timeout: 5s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Workflow.MaxAttempts)
	assert.Equal(t, 1500, cfg.Workflow.CharLimit)
	assert.Equal(t, 8, cfg.Batch.Workers)
	assert.Equal(t, 5*time.Second, cfg.ProbeTimeout())
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("batch:\n  workers: 0\n"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("ANSWERVET_MODEL", "gemini-test")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "test-key", cfg.LLM.APIKey)
	assert.Equal(t, "gemini-test", cfg.LLM.Model)
}

func TestTimeoutFallbacks(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Links.ProbeTimeout = "garbage"
	assert.Equal(t, 10*time.Second, cfg.ProbeTimeout())

	cfg.LLM.Timeout = ""
	assert.Equal(t, 120*time.Second, cfg.LLMTimeout())
}
