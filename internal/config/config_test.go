package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"AUTOTAB_ORACLE", "AUTOTAB_AUTOML", "AUTOTAB_AUDIT_DB", "AUTOTAB_MAX_CANDIDATES",
		"AUTOTAB_NARRATIVE", "GOOGLE_API_KEY", "GEMINI_MODEL", "OPENAI_API_KEY",
		"OPENAI_BASE_URL", "OPENAI_MODEL",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaultsWhenFilesMissing(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	cfg, err := Load(filepath.Join(dir, ".env"), filepath.Join(dir, "autotab.yml"))
	require.NoError(t, err)

	assert.Equal(t, "gemini", cfg.Oracle.Provider)
	assert.Equal(t, DefaultGeminiModel, cfg.Oracle.Model)
	assert.Equal(t, 2, cfg.Planner.MaxCandidates)
	assert.Equal(t, "portfolio", cfg.AutoML.Backend)
	assert.False(t, cfg.Narrative.Enabled)
}

func TestLoadYAMLThenEnvOverrides(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	yml := []byte(`oracle:
  provider: openai
  model: from-yaml
planner:
  max-candidates: 1
narrative:
  enabled: false
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "autotab.yml"), yml, 0o644))
	t.Setenv("OPENAI_MODEL", "from-env")
	t.Setenv("AUTOTAB_NARRATIVE", "true")

	cfg, err := Load("", filepath.Join(dir, "autotab.yml"))
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.Oracle.Provider)
	assert.Equal(t, "from-env", cfg.Oracle.Model)
	assert.Equal(t, 1, cfg.Planner.MaxCandidates)
	assert.True(t, cfg.Narrative.Enabled)
}

func TestLoadDotEnvDoesNotOverrideProcessEnv(t *testing.T) {
	clearEnv(t)
	require.NoError(t, os.Unsetenv("GEMINI_MODEL"))
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("GEMINI_MODEL=dotenv-model\nGOOGLE_API_KEY=dotenv-key\n"), 0o644))
	t.Setenv("GOOGLE_API_KEY", "process-key")

	cfg, err := Load(envPath, "")
	require.NoError(t, err)

	assert.Equal(t, "process-key", cfg.Oracle.APIKey)
	assert.Equal(t, "dotenv-model", cfg.Oracle.Model)
}

func TestLoadRejectsBadMaxCandidates(t *testing.T) {
	clearEnv(t)
	t.Setenv("AUTOTAB_MAX_CANDIDATES", "two")

	_, err := Load("", "")
	require.Error(t, err)
}
