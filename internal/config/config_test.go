package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/finance-assistant/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, config.ModeLocal, cfg.Mode)
	assert.True(t, cfg.UseMockLLM)
	assert.Equal(t, "memory", cfg.StorageBackend)
	assert.Equal(t, 1500*time.Millisecond, cfg.NavigateDelay)
	assert.Equal(t, "0 0 1 * *", cfg.NetWorthCron)
}

func TestLoadFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	path := filepath.Join(dir, "finassist.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: "9090"
storage_backend: sqlite
navigate_delay: 2s
max_tool_steps: 6
`), 0o600))

	t.Setenv("FINASSIST_CONFIG", path)
	t.Setenv("FINASSIST_PORT", "7070")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "7070", cfg.Port, "env wins over file")
	assert.Equal(t, "sqlite", cfg.StorageBackend)
	assert.Equal(t, 2*time.Second, cfg.NavigateDelay)
	assert.Equal(t, 6, cfg.MaxToolSteps)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"unknown storage", "FINASSIST_STORAGE_BACKEND", "etcd"},
		{"unknown ledger", "FINASSIST_LEDGER_BACKEND", "pebble"},
		{"bad cron", "FINASSIST_NETWORTH_CRON", "every month"},
		{"bad duration", "FINASSIST_NAVIGATE_DELAY", "soon"},
		{"bad int", "FINASSIST_MAX_TOOL_STEPS", "many"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			t.Setenv(tt.key, tt.val)

			_, err := config.Load()
			assert.Error(t, err)
		})
	}
}

func TestFirestoreNeedsProject(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("FINASSIST_STORAGE_BACKEND", "firestore")

	_, err := config.Load()
	assert.Error(t, err)
}
