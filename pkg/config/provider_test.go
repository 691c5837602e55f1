package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultProvider_Load(t *testing.T) {
	t.Run("Should return the built-in defaults as a dotted map", func(t *testing.T) {
		provider := NewDefaultProvider()
		data, err := provider.Load()
		require.NoError(t, err)
		assert.NotEmpty(t, data)
		assert.Equal(t, SourceDefault, provider.Type())
	})
}

func TestYAMLProvider_Load(t *testing.T) {
	t.Run("Should parse an existing file", func(t *testing.T) {
		tmpDir := t.TempDir()
		path := filepath.Join(tmpDir, "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("worker:\n  concurrency: 9\n"), 0o644))

		provider := NewYAMLProvider(path)
		data, err := provider.Load()
		require.NoError(t, err)
		worker, ok := data["worker"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, 9, worker["concurrency"])
	})

	t.Run("Should return an empty map for a missing file", func(t *testing.T) {
		provider := NewYAMLProvider(filepath.Join(t.TempDir(), "missing.yaml"))
		data, err := provider.Load()
		require.NoError(t, err)
		assert.Empty(t, data)
	})
}

func TestEnvProvider_Load(t *testing.T) {
	t.Run("Should return an empty map since env is merged directly by Service", func(t *testing.T) {
		provider := NewEnvProvider()
		data, err := provider.Load()
		require.NoError(t, err)
		assert.Empty(t, data)
		assert.Equal(t, SourceEnv, provider.Type())
	})
}

func TestEnvKeyToPath(t *testing.T) {
	t.Run("Should lowercase and translate double underscores to dots", func(t *testing.T) {
		assert.Equal(t, "database.host", envKeyToPath("WORKFLOWD_DATABASE__HOST"))
		assert.Equal(t, "scheduler.log_retention_days", envKeyToPath("WORKFLOWD_SCHEDULER__LOG_RETENTION_DAYS"))
	})
}
