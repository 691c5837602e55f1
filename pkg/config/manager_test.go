package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_Creation(t *testing.T) {
	t.Run("Should create manager with default service", func(t *testing.T) {
		manager := NewManager(nil)
		require.NotNil(t, manager)
		require.NotNil(t, manager.Service)
		assert.Equal(t, 100*time.Millisecond, manager.debounce)
		require.NoError(t, manager.Close(context.Background()))
	})

	t.Run("Should create manager with custom service", func(t *testing.T) {
		service := NewService()
		manager := NewManager(service)
		require.NotNil(t, manager)
		assert.Equal(t, service, manager.Service)
		require.NoError(t, manager.Close(context.Background()))
	})

	t.Run("Should configure debounce duration", func(t *testing.T) {
		manager := NewManager(nil)
		defer manager.Close(context.Background())

		manager.SetDebounce(500 * time.Millisecond)
		assert.Equal(t, 500*time.Millisecond, manager.debounce)
	})
}

func TestManager_Load(t *testing.T) {
	t.Run("Should load configuration from defaults", func(t *testing.T) {
		manager := NewManager(nil)
		defer manager.Close(context.Background())

		ctx := context.Background()
		cfg, err := manager.Load(ctx, NewDefaultProvider())

		require.NoError(t, err)
		require.NotNil(t, cfg)
		assert.Equal(t, "localhost", cfg.Database.Host)
		assert.Equal(t, 30*time.Second, cfg.Scheduler.Tick)
	})

	t.Run("Should store configuration atomically", func(t *testing.T) {
		manager := NewManager(nil)
		defer manager.Close(context.Background())

		assert.Nil(t, manager.Get())

		ctx := context.Background()
		cfg, err := manager.Load(ctx, NewDefaultProvider())
		require.NoError(t, err)

		assert.Equal(t, cfg, manager.Get())
	})

	t.Run("Should let a YAML layer override defaults", func(t *testing.T) {
		manager := NewManager(nil)
		defer manager.Close(context.Background())

		tmpDir := t.TempDir()
		yamlPath := filepath.Join(tmpDir, "config.yaml")
		yamlContent := "database:\n  host: db.example.com\n  port: \"6543\"\n"
		require.NoError(t, os.WriteFile(yamlPath, []byte(yamlContent), 0o644))

		ctx := context.Background()
		cfg, err := manager.Load(ctx, NewDefaultProvider(), NewYAMLProvider(yamlPath))

		require.NoError(t, err)
		assert.Equal(t, "db.example.com", cfg.Database.Host)
		assert.Equal(t, "6543", cfg.Database.Port)
	})
}

func TestManager_OnChange(t *testing.T) {
	t.Run("Should invoke callbacks on load", func(t *testing.T) {
		manager := NewManager(nil)
		defer manager.Close(context.Background())

		var notified *Config
		manager.OnChange(func(cfg *Config) {
			notified = cfg
		})

		ctx := context.Background()
		cfg, err := manager.Load(ctx, NewDefaultProvider())
		require.NoError(t, err)
		assert.Equal(t, cfg, notified)
	})
}

func TestManager_Reload(t *testing.T) {
	t.Run("Should reapply the provider stack", func(t *testing.T) {
		manager := NewManager(nil)
		defer manager.Close(context.Background())

		ctx := context.Background()
		_, err := manager.Load(ctx, NewDefaultProvider())
		require.NoError(t, err)

		require.NoError(t, manager.Reload(ctx))
		assert.NotNil(t, manager.Get())
	})
}

func TestManager_WatchIntegration(t *testing.T) {
	t.Run("Should reload on file change", func(t *testing.T) {
		tmpDir := t.TempDir()
		yamlPath := filepath.Join(tmpDir, "config.yaml")
		require.NoError(t, os.WriteFile(
			yamlPath,
			[]byte("database:\n  host: initial.example.com\n"),
			0o644,
		))

		manager := NewManager(nil)
		manager.SetDebounce(10 * time.Millisecond)
		defer manager.Close(context.Background())

		ctx := context.Background()
		cfg, err := manager.Load(ctx, NewYAMLProvider(yamlPath))
		require.NoError(t, err)
		assert.Equal(t, "initial.example.com", cfg.Database.Host)

		time.Sleep(200 * time.Millisecond)

		f, err := os.OpenFile(yamlPath, os.O_WRONLY|os.O_TRUNC, 0o644)
		require.NoError(t, err)
		_, err = f.WriteString("database:\n  host: updated.example.com\n")
		require.NoError(t, err)
		require.NoError(t, f.Sync())
		require.NoError(t, f.Close())

		require.Eventually(t, func() bool {
			updated := manager.Get()
			return updated != nil && updated.Database.Host == "updated.example.com"
		}, 2*time.Second, 50*time.Millisecond, "configuration reload timeout")
	})
}

func TestManager_Close(t *testing.T) {
	t.Run("Should close gracefully", func(t *testing.T) {
		manager := NewManager(nil)

		ctx := context.Background()
		_, err := manager.Load(ctx, NewYAMLProvider(filepath.Join(t.TempDir(), "missing.yaml")))
		require.NoError(t, err)

		done := make(chan bool)
		go func() {
			assert.NoError(t, manager.Close(context.Background()))
			done <- true
		}()

		select {
		case <-done:
		case <-time.After(1 * time.Second):
			t.Fatal("timeout waiting for close")
		}
	})
}
