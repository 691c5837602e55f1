package config

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService_Load(t *testing.T) {
	t.Run("Should apply defaults when no providers given", func(t *testing.T) {
		svc := NewService()
		cfg, err := svc.Load(context.Background())
		require.NoError(t, err)
		assert.Equal(t, Default().Worker.Concurrency, cfg.Worker.Concurrency)
	})

	t.Run("Should let environment override defaults", func(t *testing.T) {
		t.Setenv("WORKFLOWD_DATABASE__HOST", "env.example.com")
		svc := NewService()
		cfg, err := svc.Load(context.Background(), NewDefaultProvider(), NewEnvProvider())
		require.NoError(t, err)
		assert.Equal(t, "env.example.com", cfg.Database.Host)
		assert.Equal(t, SourceEnv, svc.GetSource("database.host"))
	})
}

func TestService_Validate(t *testing.T) {
	svc := NewService()

	t.Run("Should reject non-positive worker concurrency", func(t *testing.T) {
		cfg := Default()
		cfg.Worker.Concurrency = 0
		require.Error(t, svc.Validate(cfg))
	})

	t.Run("Should reject non-positive scheduler tick", func(t *testing.T) {
		cfg := Default()
		cfg.Scheduler.Tick = 0
		require.Error(t, svc.Validate(cfg))
	})

	t.Run("Should accept the built-in defaults", func(t *testing.T) {
		require.NoError(t, svc.Validate(Default()))
	})
}
