package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "CP1", cfg.Operator)
	assert.Equal(t, "cp1", cfg.Station)
	assert.Equal(t, "mst26-cp1.db", cfg.DBPath)
	assert.Equal(t, 10, cfg.BatchSize)
	assert.Equal(t, 15*time.Second, cfg.SyncTimeout)
	assert.Equal(t, 5*time.Second, cfg.LockWindow)
	assert.Equal(t, 30, cfg.MaxSyncPasses)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("MST_API_BASE", "http://localhost:8799")
	t.Setenv("MST_BATCH_SIZE", "25")
	t.Setenv("MST_LOCK_WINDOW", "2s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8799", cfg.APIBase)
	assert.Equal(t, 25, cfg.BatchSize)
	assert.Equal(t, 2*time.Second, cfg.LockWindow)
}
