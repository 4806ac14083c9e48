package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, StorageMemory, cfg.Storage.Mode)
	assert.Equal(t, 1, cfg.Session.MaxConnectionsPerUser)
	assert.Equal(t, 24*time.Hour, cfg.Session.SessionTTL)
	assert.Equal(t, 20, cfg.Room.DefaultCapacity)
	assert.Equal(t, 5*time.Minute, cfg.Room.EmptyRoomGrace)
	assert.Equal(t, 5*time.Second, cfg.Battle.StartDelay)
	assert.Equal(t, 100*time.Millisecond, cfg.Worker.PollInterval)
	assert.Equal(t, 10, cfg.Worker.BatchSize)
	assert.Equal(t, 3, cfg.Worker.MaxRetries)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quizbattle.yaml")
	data := `
listen_addr: ":9090"
storage:
  mode: redis
  redis_url: redis://example:6379/1
room:
  default_capacity: 8
battle:
  start_delay: 2s
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.ListenAddr)
	assert.Equal(t, StorageRedis, cfg.Storage.Mode)
	assert.Equal(t, "redis://example:6379/1", cfg.Storage.RedisURL)
	assert.Equal(t, 8, cfg.Room.DefaultCapacity)
	assert.Equal(t, 2*time.Second, cfg.Battle.StartDelay)
	// Unset keys keep their defaults
	assert.Equal(t, 10, cfg.Worker.BatchSize)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("QUIZBATTLE_LISTEN_ADDR", ":7070")
	t.Setenv("QUIZBATTLE_STORAGE_MODE", "redis")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.ListenAddr)
	assert.Equal(t, StorageRedis, cfg.Storage.Mode)
}

func TestUnknownStorageMode(t *testing.T) {
	t.Setenv("QUIZBATTLE_STORAGE_MODE", "filesystem")

	_, err := Load("")
	assert.Error(t, err)
}

func TestMissingFileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
