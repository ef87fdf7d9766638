package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("POSTGRES_URL", "")
	t.Setenv("KAFKA_BROKERS", " kafka-1:9092 , ,kafka-2:9092")
	t.Setenv("OUTBOX_BATCH_SIZE", "not-a-number")
	t.Setenv("OUTBOX_ENABLED", "false")

	cfg := Load()
	require.Equal(t, ":5000", cfg.HTTPAddress)
	require.Empty(t, cfg.PostgresURL)
	require.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
	require.Equal(t, 25, cfg.OutboxBatchSize)
	require.False(t, cfg.OutboxEnabled)
	require.Equal(t, 2*time.Second, cfg.OutboxPollInterval)
}

func TestLoadClientMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("FITTRACK_SERVER_URL", "")
	t.Setenv("FITTRACK_STORAGE", "")
	cfg, err := LoadClient(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	require.Equal(t, "http://localhost:5000/api", cfg.ServerURL)
	require.Equal(t, StorageSQLite, cfg.Storage.Backend)
	require.Equal(t, 5*time.Minute, cfg.CacheTTLDuration())
	require.Zero(t, cfg.HTTPTimeoutDuration())
}

func TestLoadClientFileAndOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server_url: https://fit.example/api/
cache_ttl: 2m
storage:
  backend: redis
  redis_url: redis://localhost:6379/0
sync:
  probe_interval: 5s
`), 0o600))

	t.Setenv("FITTRACK_SERVER_URL", "")
	t.Setenv("FITTRACK_STORAGE", "")
	cfg, err := LoadClient(path)
	require.NoError(t, err)
	require.Equal(t, "https://fit.example/api", cfg.ServerURL)
	require.Equal(t, StorageRedis, cfg.Storage.Backend)
	require.Equal(t, 2*time.Minute, cfg.CacheTTLDuration())
	require.Equal(t, 5*time.Second, cfg.ProbeIntervalDuration())
	require.Equal(t, "fitness_tracker_", cfg.Storage.Namespace)

	t.Setenv("FITTRACK_STORAGE", "memory")
	cfg, err = LoadClient(path)
	require.NoError(t, err)
	require.Equal(t, StorageMemory, cfg.Storage.Backend)
}

func TestLoadClientRejectsBadValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage:\n  backend: floppy\n"), 0o600))
	t.Setenv("FITTRACK_STORAGE", "")
	_, err := LoadClient(path)
	require.ErrorContains(t, err, "unknown storage backend")

	require.NoError(t, os.WriteFile(path, []byte("cache_ttl: soon\n"), 0o600))
	_, err = LoadClient(path)
	require.ErrorContains(t, err, "cache_ttl")

	require.NoError(t, os.WriteFile(path, []byte("server_url: [\n"), 0o600))
	_, err = LoadClient(path)
	require.ErrorContains(t, err, "invalid YAML")
}
