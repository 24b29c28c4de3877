package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv_Defaults(t *testing.T) {
	for _, key := range []string{"LENDAUDIT_ADDR", "KAFKA_BROKERS", "DATABASE_URL", "AUDIT_WRITE_TIMEOUT"} {
		t.Setenv(key, "")
	}

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Empty(t, cfg.Database.URL)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Equal(t, "audit.records", cfg.Kafka.Topic)
	assert.Equal(t, 5*time.Second, cfg.Audit.WriteTimeout)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("LENDAUDIT_ADDR", ":9090")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("AUDIT_WRITE_TIMEOUT", "250ms")
	t.Setenv("KAFKA_AUDIT_MATERIALIZE", "false")
	t.Setenv("REDIS_AUDIT_STREAM_MAXLEN", "50")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 250*time.Millisecond, cfg.Audit.WriteTimeout)
	assert.False(t, cfg.Kafka.Materialize)
	assert.Equal(t, int64(50), cfg.Redis.StreamMaxLen)
}

func TestFromEnv_ReportsEveryInvalidValue(t *testing.T) {
	t.Setenv("AUDIT_WRITE_TIMEOUT", "soon")
	t.Setenv("REDIS_POOL_SIZE", "many")

	_, err := FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AUDIT_WRITE_TIMEOUT")
	assert.Contains(t, err.Error(), "REDIS_POOL_SIZE")
}

func TestLoad_EnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("LOG_FORMAT=text\n"), 0o600))
	// t.Setenv restores the original value; godotenv only fills unset keys.
	t.Setenv("LOG_FORMAT", "")
	require.NoError(t, os.Unsetenv("LOG_FORMAT"))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestLoad_MissingFileIsFine(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.env"))
	assert.NoError(t, err)
}
