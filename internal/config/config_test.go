package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const defaultBroker = "localhost:9092"

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "./output", cfg.OutputDir)
	assert.Equal(t, filepath.Join(os.TempDir(), "consolidator"), cfg.ScratchDir)
	assert.Equal(t, "none", cfg.OutputCompression)
	assert.False(t, cfg.StripTimeBounds)
	assert.Equal(t, 1, cfg.Workers)
	assert.Equal(t, 8, cfg.SourceCacheSize)
	assert.Empty(t, cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.False(t, cfg.KafkaEnabled)
	assert.Equal(t, []string{defaultBroker}, cfg.KafkaBrokers)
	assert.Equal(t, "consolidated-series", cfg.KafkaTopic)
	assert.Equal(t, 50, cfg.KafkaBatchSize)
	assert.Equal(t, 500*time.Millisecond, cfg.KafkaBatchTimeout)
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("OUTPUT_DIR", "/data/out")
	t.Setenv("SCRATCH_DIR", "/data/scratch")
	t.Setenv("OUTPUT_COMPRESSION", "zstd")
	t.Setenv("STRIP_TIME_BOUNDS", "true")
	t.Setenv("WORKERS", "4")
	t.Setenv("SOURCE_CACHE_SIZE", "0")
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("SHUTDOWN_TIMEOUT", "30s")
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("KAFKA_BROKERS", "broker1:9092,broker2:9092")
	t.Setenv("KAFKA_TOPIC", "custom-series")
	t.Setenv("BATCH_SIZE", "100")
	t.Setenv("BATCH_FLUSH_INTERVAL", "1s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/data/out", cfg.OutputDir)
	assert.Equal(t, "/data/scratch", cfg.ScratchDir)
	assert.Equal(t, "zstd", cfg.OutputCompression)
	assert.True(t, cfg.StripTimeBounds)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, 0, cfg.SourceCacheSize)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.True(t, cfg.KafkaEnabled)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "custom-series", cfg.KafkaTopic)
	assert.Equal(t, 100, cfg.KafkaBatchSize)
	assert.Equal(t, 1*time.Second, cfg.KafkaBatchTimeout)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"SHUTDOWN_TIMEOUT", "not-a-duration"},
		{"SHUTDOWN_TIMEOUT", "-1s"},
		{"BATCH_SIZE", "0"},
		{"BATCH_FLUSH_INTERVAL", "not-a-duration"},
		{"WORKERS", "0"},
		{"WORKERS", "65"},
		{"WORKERS", "many"},
		{"SOURCE_CACHE_SIZE", "-1"},
		{"STRIP_TIME_BOUNDS", "maybe"},
		{"KAFKA_ENABLED", "yes please"},
		{"OUTPUT_COMPRESSION", "gzip"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}

func TestLoad_KafkaEnabledWithoutTopic(t *testing.T) {
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("KAFKA_TOPIC", "")
	cfg, err := Load()
	// An empty KAFKA_TOPIC falls back to the default.
	require.NoError(t, err)
	assert.Equal(t, "consolidated-series", cfg.KafkaTopic)
}
