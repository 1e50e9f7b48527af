package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all consolidator settings, populated from environment variables.
type Config struct {
	OutputDir         string
	ScratchDir        string
	OutputCompression string
	StripTimeBounds   bool
	Workers           int
	SourceCacheSize   int

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Consolidation event publishing.
	KafkaEnabled      bool
	KafkaBrokers      []string
	KafkaTopic        string
	KafkaBatchSize    int
	KafkaBatchTimeout time.Duration
}

const maxWorkers = 64

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	workers, err := parseInt("WORKERS", 1, 1, maxWorkers)
	if err != nil {
		return nil, err
	}

	cacheSize, err := parseInt("SOURCE_CACHE_SIZE", 8, 0, 1<<16)
	if err != nil {
		return nil, err
	}

	stripTimeBounds, err := parseBool("STRIP_TIME_BOUNDS", false)
	if err != nil {
		return nil, err
	}

	kafkaEnabled, err := parseBool("KAFKA_ENABLED", false)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		OutputDir:         sharedcfg.EnvOrDefault("OUTPUT_DIR", "./output"),
		ScratchDir:        sharedcfg.EnvOrDefault("SCRATCH_DIR", filepath.Join(os.TempDir(), "consolidator")),
		OutputCompression: sharedcfg.EnvOrDefault("OUTPUT_COMPRESSION", "none"),
		StripTimeBounds:   stripTimeBounds,
		Workers:           workers,
		SourceCacheSize:   cacheSize,

		HTTPAddr:        os.Getenv("HTTP_ADDR"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		KafkaEnabled:      kafkaEnabled,
		KafkaBrokers:      sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:        sharedcfg.EnvOrDefault("KAFKA_TOPIC", "consolidated-series"),
		KafkaBatchSize:    batchSize,
		KafkaBatchTimeout: flushInterval,
	}

	switch cfg.OutputCompression {
	case "none", "zstd":
	default:
		return nil, fmt.Errorf("invalid OUTPUT_COMPRESSION %q: want none or zstd", cfg.OutputCompression)
	}
	if cfg.KafkaEnabled {
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_BROKERS is required when KAFKA_ENABLED is true")
		}
		if cfg.KafkaTopic == "" {
			return nil, errors.New("KAFKA_TOPIC is required when KAFKA_ENABLED is true")
		}
	}

	return cfg, nil
}

func parseInt(key string, def, lo, hi int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < lo || n > hi {
		return 0, fmt.Errorf("invalid %s %q: want an integer in [%d, %d]", key, s, lo, hi)
	}
	return n, nil
}

func parseBool(key string, def bool) (bool, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: want true or false", key, s)
	}
	return b, nil
}
