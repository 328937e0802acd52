package kafka_config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"itinera/pkg/logger"
)

type Config struct {
	Brokers  []string
	ClientID string

	ProducerMaxAttempts  int
	ProducerBatchTimeout time.Duration
	ProducerRequireAcks  int    // -1 all, 0 none, 1 leader
	ProducerCompression  string // none, gzip, snappy, lz4, zstd
	ProducerAsync        bool

	ConsumerStartOffset       int64 // -1 newest, -2 oldest
	ConsumerMinBytes          int
	ConsumerMaxBytes          int
	ConsumerMaxWait           time.Duration
	ConsumerCommitInterval    time.Duration
	ConsumerHeartbeatInterval time.Duration
	ConsumerSessionTimeout    time.Duration
	ConsumerRebalanceTimeout  time.Duration
	ConsumerMaxRetries        int
	ConsumerRetryBackoff      time.Duration
}

// Load reads the Kafka settings from the environment.
func Load() (*Config, error) {
	var brokers []string
	for _, broker := range strings.Split(getEnvStr(EnvKafkaBrokers, DefaultKafkaBrokers), ",") {
		if b := strings.TrimSpace(broker); b != "" {
			brokers = append(brokers, b)
		}
	}

	cfg := &Config{
		Brokers:  brokers,
		ClientID: getEnvStr(EnvKafkaClientID, DefaultKafkaClientID),

		ProducerMaxAttempts:  getEnvInt(EnvKafkaProducerMaxAttempts, DefaultProducerMaxAttempts),
		ProducerBatchTimeout: getEnvDuration(EnvKafkaProducerBatchTimeout, DefaultProducerBatchTimeout),
		ProducerRequireAcks:  getEnvInt(EnvKafkaProducerRequireAcks, DefaultProducerRequireAcks),
		ProducerCompression:  getEnvStr(EnvKafkaProducerCompression, DefaultProducerCompression),
		ProducerAsync:        getEnvBool(EnvKafkaProducerAsync, DefaultProducerAsync),

		ConsumerStartOffset:       getEnvInt64(EnvKafkaConsumerStartOffset, DefaultConsumerStartOffset),
		ConsumerMinBytes:          getEnvInt(EnvKafkaConsumerMinBytes, DefaultConsumerMinBytes),
		ConsumerMaxBytes:          getEnvInt(EnvKafkaConsumerMaxBytes, DefaultConsumerMaxBytes),
		ConsumerMaxWait:           getEnvDuration(EnvKafkaConsumerMaxWait, DefaultConsumerMaxWait),
		ConsumerCommitInterval:    getEnvDuration(EnvKafkaConsumerCommitInterval, DefaultConsumerCommitInterval),
		ConsumerHeartbeatInterval: getEnvDuration(EnvKafkaConsumerHeartbeatInterval, DefaultConsumerHeartbeatInterval),
		ConsumerSessionTimeout:    getEnvDuration(EnvKafkaConsumerSessionTimeout, DefaultConsumerSessionTimeout),
		ConsumerRebalanceTimeout:  getEnvDuration(EnvKafkaConsumerRebalanceTimeout, DefaultConsumerRebalanceTimeout),
		ConsumerMaxRetries:        getEnvInt(EnvKafkaConsumerMaxRetries, DefaultConsumerMaxRetries),
		ConsumerRetryBackoff:      getEnvDuration(EnvKafkaConsumerRetryBackoff, DefaultConsumerRetryBackoff),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every problem at once.
func (cfg *Config) Validate() error {
	var problems []string

	if len(cfg.Brokers) == 0 {
		problems = append(problems, "At least one Kafka broker is required")
	}

	if cfg.ProducerMaxAttempts <= 0 {
		problems = append(problems, fmt.Sprintf("ProducerMaxAttempts must be positive, got: %d", cfg.ProducerMaxAttempts))
	}

	if cfg.ProducerBatchTimeout <= 0 {
		problems = append(problems, fmt.Sprintf("ProducerBatchTimeout must be positive, got: %s", cfg.ProducerBatchTimeout))
	}

	switch cfg.ProducerCompression {
	case "none", "gzip", "snappy", "lz4", "zstd":
	default:
		problems = append(problems, fmt.Sprintf("ProducerCompression must be one of [none, gzip, snappy, lz4, zstd], got: %s", cfg.ProducerCompression))
	}

	if cfg.ProducerRequireAcks < -1 || cfg.ProducerRequireAcks > 1 {
		problems = append(problems, fmt.Sprintf("ProducerRequireAcks must be -1, 0, or 1, got: %d", cfg.ProducerRequireAcks))
	}

	if cfg.ConsumerStartOffset < -2 {
		problems = append(problems, fmt.Sprintf("ConsumerStartOffset must be -1 (newest), -2 (oldest), or >= 0, got: %d", cfg.ConsumerStartOffset))
	}

	if cfg.ConsumerMinBytes <= 0 || cfg.ConsumerMaxBytes < cfg.ConsumerMinBytes {
		problems = append(problems, fmt.Sprintf("Consumer byte bounds are invalid: min=%d max=%d", cfg.ConsumerMinBytes, cfg.ConsumerMaxBytes))
	}

	for name, d := range map[string]time.Duration{
		"ConsumerMaxWait":           cfg.ConsumerMaxWait,
		"ConsumerCommitInterval":    cfg.ConsumerCommitInterval,
		"ConsumerHeartbeatInterval": cfg.ConsumerHeartbeatInterval,
		"ConsumerSessionTimeout":    cfg.ConsumerSessionTimeout,
		"ConsumerRebalanceTimeout":  cfg.ConsumerRebalanceTimeout,
	} {
		if d <= 0 {
			problems = append(problems, fmt.Sprintf("%s must be positive, got: %s", name, d))
		}
	}

	if cfg.ConsumerMaxRetries < 0 {
		problems = append(problems, fmt.Sprintf("ConsumerMaxRetries cannot be negative, got: %d", cfg.ConsumerMaxRetries))
	}

	if cfg.ConsumerRetryBackoff < 0 {
		problems = append(problems, fmt.Sprintf("ConsumerRetryBackoff cannot be negative, got: %s", cfg.ConsumerRetryBackoff))
	}

	if len(problems) > 0 {
		errMsg := "Kafka configuration validation failed:\n"
		for i, p := range problems {
			errMsg += fmt.Sprintf("  %d. %s\n", i+1, p)
		}
		return fmt.Errorf("%s", errMsg)
	}

	return nil
}

func (cfg *Config) LogConfiguration(log *logger.Logger) {
	log.Info("Kafka configuration loaded successfully",
		"brokers", cfg.Brokers,
		"client_id", cfg.ClientID,
		"producer_max_attempts", cfg.ProducerMaxAttempts,
		"producer_require_acks", cfg.ProducerRequireAcks,
		"producer_compression", cfg.ProducerCompression,
		"producer_async", cfg.ProducerAsync,
		"consumer_start_offset", cfg.ConsumerStartOffset,
		"consumer_max_retries", cfg.ConsumerMaxRetries,
		"consumer_retry_backoff", cfg.ConsumerRetryBackoff,
	)
}

func getEnvStr(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if int64Value, err := strconv.ParseInt(value, 10, 64); err == nil {
			return int64Value
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
