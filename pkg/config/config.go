package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"time"

	"itinera/pkg/client"
	"itinera/pkg/logger"
)

type Config struct {
	StorageBackend    string
	MongoURI          string
	MongoDatabaseName string
	MongoConnTimeout  time.Duration

	Port string

	ProviderBaseURL        string
	ProviderCallTimeout    time.Duration
	ProviderMaxAttempts    int
	ProviderBackoffBase    time.Duration
	ProviderMaxConcurrency int

	SearchMaxCandidates int
	SearchMinConnection time.Duration

	HoldTTL         time.Duration
	SweepInterval   time.Duration
	SweepBatchSize  int
	InventoryShards int

	PaymentFailureRate float64

	KafkaEnabled    bool
	KafkaAuditTopic string
	KafkaAuditGroup string
	KafkaAuditDLQ   string

	RateLimitRequests int
	RateLimitWindow   time.Duration

	RequestTimeout time.Duration
	IdempotencyTTL time.Duration
	MaxRequestSize int

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	SimChaos bool
	SimSeed  int64
	SimPort  string
	SimDelay time.Duration

	Log    *logger.Logger
	Client *client.Client
}

func Load(serviceName string) *Config {
	return &Config{
		StorageBackend:    getEnvStr(EnvStorageBackend, DefaultStorageBackend),
		MongoURI:          getEnvStr(EnvMongoURI, DefaultMongoURI),
		MongoDatabaseName: getEnvStr(EnvMongoDatabaseName, DefaultMongoDatabaseName),
		MongoConnTimeout:  getEnvDuration(EnvMongoConnTimeout, DefaultMongoConnTimeout),

		Port: getEnvStr(EnvPort, DefaultPort),

		ProviderBaseURL:        getEnvStr(EnvProviderBaseURL, DefaultProviderBaseURL),
		ProviderCallTimeout:    getEnvDuration(EnvProviderCallTimeout, DefaultProviderCallTimeout),
		ProviderMaxAttempts:    getEnvNum(EnvProviderMaxAttempts, DefaultProviderMaxAttempts),
		ProviderBackoffBase:    getEnvDuration(EnvProviderBackoffBase, DefaultProviderBackoffBase),
		ProviderMaxConcurrency: getEnvNum(EnvProviderMaxConcurrency, DefaultProviderMaxConcurrency),

		SearchMaxCandidates: getEnvNum(EnvSearchMaxCandidates, DefaultSearchMaxCandidates),
		SearchMinConnection: getEnvDuration(EnvSearchMinConnection, DefaultSearchMinConnection),

		HoldTTL:         getEnvDuration(EnvHoldTTL, DefaultHoldTTL),
		SweepInterval:   getEnvDuration(EnvSweepInterval, DefaultSweepInterval),
		SweepBatchSize:  getEnvNum(EnvSweepBatchSize, DefaultSweepBatchSize),
		InventoryShards: getEnvNum(EnvInventoryShards, DefaultInventoryShards),

		PaymentFailureRate: getEnvFloat(EnvPaymentFailureRate, DefaultPaymentFailureRate),

		KafkaEnabled:    getEnvBool(EnvKafkaEnabled, DefaultKafkaEnabled),
		KafkaAuditTopic: getEnvStr(EnvKafkaAuditTopic, DefaultKafkaAuditTopic),
		KafkaAuditGroup: getEnvStr(EnvKafkaAuditGroup, DefaultKafkaAuditGroup),
		KafkaAuditDLQ:   getEnvStr(EnvKafkaAuditDLQ, DefaultKafkaAuditDLQ),

		RateLimitRequests: getEnvNum(EnvRateLimitRequests, DefaultRateLimitRequests),
		RateLimitWindow:   getEnvDuration(EnvRateLimitWindow, DefaultRateLimitWindow),

		RequestTimeout: getEnvDuration(EnvRequestTimeout, DefaultRequestTimeout),
		IdempotencyTTL: getEnvDuration(EnvIdempotencyTTL, DefaultIdempotencyTTL),
		MaxRequestSize: getEnvNum(EnvMaxRequestSize, DefaultMaxRequestSize),

		ReadTimeout:     getEnvDuration(EnvReadTimeout, DefaultReadTimeout),
		WriteTimeout:    getEnvDuration(EnvWriteTimeout, DefaultWriteTimeout),
		IdleTimeout:     getEnvDuration(EnvIdleTimeout, DefaultIdleTimeout),
		ShutdownTimeout: getEnvDuration(EnvShutdownTimeout, DefaultShutdownTimeout),

		SimChaos: getEnvBool(EnvSimChaos, DefaultSimChaos),
		SimSeed:  int64(getEnvNum(EnvSimSeed, DefaultSimSeed)),
		SimPort:  getEnvStr(EnvSimPort, DefaultSimPort),
		SimDelay: getEnvDuration(EnvSimDelay, DefaultSimDelay),

		Log: logger.New(logger.Config{
			Level:     getEnvStr(EnvLogLevel, DefaultLogLevel),
			Format:    logger.JSON,
			AddSource: true,
			Service:   serviceName,
		}),
		Client: client.NewClient(),
	}
}

func (cfg *Config) SetMongo() {
	cfg.Client.SetMongo(cfg.Log, cfg.MongoURI, cfg.MongoConnTimeout)
}

func (cfg *Config) UsesMongo() bool {
	return cfg.StorageBackend == StorageMongo
}

func (cfg *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(cfg.Port); err != nil || port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("Port must be between 1 and 65535, got: %s", cfg.Port))
	}

	switch cfg.StorageBackend {
	case StorageMemory:
	case StorageMongo:
		if cfg.MongoURI == "" {
			errors = append(errors, "MongoURI cannot be empty")
		} else if !regexp.MustCompile(`^mongodb(\+srv)?://`).MatchString(cfg.MongoURI) {
			errors = append(errors, fmt.Sprintf("MongoURI must start with 'mongodb://' or 'mongodb+srv://', got: %s", redactMongoURI(cfg.MongoURI)))
		}
		if cfg.MongoDatabaseName == "" {
			errors = append(errors, "MongoDatabaseName cannot be empty")
		}
		if cfg.MongoConnTimeout <= 0 {
			errors = append(errors, fmt.Sprintf("MongoConnTimeout must be positive, got: %s", cfg.MongoConnTimeout))
		}
	default:
		errors = append(errors, fmt.Sprintf("StorageBackend must be one of [memory, mongo], got: %s", cfg.StorageBackend))
	}

	if u, err := url.Parse(cfg.ProviderBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errors = append(errors, fmt.Sprintf("ProviderBaseURL must be an absolute URL, got: %s", cfg.ProviderBaseURL))
	}
	if cfg.ProviderCallTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("ProviderCallTimeout must be positive, got: %s", cfg.ProviderCallTimeout))
	}
	if cfg.ProviderMaxAttempts < 1 || cfg.ProviderMaxAttempts > 3 {
		errors = append(errors, fmt.Sprintf("ProviderMaxAttempts must be between 1 and 3, got: %d", cfg.ProviderMaxAttempts))
	}
	if cfg.ProviderBackoffBase < 0 {
		errors = append(errors, fmt.Sprintf("ProviderBackoffBase cannot be negative, got: %s", cfg.ProviderBackoffBase))
	}
	if cfg.ProviderMaxConcurrency <= 0 {
		errors = append(errors, fmt.Sprintf("ProviderMaxConcurrency must be positive, got: %d", cfg.ProviderMaxConcurrency))
	}

	if cfg.SearchMaxCandidates <= 0 {
		errors = append(errors, fmt.Sprintf("SearchMaxCandidates must be positive, got: %d", cfg.SearchMaxCandidates))
	}
	if cfg.SearchMinConnection < 0 {
		errors = append(errors, fmt.Sprintf("SearchMinConnection cannot be negative, got: %s", cfg.SearchMinConnection))
	}

	if cfg.HoldTTL <= 0 {
		errors = append(errors, fmt.Sprintf("HoldTTL must be positive, got: %s", cfg.HoldTTL))
	}
	if cfg.SweepInterval <= 0 {
		errors = append(errors, fmt.Sprintf("SweepInterval must be positive, got: %s", cfg.SweepInterval))
	}
	if cfg.SweepBatchSize <= 0 {
		errors = append(errors, fmt.Sprintf("SweepBatchSize must be positive, got: %d", cfg.SweepBatchSize))
	}
	if cfg.InventoryShards <= 0 {
		errors = append(errors, fmt.Sprintf("InventoryShards must be positive, got: %d", cfg.InventoryShards))
	}
	if cfg.PaymentFailureRate < 0 || cfg.PaymentFailureRate > 1 {
		errors = append(errors, fmt.Sprintf("PaymentFailureRate must be within [0, 1], got: %v", cfg.PaymentFailureRate))
	}

	if cfg.KafkaEnabled && cfg.KafkaAuditTopic == "" {
		errors = append(errors, "KafkaAuditTopic cannot be empty when Kafka is enabled")
	}
	if cfg.KafkaEnabled && cfg.KafkaAuditGroup == "" {
		errors = append(errors, "KafkaAuditGroup cannot be empty when Kafka is enabled")
	}

	if cfg.RateLimitWindow <= 0 {
		errors = append(errors, fmt.Sprintf("RateLimitWindow must be positive, got: %s", cfg.RateLimitWindow))
	}
	if cfg.RateLimitRequests <= 0 {
		errors = append(errors, fmt.Sprintf("RateLimitRequests must be positive, got: %d", cfg.RateLimitRequests))
	}
	if cfg.RequestTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("RequestTimeout must be positive, got: %s", cfg.RequestTimeout))
	}
	if cfg.IdempotencyTTL <= 0 {
		errors = append(errors, fmt.Sprintf("IdempotencyTTL must be positive, got: %s", cfg.IdempotencyTTL))
	}
	if cfg.MaxRequestSize <= 0 {
		errors = append(errors, fmt.Sprintf("MaxRequestSize must be positive, got: %d", cfg.MaxRequestSize))
	}
	if cfg.ReadTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("ReadTimeout must be positive, got: %s", cfg.ReadTimeout))
	}
	if cfg.WriteTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("WriteTimeout must be positive, got: %s", cfg.WriteTimeout))
	}
	if cfg.IdleTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("IdleTimeout must be positive, got: %s", cfg.IdleTimeout))
	}
	if cfg.ShutdownTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("ShutdownTimeout must be positive, got: %s", cfg.ShutdownTimeout))
	}

	if len(errors) > 0 {
		errMsg := "Configuration validation failed:\n"
		for i, err := range errors {
			errMsg += fmt.Sprintf("  %d. %s\n", i+1, err)
		}
		return fmt.Errorf("%s", errMsg)
	}

	return nil
}

func (cfg *Config) LogConfiguration() {
	cfg.Log.Info("Configuration loaded successfully",
		"storage_backend", cfg.StorageBackend,
		"mongo_uri", redactMongoURI(cfg.MongoURI),
		"mongo_database", cfg.MongoDatabaseName,
		"port", cfg.Port,
		"provider_base_url", cfg.ProviderBaseURL,
		"provider_call_timeout", cfg.ProviderCallTimeout,
		"provider_max_attempts", cfg.ProviderMaxAttempts,
		"provider_max_concurrency", cfg.ProviderMaxConcurrency,
		"search_max_candidates", cfg.SearchMaxCandidates,
		"search_min_connection", cfg.SearchMinConnection,
		"hold_ttl", cfg.HoldTTL,
		"sweep_interval", cfg.SweepInterval,
		"inventory_shards", cfg.InventoryShards,
		"payment_failure_rate", cfg.PaymentFailureRate,
		"kafka_enabled", cfg.KafkaEnabled,
		"kafka_audit_topic", cfg.KafkaAuditTopic,
		"rate_limit_requests", cfg.RateLimitRequests,
		"rate_limit_window", cfg.RateLimitWindow,
		"request_timeout", cfg.RequestTimeout,
		"idempotency_ttl", cfg.IdempotencyTTL,
		"max_request_size", cfg.MaxRequestSize,
		"read_timeout", cfg.ReadTimeout,
		"write_timeout", cfg.WriteTimeout,
		"idle_timeout", cfg.IdleTimeout,
		"shutdown_timeout", cfg.ShutdownTimeout,
	)
}

func redactMongoURI(uri string) string {
	credentialRegex := regexp.MustCompile(`(mongodb(\+srv)?://)[^:]+:[^@]+@`)
	return credentialRegex.ReplaceAllString(uri, "${1}***:***@")
}

func getEnvStr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvNum(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func (cfg *Config) GracefulShutdown() {
	cfg.Client.GracefulShutdown(cfg.Log)
}
