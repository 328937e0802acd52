package config

const (
	EnvStorageBackend    = "STORAGE_BACKEND"
	EnvMongoURI          = "MONGO_URI"
	EnvMongoDatabaseName = "MONGO_DATABASE_NAME"
	EnvMongoConnTimeout  = "MONGO_CONN_TIMEOUT"

	EnvPort     = "PORT"
	EnvLogLevel = "LOG_LEVEL"

	EnvProviderBaseURL        = "PROVIDER_BASE_URL"
	EnvProviderCallTimeout    = "PROVIDER_CALL_TIMEOUT"
	EnvProviderMaxAttempts    = "PROVIDER_MAX_ATTEMPTS"
	EnvProviderBackoffBase    = "PROVIDER_BACKOFF_BASE"
	EnvProviderMaxConcurrency = "PROVIDER_MAX_CONCURRENCY"

	EnvSearchMaxCandidates = "SEARCH_MAX_CANDIDATES"
	EnvSearchMinConnection = "SEARCH_MIN_CONNECTION"

	EnvHoldTTL         = "HOLD_TTL"
	EnvSweepInterval   = "SWEEP_INTERVAL"
	EnvSweepBatchSize  = "SWEEP_BATCH_SIZE"
	EnvInventoryShards = "INVENTORY_SHARDS"

	EnvPaymentFailureRate = "PAYMENT_FAILURE_RATE"

	EnvKafkaEnabled    = "KAFKA_ENABLED"
	EnvKafkaAuditTopic = "KAFKA_AUDIT_TOPIC"
	EnvKafkaAuditGroup = "KAFKA_AUDIT_GROUP"
	EnvKafkaAuditDLQ   = "KAFKA_AUDIT_DLQ"

	EnvRateLimitRequests = "RATE_LIMIT_REQUESTS"
	EnvRateLimitWindow   = "RATE_LIMIT_WINDOW"

	EnvRequestTimeout = "REQUEST_TIMEOUT"
	EnvIdempotencyTTL = "IDEMPOTENCY_TTL"
	EnvMaxRequestSize = "MAX_REQUEST_SIZE"

	EnvReadTimeout     = "READ_TIMEOUT"
	EnvWriteTimeout    = "WRITE_TIMEOUT"
	EnvIdleTimeout     = "IDLE_TIMEOUT"
	EnvShutdownTimeout = "SHUTDOWN_TIMEOUT"

	EnvSimChaos = "SIM_CHAOS"
	EnvSimSeed  = "SIM_SEED"
	EnvSimPort  = "SIM_PORT"
	EnvSimDelay = "SIM_DELAY"
)
