package config

import "time"

const (
	StorageMemory = "memory"
	StorageMongo  = "mongo"
)

const (
	DefaultStorageBackend    = StorageMemory
	DefaultMongoURI          = "mongodb://localhost:27017"
	DefaultMongoDatabaseName = "itinera"
	DefaultMongoConnTimeout  = 10 * time.Second

	DefaultPort = "8080"

	DefaultProviderBaseURL        = "http://localhost:8765"
	DefaultProviderCallTimeout    = 2 * time.Second
	DefaultProviderMaxAttempts    = 2
	DefaultProviderBackoffBase    = 100 * time.Millisecond
	DefaultProviderMaxConcurrency = 16

	DefaultSearchMaxCandidates = 50
	DefaultSearchMinConnection = 45 * time.Minute

	DefaultHoldTTL         = 5 * time.Minute
	DefaultSweepInterval   = 15 * time.Second
	DefaultSweepBatchSize  = 100
	DefaultInventoryShards = 32

	DefaultPaymentFailureRate = 0.0

	DefaultKafkaEnabled    = false
	DefaultKafkaAuditTopic = "booking-events"
	DefaultKafkaAuditGroup = "itinera-audit-projector"
	DefaultKafkaAuditDLQ   = "booking-events-dlq"

	DefaultRateLimitRequests = 60
	DefaultRateLimitWindow   = 1 * time.Minute

	DefaultRequestTimeout = 30 * time.Second
	DefaultIdempotencyTTL = 24 * time.Hour
	DefaultMaxRequestSize = 1 * 1024 * 1024 // 1MB

	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 15 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 30 * time.Second

	DefaultSimChaos = false
	DefaultSimSeed  = 1
	DefaultSimPort  = "8765"
	DefaultSimDelay = 5 * time.Second

	DefaultLogLevel = "info"
)
