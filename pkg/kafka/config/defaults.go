package kafka_config

import "time"

const (
	DefaultKafkaBrokers  = "localhost:9092"
	DefaultKafkaClientID = "itinera"

	DefaultProducerMaxAttempts  = 3
	DefaultProducerBatchTimeout = 10 * time.Millisecond
	DefaultProducerRequireAcks  = -1
	DefaultProducerCompression  = "snappy"
	DefaultProducerAsync        = false

	DefaultConsumerStartOffset       = -2 // oldest, so a new projector replays the trail
	DefaultConsumerMinBytes          = 1
	DefaultConsumerMaxBytes          = 10 * 1024 * 1024
	DefaultConsumerMaxWait           = 500 * time.Millisecond
	DefaultConsumerCommitInterval    = time.Second
	DefaultConsumerHeartbeatInterval = 3 * time.Second
	DefaultConsumerSessionTimeout    = 10 * time.Second
	DefaultConsumerRebalanceTimeout  = 60 * time.Second
	DefaultConsumerMaxRetries        = 3
	DefaultConsumerRetryBackoff      = 200 * time.Millisecond
)
