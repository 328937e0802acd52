package kafka

import (
	"context"
	"fmt"
	"sync"
	"time"

	kafka_config "itinera/pkg/kafka/config"
	"itinera/pkg/logger"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/compress"
)

// messageWriter is the subset of *kafka.Writer the producer and consumer use.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer wraps a kafka-go writer with middleware and dead-lettering.
type Producer struct {
	writer     messageWriter
	dlqWriter  messageWriter
	topic      string
	dlqTopic   string
	middleware []ProducerMiddleware
	log        *logger.Logger
	closed     bool
	mu         sync.RWMutex
}

type ProducerMiddleware func(ctx context.Context, msg Message, next func(ctx context.Context, msg Message) error) error

func NewProducer(cfg *kafka_config.Config, topic string, dlqTopic string, log *logger.Logger) (*Producer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}

	if topic == "" {
		return nil, fmt.Errorf("topic cannot be empty")
	}

	compression := compressionCodec(cfg.ProducerCompression)

	var requiredAcks kafka.RequiredAcks
	switch cfg.ProducerRequireAcks {
	case 0:
		requiredAcks = kafka.RequireNone
	case 1:
		requiredAcks = kafka.RequireOne
	default:
		requiredAcks = kafka.RequireAll
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: requiredAcks,
		Compression:  compression,
		MaxAttempts:  cfg.ProducerMaxAttempts,
		BatchTimeout: cfg.ProducerBatchTimeout,
		Async:        cfg.ProducerAsync,
		Transport:    &kafka.Transport{ClientID: cfg.ClientID},
		Logger:       kafka.LoggerFunc(func(string, ...any) {}),
		ErrorLogger:  errorLogger(log, "producer", topic),
	}

	producer := &Producer{
		writer:     writer,
		topic:      topic,
		dlqTopic:   dlqTopic,
		middleware: make([]ProducerMiddleware, 0),
		log:        log,
	}

	if dlqTopic != "" {
		producer.dlqWriter = newDLQWriter(cfg, dlqTopic, log)
	}

	return producer, nil
}

func (p *Producer) Use(middleware ProducerMiddleware) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.middleware = append(p.middleware, middleware)
}

func (p *Producer) Topic() string {
	return p.topic
}

// Publish writes msg to the producer topic. A write that fails after the writer's own
// retries is copied to the dead letter topic when one is configured.
func (p *Producer) Publish(ctx context.Context, msg Message) error {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return ErrProducerClosed
	}
	chain := p.middleware
	p.mu.RUnlock()

	if msg.Key == "" {
		return ErrEmptyKey
	}
	if len(msg.Value) == 0 {
		return ErrEmptyValue
	}
	if msg.Topic == "" {
		msg.Topic = p.topic
	}

	handler := p.publishInternal
	for i := len(chain) - 1; i >= 0; i-- {
		middleware := chain[i]
		next := handler
		handler = func(ctx context.Context, m Message) error {
			return middleware(ctx, m, next)
		}
	}

	return handler(ctx, msg)
}

func (p *Producer) publishInternal(ctx context.Context, msg Message) error {
	err := p.writer.WriteMessages(ctx, toKafkaMessage(msg, msg.Timestamp))
	if err == nil {
		return nil
	}

	if p.dlqWriter != nil {
		if dlqErr := writeDLQ(ctx, p.dlqWriter, msg, p.topic, "", err); dlqErr != nil {
			return fmt.Errorf("failed to send to DLQ: %v (original error: %w)", dlqErr, err)
		}
		p.log.Warn("Message sent to dead letter topic",
			"topic", p.topic,
			"dlq_topic", p.dlqTopic,
			"key", msg.Key,
			"event_id", msg.GetEventID(),
			"error", err,
		)
	}
	return err
}

// PublishBatch writes messages in one request. Messages without a key or value are skipped.
func (p *Producer) PublishBatch(ctx context.Context, messages []Message) error {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return ErrProducerClosed
	}
	p.mu.RUnlock()

	kafkaMessages := make([]kafka.Message, 0, len(messages))
	for _, msg := range messages {
		if msg.Key == "" || len(msg.Value) == 0 {
			continue
		}
		kafkaMessages = append(kafkaMessages, toKafkaMessage(msg, msg.Timestamp))
	}

	if len(kafkaMessages) == 0 {
		return ErrInvalidMessage
	}

	return p.writer.WriteMessages(ctx, kafkaMessages...)
}

func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	var err error
	if p.writer != nil {
		err = p.writer.Close()
	}

	if p.dlqWriter != nil {
		if dlqErr := p.dlqWriter.Close(); err == nil {
			err = dlqErr
		}
	}

	return err
}

// Stats returns writer statistics, or zero stats when the writer is not a kafka-go writer.
func (p *Producer) Stats() kafka.WriterStats {
	if w, ok := p.writer.(*kafka.Writer); ok {
		return w.Stats()
	}
	return kafka.WriterStats{}
}

func newDLQWriter(cfg *kafka_config.Config, topic string, log *logger.Logger) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Compression:  compressionCodec(cfg.ProducerCompression),
		MaxAttempts:  3,
		Transport:    &kafka.Transport{ClientID: cfg.ClientID},
		Logger:       kafka.LoggerFunc(func(string, ...any) {}),
		ErrorLogger:  errorLogger(log, "dlq", topic),
	}
}

func compressionCodec(name string) compress.Compression {
	switch name {
	case "none":
		return compress.None
	case "gzip":
		return compress.Gzip
	case "lz4":
		return compress.Lz4
	case "zstd":
		return compress.Zstd
	default:
		return compress.Snappy
	}
}

func errorLogger(log *logger.Logger, role, topic string) kafka.Logger {
	return kafka.LoggerFunc(func(msg string, args ...any) {
		log.Error("Kafka client error", "role", role, "topic", topic, "detail", fmt.Sprintf(msg, args...))
	})
}

func toKafkaMessage(msg Message, at time.Time) kafka.Message {
	km := kafka.Message{
		Key:   []byte(msg.Key),
		Value: msg.Value,
		Time:  at,
	}
	for k, v := range msg.Headers {
		km.Headers = append(km.Headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	return km
}

func writeDLQ(ctx context.Context, w messageWriter, msg Message, topic, group string, cause error) error {
	headers := make(map[string]string, len(msg.Headers)+4)
	for k, v := range msg.Headers {
		headers[k] = v
	}
	headers[HeaderOriginalTopic] = topic
	headers[HeaderDLQError] = cause.Error()
	headers[HeaderDLQTimestamp] = time.Now().UTC().Format(time.RFC3339)
	if group != "" {
		headers[HeaderDLQGroup] = group
	}
	msg.Headers = headers

	return w.WriteMessages(ctx, toKafkaMessage(msg, time.Now()))
}
