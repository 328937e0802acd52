package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	kafka_config "itinera/pkg/kafka/config"
	"itinera/pkg/logger"

	"github.com/segmentio/kafka-go"
)

// messageReader is the subset of *kafka.Reader the consumer uses.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	reader       messageReader
	dlqWriter    messageWriter
	topic        string
	groupID      string
	dlqTopic     string
	maxRetries   int
	retryBackoff time.Duration
	handler      MessageHandler
	middleware   []ConsumerMiddleware
	log          *logger.Logger
	closed       bool
	mu           sync.RWMutex
	wg           sync.WaitGroup
}

type ConsumerMiddleware func(ctx context.Context, msg Message, next MessageHandler) error

func NewConsumer(cfg *kafka_config.Config, topic string, groupID string, dlqTopic string, handler MessageHandler, log *logger.Logger) (*Consumer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}

	if topic == "" {
		return nil, fmt.Errorf("topic cannot be empty")
	}

	if groupID == "" {
		return nil, fmt.Errorf("group ID cannot be empty")
	}

	if handler == nil {
		return nil, fmt.Errorf("message handler cannot be nil")
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:           cfg.Brokers,
		Topic:             topic,
		GroupID:           groupID,
		MinBytes:          cfg.ConsumerMinBytes,
		MaxBytes:          cfg.ConsumerMaxBytes,
		MaxWait:           cfg.ConsumerMaxWait,
		CommitInterval:    cfg.ConsumerCommitInterval,
		HeartbeatInterval: cfg.ConsumerHeartbeatInterval,
		SessionTimeout:    cfg.ConsumerSessionTimeout,
		RebalanceTimeout:  cfg.ConsumerRebalanceTimeout,
		StartOffset:       cfg.ConsumerStartOffset,
		Logger:            kafka.LoggerFunc(func(string, ...any) {}),
		ErrorLogger:       errorLogger(log, "consumer", topic),
	})

	consumer := &Consumer{
		reader:       reader,
		topic:        topic,
		groupID:      groupID,
		dlqTopic:     dlqTopic,
		maxRetries:   cfg.ConsumerMaxRetries,
		retryBackoff: cfg.ConsumerRetryBackoff,
		handler:      handler,
		middleware:   make([]ConsumerMiddleware, 0),
		log:          log,
	}

	if dlqTopic != "" {
		consumer.dlqWriter = newDLQWriter(cfg, dlqTopic, log)
	}

	return consumer, nil
}

func (c *Consumer) Use(middleware ConsumerMiddleware) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.middleware = append(c.middleware, middleware)
}

// Start consumes until ctx ends. Offsets are committed once a message is handled or
// dead-lettered, so a poison message never blocks the partition.
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return ErrConsumerClosed
	}
	c.mu.RUnlock()

	c.wg.Add(1)
	defer c.wg.Done()

	c.log.Info("Kafka consumer started", "topic", c.topic, "group", c.groupID)

	for {
		kafkaMsg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return ctx.Err()
			}
			c.log.Error("Failed to fetch message", "topic", c.topic, "error", err)
			if !sleep(ctx, time.Second) {
				return ctx.Err()
			}
			continue
		}

		msg := convertMessage(kafkaMsg)
		if err := c.processMessage(ctx, msg); err != nil {
			c.log.Error("Failed to process message",
				"topic", c.topic,
				"partition", msg.Partition,
				"offset", msg.Offset,
				"event_id", msg.GetEventID(),
				"error", err,
			)
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}

		if err := c.reader.CommitMessages(ctx, kafkaMsg); err != nil && ctx.Err() == nil {
			c.log.Error("Failed to commit offset", "topic", c.topic, "offset", kafkaMsg.Offset, "error", err)
		}
	}
}

// processMessage runs the handler chain, retrying transient failures with linear backoff
// and dead-lettering the rest.
func (c *Consumer) processMessage(ctx context.Context, msg Message) error {
	c.mu.RLock()
	handler := c.handler
	for i := len(c.middleware) - 1; i >= 0; i-- {
		middleware := c.middleware[i]
		next := handler
		handler = func(ctx context.Context, m Message) error {
			return middleware(ctx, m, next)
		}
	}
	c.mu.RUnlock()

	for {
		err := handler(ctx, msg)
		if err == nil {
			return nil
		}

		retries := msg.GetRetryCount()
		if ShouldRetry(err, retries, c.maxRetries) {
			msg.IncrementRetryCount()
			c.log.Warn("Retrying message",
				"topic", c.topic,
				"attempt", retries+1,
				"max_retries", c.maxRetries,
				"error", err,
			)
			if !sleep(ctx, c.retryBackoff*time.Duration(retries+1)) {
				return ctx.Err()
			}
			continue
		}

		if c.dlqWriter != nil {
			if dlqErr := writeDLQ(ctx, c.dlqWriter, msg, c.topic, c.groupID, err); dlqErr != nil {
				c.log.Error("Failed to send message to DLQ", "dlq_topic", c.dlqTopic, "error", dlqErr, "cause", err)
			} else {
				c.log.Warn("Message sent to DLQ", "dlq_topic", c.dlqTopic, "retries", retries, "cause", err)
			}
		}
		return err
	}
}

func convertMessage(kafkaMsg kafka.Message) Message {
	msg := Message{
		Key:       string(kafkaMsg.Key),
		Value:     kafkaMsg.Value,
		Headers:   make(map[string]string, len(kafkaMsg.Headers)),
		Topic:     kafkaMsg.Topic,
		Partition: kafkaMsg.Partition,
		Offset:    kafkaMsg.Offset,
		Timestamp: kafkaMsg.Time,
	}
	for _, header := range kafkaMsg.Headers {
		msg.Headers[header.Key] = string(header.Value)
	}
	return msg
}

// Close waits for an in-flight Start to return, so cancel its context first.
func (c *Consumer) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.wg.Wait()

	var err error
	if c.reader != nil {
		err = c.reader.Close()
	}

	if c.dlqWriter != nil {
		if dlqErr := c.dlqWriter.Close(); err == nil {
			err = dlqErr
		}
	}

	return err
}

// Lag reports the reader lag, zero when the reader is not a kafka-go reader.
func (c *Consumer) Lag() int64 {
	if r, ok := c.reader.(*kafka.Reader); ok {
		return r.Stats().Lag
	}
	return 0
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
