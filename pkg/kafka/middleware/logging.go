package kafka_middleware

import (
	"context"
	"time"

	"itinera/pkg/kafka"
	"itinera/pkg/logger"
)

func LoggingProducerMiddleware(log *logger.Logger) kafka.ProducerMiddleware {
	return func(ctx context.Context, msg kafka.Message, next func(ctx context.Context, msg kafka.Message) error) error {
		start := time.Now()
		err := next(ctx, msg)

		attrs := []any{
			"topic", msg.Topic,
			"key", msg.Key,
			"event_id", msg.GetEventID(),
			"event_type", msg.GetEventType(),
			"duration_ms", time.Since(start).Milliseconds(),
		}
		if err != nil {
			log.Error("Failed to publish message", append(attrs, "error", err)...)
			return err
		}
		log.Debug("Message published", attrs...)
		return nil
	}
}

func LoggingConsumerMiddleware(log *logger.Logger) kafka.ConsumerMiddleware {
	return func(ctx context.Context, msg kafka.Message, next kafka.MessageHandler) error {
		start := time.Now()
		err := next(ctx, msg)

		attrs := []any{
			"topic", msg.Topic,
			"partition", msg.Partition,
			"offset", msg.Offset,
			"key", msg.Key,
			"event_id", msg.GetEventID(),
			"duration_ms", time.Since(start).Milliseconds(),
		}
		if err != nil {
			log.Warn("Message handler failed", append(attrs, "error", err)...)
			return err
		}
		log.Debug("Message processed", attrs...)
		return nil
	}
}
