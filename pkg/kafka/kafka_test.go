package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"

	"itinera/pkg/logger"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	mu       sync.Mutex
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func header(m kafka.Message, key string) string {
	for _, h := range m.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestMessageBuilder(t *testing.T) {
	msg, err := NewMessage().
		WithKey("booking-1").
		WithValue(map[string]string{"action": "CREATED"}).
		WithEventType("CREATED").
		WithSource("itinera-api").
		Build()

	require.NoError(t, err)
	assert.Equal(t, "booking-1", msg.Key)
	assert.JSONEq(t, `{"action":"CREATED"}`, string(msg.Value))
	assert.NotEmpty(t, msg.GetEventID())
	assert.Equal(t, "CREATED", msg.GetEventType())
	assert.NotEmpty(t, msg.Headers[HeaderTimestamp])

	_, err = NewMessage().WithKey("k").WithValue(func() {}).Build()
	assert.Error(t, err)
}

func TestRetryCount(t *testing.T) {
	msg := Message{Headers: map[string]string{}}
	assert.Equal(t, 0, msg.GetRetryCount())

	for i := 0; i < 12; i++ {
		msg.IncrementRetryCount()
	}
	assert.Equal(t, 12, msg.GetRetryCount())

	msg.Headers[HeaderRetryCount] = "garbage"
	assert.Equal(t, 0, msg.GetRetryCount())
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorType
	}{
		{name: "nil", err: nil, want: ErrorTypeUnknown},
		{name: "explicit transient", err: NewTransientError("store down", errors.New("x")), want: ErrorTypeTransient},
		{name: "explicit permanent", err: NewPermanentError("bad payload", nil), want: ErrorTypePermanent},
		{name: "deadline", err: context.DeadlineExceeded, want: ErrorTypeTransient},
		{name: "network text", err: errors.New("dial tcp: Connection Refused"), want: ErrorTypeTransient},
		{name: "unknown", err: errors.New("something odd"), want: ErrorTypePermanent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyError(tt.err))
		})
	}
}

func TestProducer_Publish(t *testing.T) {
	t.Run("writes through middleware", func(t *testing.T) {
		w := &fakeWriter{}
		p := &Producer{writer: w, topic: "booking-events", log: logger.Discard()}
		var seen []string
		p.Use(func(ctx context.Context, msg Message, next func(context.Context, Message) error) error {
			seen = append(seen, msg.Topic)
			return next(ctx, msg)
		})

		msg, err := NewMessage().WithKey("b1").WithRawValue([]byte(`{}`)).WithEventType("CREATED").Build()
		require.NoError(t, err)
		require.NoError(t, p.Publish(context.Background(), msg))

		require.Len(t, w.messages, 1)
		assert.Equal(t, "b1", string(w.messages[0].Key))
		assert.Equal(t, "CREATED", header(w.messages[0], HeaderEventType))
		assert.Equal(t, []string{"booking-events"}, seen)
	})

	t.Run("rejects empty key and value", func(t *testing.T) {
		p := &Producer{writer: &fakeWriter{}, topic: "t", log: logger.Discard()}

		assert.ErrorIs(t, p.Publish(context.Background(), Message{Value: []byte("x")}), ErrEmptyKey)
		assert.ErrorIs(t, p.Publish(context.Background(), Message{Key: "k"}), ErrEmptyValue)
	})

	t.Run("failed write is dead-lettered", func(t *testing.T) {
		dlq := &fakeWriter{}
		p := &Producer{
			writer:    &fakeWriter{err: errors.New("broker unavailable")},
			dlqWriter: dlq,
			topic:     "booking-events",
			dlqTopic:  "booking-events.dlq",
			log:       logger.Discard(),
		}

		err := p.Publish(context.Background(), Message{Key: "b1", Value: []byte(`{}`), Headers: map[string]string{}})

		assert.Error(t, err)
		require.Len(t, dlq.messages, 1)
		assert.Equal(t, "booking-events", header(dlq.messages[0], HeaderOriginalTopic))
		assert.Equal(t, "broker unavailable", header(dlq.messages[0], HeaderDLQError))
	})

	t.Run("closed producer", func(t *testing.T) {
		w := &fakeWriter{}
		p := &Producer{writer: w, topic: "t", log: logger.Discard()}
		require.NoError(t, p.Close())
		require.NoError(t, p.Close())

		assert.True(t, w.closed)
		assert.ErrorIs(t, p.Publish(context.Background(), Message{Key: "k", Value: []byte("v")}), ErrProducerClosed)
	})
}

func TestConsumer_ProcessMessage(t *testing.T) {
	newConsumer := func(handler MessageHandler, dlq *fakeWriter) *Consumer {
		c := &Consumer{
			topic:      "booking-events",
			groupID:    "audit-projector",
			maxRetries: 2,
			handler:    handler,
			log:        logger.Discard(),
		}
		if dlq != nil {
			c.dlqWriter = dlq
		}
		return c
	}

	t.Run("transient errors are retried", func(t *testing.T) {
		calls := 0
		c := newConsumer(func(ctx context.Context, msg Message) error {
			calls++
			if calls < 3 {
				return NewTransientError("store busy", nil)
			}
			return nil
		}, nil)

		err := c.processMessage(context.Background(), Message{Key: "b1", Headers: map[string]string{}})

		assert.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("permanent errors go straight to the DLQ", func(t *testing.T) {
		calls := 0
		dlq := &fakeWriter{}
		c := newConsumer(func(ctx context.Context, msg Message) error {
			calls++
			return NewPermanentError("undecodable", nil)
		}, dlq)

		err := c.processMessage(context.Background(), Message{Key: "b1", Value: []byte("{"), Headers: map[string]string{}})

		assert.Error(t, err)
		assert.Equal(t, 1, calls)
		require.Len(t, dlq.messages, 1)
		assert.Equal(t, "audit-projector", header(dlq.messages[0], HeaderDLQGroup))
	})

	t.Run("retries are bounded", func(t *testing.T) {
		calls := 0
		dlq := &fakeWriter{}
		c := newConsumer(func(ctx context.Context, msg Message) error {
			calls++
			return NewTransientError("store down", nil)
		}, dlq)

		err := c.processMessage(context.Background(), Message{Key: "b1", Headers: map[string]string{}})

		assert.Error(t, err)
		assert.Equal(t, 3, calls)
		require.Len(t, dlq.messages, 1)
		assert.Equal(t, "2", header(dlq.messages[0], HeaderRetryCount))
	})
}

func TestConvertMessage(t *testing.T) {
	msg := convertMessage(kafka.Message{
		Topic:     "booking-events",
		Partition: 2,
		Offset:    41,
		Key:       []byte("b1"),
		Value:     []byte(`{}`),
		Headers:   []kafka.Header{{Key: HeaderEventID, Value: []byte("e1")}},
	})

	assert.Equal(t, "b1", msg.Key)
	assert.Equal(t, 2, msg.Partition)
	assert.Equal(t, int64(41), msg.Offset)
	assert.Equal(t, "e1", msg.GetEventID())
}
