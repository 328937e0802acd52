package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Message is a broker-agnostic view of one Kafka record.
type Message struct {
	Key       string // partition key, e.g. booking id
	Value     []byte // JSON payload
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
}

const (
	HeaderEventID       = "event-id"
	HeaderEventType     = "event-type"
	HeaderCorrelationID = "correlation-id"
	HeaderSchemaVersion = "schema-version"
	HeaderSource        = "source"
	HeaderTimestamp     = "timestamp"
	HeaderRetryCount    = "retry-count"
	HeaderOriginalTopic = "original-topic"
	HeaderDLQError      = "dlq-error"
	HeaderDLQTimestamp  = "dlq-timestamp"
	HeaderDLQGroup      = "dlq-consumer-group"
)

// MessageBuilder builds a Message fluently. Encoding failures surface from Build.
type MessageBuilder struct {
	msg Message
	err error
}

func NewMessage() *MessageBuilder {
	return &MessageBuilder{
		msg: Message{
			Headers:   make(map[string]string),
			Timestamp: time.Now().UTC(),
		},
	}
}

func (mb *MessageBuilder) WithKey(key string) *MessageBuilder {
	mb.msg.Key = key
	return mb
}

// WithValue JSON-encodes value as the payload.
func (mb *MessageBuilder) WithValue(value any) *MessageBuilder {
	data, err := json.Marshal(value)
	if err != nil {
		mb.err = fmt.Errorf("failed to encode message value: %w", err)
		return mb
	}
	mb.msg.Value = data
	return mb
}

func (mb *MessageBuilder) WithRawValue(value []byte) *MessageBuilder {
	mb.msg.Value = value
	return mb
}

func (mb *MessageBuilder) WithHeader(key, value string) *MessageBuilder {
	mb.msg.Headers[key] = value
	return mb
}

// WithEventID sets the event id, generating one when empty.
func (mb *MessageBuilder) WithEventID(eventID string) *MessageBuilder {
	if eventID == "" {
		eventID = uuid.NewString()
	}
	mb.msg.Headers[HeaderEventID] = eventID
	return mb
}

func (mb *MessageBuilder) WithEventType(eventType string) *MessageBuilder {
	mb.msg.Headers[HeaderEventType] = eventType
	return mb
}

func (mb *MessageBuilder) WithCorrelationID(correlationID string) *MessageBuilder {
	if correlationID != "" {
		mb.msg.Headers[HeaderCorrelationID] = correlationID
	}
	return mb
}

func (mb *MessageBuilder) WithSchemaVersion(version string) *MessageBuilder {
	mb.msg.Headers[HeaderSchemaVersion] = version
	return mb
}

func (mb *MessageBuilder) WithSource(source string) *MessageBuilder {
	mb.msg.Headers[HeaderSource] = source
	return mb
}

func (mb *MessageBuilder) WithTimestamp(at time.Time) *MessageBuilder {
	mb.msg.Timestamp = at.UTC()
	return mb
}

func (mb *MessageBuilder) Build() (Message, error) {
	if mb.err != nil {
		return Message{}, mb.err
	}
	if mb.msg.Headers[HeaderEventID] == "" {
		mb.msg.Headers[HeaderEventID] = uuid.NewString()
	}
	if mb.msg.Headers[HeaderTimestamp] == "" {
		mb.msg.Headers[HeaderTimestamp] = mb.msg.Timestamp.Format(time.RFC3339Nano)
	}
	return mb.msg, nil
}

// MessageHandler processes one message. Return a permanent error to skip retries.
type MessageHandler func(ctx context.Context, msg Message) error

func (m *Message) DecodeValue(v any) error {
	return json.Unmarshal(m.Value, v)
}

func (m *Message) GetHeader(key string) (string, bool) {
	value, exists := m.Headers[key]
	return value, exists
}

func (m *Message) GetEventID() string {
	return m.Headers[HeaderEventID]
}

func (m *Message) GetCorrelationID() string {
	return m.Headers[HeaderCorrelationID]
}

func (m *Message) GetEventType() string {
	return m.Headers[HeaderEventType]
}

func (m *Message) GetRetryCount() int {
	count, err := strconv.Atoi(m.Headers[HeaderRetryCount])
	if err != nil || count < 0 {
		return 0
	}
	return count
}

func (m *Message) IncrementRetryCount() {
	if m.Headers == nil {
		m.Headers = make(map[string]string)
	}
	m.Headers[HeaderRetryCount] = strconv.Itoa(m.GetRetryCount() + 1)
}
