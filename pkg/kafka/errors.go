package kafka

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrProducerClosed = errors.New("kafka producer is closed")
	ErrConsumerClosed = errors.New("kafka consumer is closed")
	ErrInvalidMessage = errors.New("invalid message")
	ErrEmptyKey       = errors.New("message key cannot be empty")
	ErrEmptyValue     = errors.New("message value cannot be empty")
)

type ErrorType int

const (
	ErrorTypeUnknown ErrorType = iota
	// ErrorTypeTransient covers network faults and timeouts; the message is retried.
	ErrorTypeTransient
	// ErrorTypePermanent covers undecodable or invalid payloads; the message is dead-lettered.
	ErrorTypePermanent
)

// KafkaError classifies a handler failure for the consumer retry policy.
type KafkaError struct {
	Type    ErrorType
	Message string
	Err     error
	Details map[string]any
}

func (e *KafkaError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *KafkaError) Unwrap() error {
	return e.Err
}

func (e *KafkaError) IsTransient() bool {
	return e.Type == ErrorTypeTransient
}

func (e *KafkaError) IsPermanent() bool {
	return e.Type == ErrorTypePermanent
}

func (e *KafkaError) WithDetail(key string, value any) *KafkaError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

func NewTransientError(message string, err error) *KafkaError {
	return &KafkaError{Type: ErrorTypeTransient, Message: message, Err: err}
}

func NewPermanentError(message string, err error) *KafkaError {
	return &KafkaError{Type: ErrorTypePermanent, Message: message, Err: err}
}

var transientPatterns = []string{
	"connection refused",
	"timeout",
	"deadline exceeded",
	"no such host",
	"network is unreachable",
	"broken pipe",
	"connection reset",
	"temporary failure",
	"server selection error",
}

// ClassifyError treats anything it cannot recognise as permanent.
func ClassifyError(err error) ErrorType {
	if err == nil {
		return ErrorTypeUnknown
	}

	var kafkaErr *KafkaError
	if errors.As(err, &kafkaErr) {
		return kafkaErr.Type
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTypeTransient
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range transientPatterns {
		if strings.Contains(msg, pattern) {
			return ErrorTypeTransient
		}
	}
	return ErrorTypePermanent
}

func ShouldRetry(err error, currentRetries, maxRetries int) bool {
	if err == nil || currentRetries >= maxRetries {
		return false
	}
	return ClassifyError(err) == ErrorTypeTransient
}
