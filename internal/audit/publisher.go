package audit

import (
	"context"
	"fmt"

	"itinera/pkg/kafka"
	"itinera/pkg/model"
)

const (
	source        = "itinera-api"
	schemaVersion = "1"
)

// DirectPublisher writes audit entries straight to the repository.
type DirectPublisher struct {
	repo Repository
}

func NewDirectPublisher(repo Repository) *DirectPublisher {
	return &DirectPublisher{repo: repo}
}

func (p *DirectPublisher) Publish(ctx context.Context, entry *model.AuditEntry) error {
	return p.repo.Insert(ctx, entry)
}

// MessagePublisher is satisfied by *kafka.Producer.
type MessagePublisher interface {
	Publish(ctx context.Context, msg kafka.Message) error
}

// KafkaPublisher emits audit entries as booking events keyed by booking id, so every
// event of one booking lands on the same partition in order. The Projector writes them
// to the trail.
type KafkaPublisher struct {
	producer MessagePublisher
}

func NewKafkaPublisher(producer MessagePublisher) *KafkaPublisher {
	return &KafkaPublisher{producer: producer}
}

func (p *KafkaPublisher) Publish(ctx context.Context, entry *model.AuditEntry) error {
	msg, err := kafka.NewMessage().
		WithKey(entry.BookingID).
		WithValue(entry).
		WithEventID(entry.ID).
		WithEventType(entry.Action).
		WithSchemaVersion(schemaVersion).
		WithSource(source).
		WithTimestamp(entry.Timestamp).
		Build()
	if err != nil {
		return fmt.Errorf("failed to build audit event: %w", err)
	}
	return p.producer.Publish(ctx, msg)
}
