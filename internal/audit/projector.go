package audit

import (
	"context"
	"errors"

	"itinera/pkg/kafka"
	"itinera/pkg/logger"
	"itinera/pkg/model"
)

var errIncompleteEntry = errors.New("audit entry missing id, booking id or action")

// Projector consumes booking events and writes them to the audit repository.
type Projector struct {
	repo Repository
	log  *logger.Logger
}

func NewProjector(repo Repository, log *logger.Logger) *Projector {
	return &Projector{repo: repo, log: log}
}

// Handle is a kafka.MessageHandler. Undecodable events fail permanently and are
// dead-lettered; storage failures are retried.
func (p *Projector) Handle(ctx context.Context, msg kafka.Message) error {
	var entry model.AuditEntry
	if err := msg.DecodeValue(&entry); err != nil {
		return kafka.NewPermanentError("deserialization failed", err).
			WithDetail("event_id", msg.GetEventID())
	}
	if entry.ID == "" {
		entry.ID = msg.GetEventID()
	}
	if entry.ID == "" || entry.BookingID == "" || entry.Action == "" {
		return kafka.NewPermanentError("invalid audit event", errIncompleteEntry).
			WithDetail("event_id", msg.GetEventID())
	}

	if err := p.repo.Insert(ctx, &entry); err != nil {
		return kafka.NewTransientError("failed to store audit entry", err)
	}

	p.log.Debug("Audit entry projected",
		"booking_id", entry.BookingID,
		"action", entry.Action,
		"offset", msg.Offset,
	)
	return nil
}
