// Package events builds the audit records emitted at each booking lifecycle step.
package events

import (
	"context"
	"time"

	"itinera/pkg/logger"
	"itinera/pkg/model"

	"github.com/google/uuid"
)

const EntityBooking = "booking"

// Publisher delivers audit entries to the audit trail, directly or through a broker.
type Publisher interface {
	Publish(ctx context.Context, entry *model.AuditEntry) error
}

// Recorder publishes lifecycle entries and logs delivery failures instead of
// failing the operation that produced them.
type Recorder struct {
	publisher Publisher
	log       *logger.Logger
}

func NewRecorder(publisher Publisher, log *logger.Logger) *Recorder {
	return &Recorder{publisher: publisher, log: log}
}

func (r *Recorder) Record(ctx context.Context, entry *model.AuditEntry) {
	if err := r.publisher.Publish(ctx, entry); err != nil {
		r.log.Error("Failed to publish audit entry",
			"booking_id", entry.BookingID,
			"action", entry.Action,
			"error", err,
		)
	}
}

func Created(b *model.Booking, at time.Time) *model.AuditEntry {
	return newEntry(b.ID, model.AuditCreated, nil, Snapshot(b), map[string]any{
		"legs":          len(b.Plan.Legs),
		"passengers":    b.Plan.Passengers,
		"plan_id":       b.Plan.ID,
		"hold_deadline": b.HoldExpiresAt,
	}, at)
}

func Transitioned(action string, before, after *model.Booking, extra map[string]any, at time.Time) *model.AuditEntry {
	return newEntry(after.ID, action, Snapshot(before), Snapshot(after), extra, at)
}

func PaymentSucceeded(b *model.Booking, at time.Time) *model.AuditEntry {
	return newEntry(b.ID, model.AuditPaymentSucceeded, nil, nil, map[string]any{
		"payment_reference": b.PaymentReference,
		"amount_gbp":        b.TotalPriceGBP,
	}, at)
}

func PaymentFailed(b *model.Booking, reason string, at time.Time) *model.AuditEntry {
	return newEntry(b.ID, model.AuditPaymentFailed, nil, nil, map[string]any{
		"amount_gbp": b.TotalPriceGBP,
		"reason":     reason,
	}, at)
}

func ReconciliationNeeded(b *model.Booking, reason string, at time.Time) *model.AuditEntry {
	return newEntry(b.ID, model.AuditReconciliation, nil, Snapshot(b), map[string]any{
		"reason": reason,
	}, at)
}

// Snapshot is the audited view of a booking. Passenger data is never included.
func Snapshot(b *model.Booking) map[string]any {
	if b == nil {
		return nil
	}
	s := map[string]any{
		"status":          string(b.Status),
		"total_price_gbp": b.TotalPriceGBP,
		"hold_expires_at": b.HoldExpiresAt,
	}
	if b.PaymentReference != "" {
		s["payment_reference"] = b.PaymentReference
	}
	if b.RefundAmountGBP > 0 {
		s["refund_amount_gbp"] = b.RefundAmountGBP
	}
	if b.ReconciliationNeeded {
		s["reconciliation_needed"] = true
	}
	return s
}

func newEntry(bookingID, action string, before, after, extra map[string]any, at time.Time) *model.AuditEntry {
	return &model.AuditEntry{
		ID:         uuid.NewString(),
		BookingID:  bookingID,
		EntityType: EntityBooking,
		Action:     action,
		Before:     before,
		After:      after,
		Extra:      extra,
		Timestamp:  at.UTC(),
	}
}
