package model

import "time"

const (
	AuditCreated          = "CREATED"
	AuditConfirmed        = "CONFIRMED"
	AuditPaymentSucceeded = "PAYMENT_SUCCEEDED"
	AuditPaymentFailed    = "PAYMENT_FAILED"
	AuditCancelled        = "CANCELLED"
	AuditExpired          = "EXPIRED"
	AuditReconciliation   = "RECONCILIATION_NEEDED"
)

// AuditEntry records one lifecycle transition or side effect.
type AuditEntry struct {
	ID         string         `json:"id" bson:"_id"`
	BookingID  string         `json:"booking_id" bson:"booking_id"`
	EntityType string         `json:"entity_type" bson:"entity_type"`
	Action     string         `json:"action" bson:"action"`
	Before     map[string]any `json:"before_state,omitempty" bson:"before_state,omitempty"`
	After      map[string]any `json:"after_state,omitempty" bson:"after_state,omitempty"`
	Extra      map[string]any `json:"extra_data,omitempty" bson:"extra_data,omitempty"`
	Timestamp  time.Time      `json:"timestamp" bson:"timestamp"`
}
