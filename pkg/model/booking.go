package model

import "time"

type BookingStatus string

const (
	StatusProposed  BookingStatus = "PROPOSED"
	StatusConfirmed BookingStatus = "CONFIRMED"
	StatusCancelled BookingStatus = "CANCELLED"
	StatusExpired   BookingStatus = "EXPIRED"
)

var transitions = map[BookingStatus][]BookingStatus{
	StatusProposed:  {StatusConfirmed, StatusCancelled, StatusExpired},
	StatusConfirmed: {StatusCancelled},
}

// CanTransition reports whether from -> to is a legal lifecycle move.
// CANCELLED and EXPIRED are terminal.
func CanTransition(from, to BookingStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (s BookingStatus) Valid() bool {
	switch s {
	case StatusProposed, StatusConfirmed, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

// HoldRef points at a seat hold owned by the inventory manager.
type HoldRef struct {
	HoldID   string       `json:"hold_id" bson:"hold_id"`
	Key      InventoryKey `json:"key" bson:"key"`
	Quantity int          `json:"quantity" bson:"quantity"`
}

type PassengerData struct {
	FullName       string `json:"full_name" bson:"full_name" validate:"required,min=1,max=200"`
	Email          string `json:"email" bson:"email" validate:"required,email"`
	PassportNumber string `json:"passport_number,omitempty" bson:"passport_number,omitempty" validate:"omitempty,alphanum,min=5,max=20"`
}

type Booking struct {
	ID                   string         `json:"id" bson:"_id"`
	UserID               string         `json:"user_id,omitempty" bson:"user_id,omitempty"`
	Status               BookingStatus  `json:"status" bson:"status"`
	Plan                 Plan           `json:"plan" bson:"plan"`
	PlanFingerprint      string         `json:"-" bson:"plan_fingerprint"`
	TotalPriceGBP        float64        `json:"total_price_gbp" bson:"total_price_gbp"`
	Holds                []HoldRef      `json:"-" bson:"holds"`
	PassengerData        *PassengerData `json:"passenger_data,omitempty" bson:"passenger_data,omitempty"`
	PaymentReference     string         `json:"payment_reference,omitempty" bson:"payment_reference,omitempty"`
	RefundAmountGBP      float64        `json:"refund_amount_gbp,omitempty" bson:"refund_amount_gbp,omitempty"`
	ReconciliationNeeded bool           `json:"reconciliation_needed,omitempty" bson:"reconciliation_needed,omitempty"`
	HoldExpiresAt        time.Time      `json:"hold_expires_at" bson:"hold_expires_at"`
	CreatedAt            time.Time      `json:"created_at" bson:"created_at"`
	UpdatedAt            time.Time      `json:"updated_at" bson:"updated_at"`
	ConfirmedAt          *time.Time     `json:"confirmed_at,omitempty" bson:"confirmed_at,omitempty"`
	CancelledAt          *time.Time     `json:"cancelled_at,omitempty" bson:"cancelled_at,omitempty"`
	ExpiredAt            *time.Time     `json:"expired_at,omitempty" bson:"expired_at,omitempty"`
}

// HoldExpired reports whether the seat hold lapsed at now.
func (b *Booking) HoldExpired(now time.Time) bool {
	return now.After(b.HoldExpiresAt)
}

// Clone returns a copy that shares no mutable state with b.
func (b *Booking) Clone() *Booking {
	c := *b
	c.Plan.Legs = append([]Leg(nil), b.Plan.Legs...)
	c.Holds = append([]HoldRef(nil), b.Holds...)
	if b.PassengerData != nil {
		pd := *b.PassengerData
		c.PassengerData = &pd
	}
	c.ConfirmedAt = cloneTime(b.ConfirmedAt)
	c.CancelledAt = cloneTime(b.CancelledAt)
	c.ExpiredAt = cloneTime(b.ExpiredAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

type BookingFilter struct {
	Status BookingStatus
	UserID string
	Limit  int
	Offset int64
}

// Cancellation is returned by DELETE /api/bookings/{id}.
type Cancellation struct {
	Booking         *Booking `json:"booking"`
	RefundAmountGBP float64  `json:"refund_amount_gbp"`
	RefundPolicy    string   `json:"refund_policy"`
}

type BookingDetail struct {
	*Booking
	AuditTrail []*AuditEntry `json:"audit_trail"`
}

// Lease is an advisory lock with a hard expiry, used to elect a single
// instance for periodic work.
type Lease struct {
	ID        string    `json:"id" bson:"_id"`
	Owner     string    `json:"owner" bson:"owner"`
	ExpiresAt time.Time `json:"expires_at" bson:"expires_at"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

// ActiveStatuses are the statuses that still hold or consume seats.
var ActiveStatuses = []BookingStatus{StatusProposed, StatusConfirmed}
