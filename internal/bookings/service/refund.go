package service

import (
	"time"

	"itinera/pkg/model"
)

const (
	RefundPolicyNoCharge = "no_charge"
	RefundPolicyFull     = "full"
	RefundPolicyPartial  = "partial_50"
	RefundPolicyNone     = "none"

	fullRefundNotice = 24 * time.Hour
)

// RefundFor returns the amount refunded when b is cancelled at now. Only captured
// payments are refunded; the window is measured against the first departure.
func RefundFor(b *model.Booking, now time.Time) (float64, string) {
	if b.Status != model.StatusConfirmed || b.PaymentReference == "" {
		return 0, RefundPolicyNoCharge
	}

	untilDeparture := b.Plan.DepartAt().Sub(now)
	switch {
	case untilDeparture >= fullRefundNotice:
		return b.TotalPriceGBP, RefundPolicyFull
	case untilDeparture > 0:
		return roundMoney(b.TotalPriceGBP / 2), RefundPolicyPartial
	default:
		return 0, RefundPolicyNone
	}
}
