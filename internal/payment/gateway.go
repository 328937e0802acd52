// Package payment is the collaborator that charges and refunds confirmed bookings.
package payment

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"itinera/pkg/logger"

	"github.com/google/uuid"
)

var (
	ErrDeclined      = errors.New("payment declined")
	ErrUnknownCharge = errors.New("unknown charge")
	ErrOverRefund    = errors.New("refund exceeds captured amount")
	ErrInvalidAmount = errors.New("invalid amount")
)

// Gateway charges are keyed by booking id: charging the same booking twice returns
// the original reference without capturing again.
type Gateway interface {
	Charge(ctx context.Context, bookingID string, amountGBP float64) (string, error)
	Refund(ctx context.Context, reference string, amountGBP float64) error
}

type charge struct {
	reference string
	bookingID string
	amount    float64
	refunded  float64
	at        time.Time
}

type SimulatedGateway struct {
	mu          sync.Mutex
	byBooking   map[string]*charge
	byReference map[string]*charge
	failureRate float64
	decline     func(bookingID string) bool
	rnd         *rand.Rand
	log         *logger.Logger
}

type Option func(*SimulatedGateway)

// WithDecider overrides the random decline decision.
func WithDecider(decline func(bookingID string) bool) Option {
	return func(g *SimulatedGateway) {
		g.decline = decline
	}
}

func NewSimulatedGateway(failureRate float64, log *logger.Logger, opts ...Option) *SimulatedGateway {
	g := &SimulatedGateway{
		byBooking:   make(map[string]*charge),
		byReference: make(map[string]*charge),
		failureRate: failureRate,
		rnd:         rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x9e3779b97f4a7c15)),
		log:         log,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *SimulatedGateway) Charge(ctx context.Context, bookingID string, amountGBP float64) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if amountGBP < 0 || math.IsNaN(amountGBP) {
		return "", ErrInvalidAmount
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if c, ok := g.byBooking[bookingID]; ok {
		return c.reference, nil
	}

	if g.declines(bookingID) {
		g.log.Warn("Payment declined",
			"booking_id", bookingID,
			"amount_gbp", amountGBP,
		)
		return "", ErrDeclined
	}

	c := &charge{
		reference: "PAY-" + uuid.NewString(),
		bookingID: bookingID,
		amount:    amountGBP,
		at:        time.Now().UTC(),
	}
	g.byBooking[bookingID] = c
	g.byReference[c.reference] = c

	g.log.Info("Payment captured",
		"booking_id", bookingID,
		"reference", c.reference,
		"amount_gbp", amountGBP,
	)
	return c.reference, nil
}

func (g *SimulatedGateway) Refund(ctx context.Context, reference string, amountGBP float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if amountGBP < 0 || math.IsNaN(amountGBP) {
		return ErrInvalidAmount
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	c, ok := g.byReference[reference]
	if !ok {
		return ErrUnknownCharge
	}
	if c.refunded+amountGBP > c.amount+0.005 {
		return ErrOverRefund
	}
	c.refunded += amountGBP

	g.log.Info("Payment refunded",
		"booking_id", c.bookingID,
		"reference", reference,
		"amount_gbp", amountGBP,
	)
	return nil
}

// Captured returns how many distinct charges have been taken.
func (g *SimulatedGateway) Captured() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.byBooking)
}

// Refunded returns the total refunded against reference.
func (g *SimulatedGateway) Refunded(reference string) float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	if c, ok := g.byReference[reference]; ok {
		return c.refunded
	}
	return 0
}

func (g *SimulatedGateway) declines(bookingID string) bool {
	if g.decline != nil {
		return g.decline(bookingID)
	}
	return g.failureRate > 0 && g.rnd.Float64() < g.failureRate
}
