package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	bookingserrors "itinera/internal/bookings/errors"
	"itinera/internal/bookings/events"
	"itinera/internal/bookings/repository"
	"itinera/internal/bookings/validator"
	"itinera/internal/inventory"
	"itinera/internal/payment"
	"itinera/internal/search/scoring"
	"itinera/pkg/config"
	apperrors "itinera/pkg/errors"
	"itinera/pkg/keylock"
	"itinera/pkg/model"
	"itinera/pkg/sanitizer"

	"github.com/google/uuid"
)

// slotLeaseTTL bounds how long a crashed create can block retries of the same itinerary.
const slotLeaseTTL = 10 * time.Second

type CreateBookingRequest struct {
	Plan   model.Plan `json:"plan"`
	UserID string     `json:"user_id,omitempty"`
}

type ConfirmBookingRequest struct {
	PassengerData *model.PassengerData `json:"passenger_data"`
}

// AuditReader exposes the trail written for a booking.
type AuditReader interface {
	FindByBooking(ctx context.Context, bookingID string) ([]*model.AuditEntry, error)
}

type BookingService interface {
	Create(ctx context.Context, req *CreateBookingRequest) (*model.Booking, error)
	Confirm(ctx context.Context, id string, req *ConfirmBookingRequest) (*model.Booking, error)
	Cancel(ctx context.Context, id string) (*model.Cancellation, error)
	GetByID(ctx context.Context, id string) (*model.BookingDetail, error)
	List(ctx context.Context, filter model.BookingFilter) ([]*model.Booking, int64, error)
	SweepExpired(ctx context.Context) (int, error)
	RestoreInventory(ctx context.Context) (int, error)
}

type bookingService struct {
	repo      repository.BookingRepository
	leases    repository.LeaseRepository
	inventory inventory.Manager
	capacity  inventory.CapacitySource
	pricing   PriceSource
	payments  payment.Gateway
	recorder  *events.Recorder
	trail     AuditReader
	validator *validator.BookingValidator
	locks     *keylock.KeyLock
	cfg       *config.Config
	now       func() time.Time
	instance  string
}

type Option func(*bookingService)

func WithClock(now func() time.Time) Option {
	return func(s *bookingService) {
		s.now = now
	}
}

func NewBookingService(
	repo repository.BookingRepository,
	leases repository.LeaseRepository,
	inv inventory.Manager,
	capacity inventory.CapacitySource,
	pricing PriceSource,
	payments payment.Gateway,
	publisher events.Publisher,
	trail AuditReader,
	validator *validator.BookingValidator,
	cfg *config.Config,
	opts ...Option,
) BookingService {
	s := &bookingService{
		repo:      repo,
		leases:    leases,
		inventory: inv,
		capacity:  capacity,
		pricing:   pricing,
		payments:  payments,
		recorder:  events.NewRecorder(publisher, cfg.Log),
		trail:     trail,
		validator: validator,
		locks:     keylock.New(cfg.InventoryShards),
		cfg:       cfg,
		now:       time.Now,
		instance:  uuid.NewString(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *bookingService) Create(ctx context.Context, req *CreateBookingRequest) (*model.Booking, error) {
	plan := req.Plan
	plan.Legs = append([]model.Leg(nil), req.Plan.Legs...)
	s.normalizePlan(&plan)

	if err := s.validator.ValidatePlan(&plan); err != nil {
		s.cfg.Log.Warn("Booking plan validation failed", "plan_id", plan.ID, "error", err)
		return nil, validationError("Booking plan validation failed", err)
	}

	userID := sanitizer.NormalizeUserID(req.UserID)
	fingerprint := plan.Fingerprint()

	if userID != "" {
		release, err := s.acquireSlotLease(ctx, userID, fingerprint)
		if err != nil {
			return nil, err
		}
		defer release()

		existing, err := s.repo.FindActiveByFingerprint(ctx, userID, fingerprint)
		if err != nil {
			return nil, apperrors.Internal("Failed to check existing bookings", err)
		}
		if len(existing) > 0 {
			return nil, apperrors.Conflict("An active booking already exists for this itinerary")
		}
	}

	if err := s.repriceAll(ctx, &plan); err != nil {
		return nil, err
	}
	plan.Metrics = scoring.Measure(plan)

	now := s.now().UTC()
	booking := &model.Booking{
		ID:              uuid.NewString(),
		UserID:          userID,
		Status:          model.StatusProposed,
		Plan:            plan,
		PlanFingerprint: fingerprint,
		TotalPriceGBP:   plan.Metrics.TotalPriceGBP,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	holds, err := s.reserveAll(ctx, booking)
	if err != nil {
		return nil, err
	}
	booking.HoldExpiresAt = now.Add(s.cfg.HoldTTL)
	for _, h := range holds {
		booking.Holds = append(booking.Holds, h.Ref())
		if h.ExpiresAt.Before(booking.HoldExpiresAt) {
			booking.HoldExpiresAt = h.ExpiresAt
		}
	}

	if err := s.repo.Create(ctx, booking); err != nil {
		s.releaseAll(ctx, booking.ID, holds)
		if errors.Is(err, bookingserrors.ErrDuplicate) {
			return nil, apperrors.Conflict("An active booking already exists for this itinerary")
		}
		s.cfg.Log.Error("Failed to create booking", "id", booking.ID, "error", err)
		return nil, apperrors.Internal("Failed to create booking", err)
	}

	s.recorder.Record(ctx, events.Created(booking, now))
	s.cfg.Log.Info("Booking created successfully",
		"id", booking.ID,
		"plan_id", plan.ID,
		"legs", len(plan.Legs),
		"passengers", plan.Passengers,
		"total_price_gbp", booking.TotalPriceGBP,
		"hold_expires_at", booking.HoldExpiresAt,
	)
	return booking, nil
}

func (s *bookingService) Confirm(ctx context.Context, id string, req *ConfirmBookingRequest) (*model.Booking, error) {
	passenger := sanitizer.NormalizePassenger(req.PassengerData)
	if err := s.validator.ValidatePassenger(passenger); err != nil {
		return nil, validationError("Passenger data validation failed", err)
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	booking, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}

	switch booking.Status {
	case model.StatusConfirmed:
		s.cfg.Log.Info("Booking already confirmed", "id", id, "payment_reference", booking.PaymentReference)
		return booking, nil
	case model.StatusCancelled:
		return nil, apperrors.InvalidTransition(string(booking.Status), "confirm")
	case model.StatusExpired:
		return nil, apperrors.HoldExpired("Seat hold has expired; please search again")
	}

	now := s.now().UTC()
	if booking.HoldExpired(now) {
		s.expire(ctx, booking, now)
		return nil, apperrors.HoldExpired("Seat hold has expired; please search again")
	}

	committed, err := s.commitAll(ctx, booking)
	if err != nil {
		s.revertAll(ctx, booking, committed)
		if errors.Is(err, inventory.ErrHoldExpired) || errors.Is(err, inventory.ErrHoldNotFound) {
			s.expire(ctx, booking, now)
			return nil, apperrors.HoldExpired("Seat hold has expired; please search again")
		}
		return nil, apperrors.Internal("Failed to commit seats", err)
	}

	reference, err := s.payments.Charge(ctx, booking.ID, booking.TotalPriceGBP)
	if err != nil {
		s.recorder.Record(ctx, events.PaymentFailed(booking, paymentReason(err), now))
		if revertErr := s.revertAll(ctx, booking, committed); revertErr != nil {
			s.flagReconciliation(ctx, booking, "seat commit could not be reverted after payment failure", now)
		}
		s.cfg.Log.Warn("Payment failed, seats returned to hold", "id", id, "error", err)
		return nil, apperrors.PaymentFailed("Payment could not be completed; the seat hold remains until it expires", err)
	}

	before := booking.Clone()
	booking.Status = model.StatusConfirmed
	booking.PaymentReference = reference
	booking.PassengerData = passenger
	booking.ConfirmedAt = &now
	booking.UpdatedAt = now

	if err := s.repo.Transition(ctx, booking, model.StatusProposed); err != nil {
		s.cfg.Log.Error("Failed to persist confirmation after payment", "id", id, "error", err)
		s.revertAll(ctx, booking, committed)
		if refundErr := s.payments.Refund(ctx, reference, booking.TotalPriceGBP); refundErr != nil {
			s.recorder.Record(ctx, events.ReconciliationNeeded(booking, "payment captured for unconfirmed booking", now))
			s.cfg.Log.Error("Refund after failed confirmation did not complete",
				"id", id,
				"payment_reference", reference,
				"error", refundErr,
			)
		}
		if errors.Is(err, bookingserrors.ErrStatusConflict) {
			return nil, apperrors.Conflict("Booking changed while it was being confirmed")
		}
		return nil, apperrors.Internal("Failed to confirm booking", err)
	}

	s.recorder.Record(ctx, events.PaymentSucceeded(booking, now))
	s.recorder.Record(ctx, events.Transitioned(model.AuditConfirmed, before, booking, nil, now))
	s.cfg.Log.Info("Booking confirmed",
		"id", id,
		"payment_reference", reference,
		"total_price_gbp", booking.TotalPriceGBP,
	)
	return booking, nil
}

func (s *bookingService) Cancel(ctx context.Context, id string) (*model.Cancellation, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	booking, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}

	switch booking.Status {
	case model.StatusCancelled:
		return nil, apperrors.AlreadyCancelled()
	case model.StatusExpired:
		return nil, apperrors.InvalidTransition(string(booking.Status), "cancel")
	}

	now := s.now().UTC()
	refund, policy := RefundFor(booking, now)
	from := booking.Status
	before := booking.Clone()

	booking.Status = model.StatusCancelled
	booking.RefundAmountGBP = refund
	booking.CancelledAt = &now
	booking.UpdatedAt = now

	if err := s.repo.Transition(ctx, booking, from); err != nil {
		if errors.Is(err, bookingserrors.ErrStatusConflict) {
			return nil, apperrors.Conflict("Booking changed while it was being cancelled")
		}
		s.cfg.Log.Error("Failed to cancel booking", "id", id, "error", err)
		return nil, apperrors.Internal("Failed to cancel booking", err)
	}

	s.releaseRefs(ctx, booking)

	if refund > 0 {
		if err := s.payments.Refund(ctx, booking.PaymentReference, refund); err != nil {
			s.cfg.Log.Error("Refund failed", "id", id, "amount_gbp", refund, "error", err)
			s.flagReconciliation(ctx, booking, "refund could not be issued", now)
		}
	}

	s.recorder.Record(ctx, events.Transitioned(model.AuditCancelled, before, booking, map[string]any{
		"refund_amount": refund,
		"refund_policy": policy,
	}, now))
	s.cfg.Log.Info("Booking cancelled",
		"id", id,
		"previous_status", from,
		"refund_amount_gbp", refund,
		"refund_policy", policy,
	)

	return &model.Cancellation{
		Booking:         booking,
		RefundAmountGBP: refund,
		RefundPolicy:    policy,
	}, nil
}

func (s *bookingService) GetByID(ctx context.Context, id string) (*model.BookingDetail, error) {
	booking, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if booking.Status == model.StatusProposed && booking.HoldExpired(now) {
		unlock := s.locks.Lock(id)
		if current, err := s.repo.FindByID(ctx, id); err == nil && current.Status == model.StatusProposed && current.HoldExpired(now) {
			s.expire(ctx, current, now)
			booking = current
		}
		unlock()
	}

	trail, err := s.trail.FindByBooking(ctx, id)
	if err != nil {
		s.cfg.Log.Error("Failed to load audit trail", "id", id, "error", err)
		return nil, apperrors.Internal("Failed to load booking history", err)
	}

	return &model.BookingDetail{Booking: booking, AuditTrail: trail}, nil
}

func (s *bookingService) List(ctx context.Context, filter model.BookingFilter) ([]*model.Booking, int64, error) {
	if err := s.validator.ValidateFilter(&filter); err != nil {
		return nil, 0, validationError("Invalid booking filter", err)
	}

	var count int64
	var bookings []*model.Booking
	var errCount, errFind error
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		count, errCount = s.repo.Count(ctx, filter)
		if errCount != nil {
			s.cfg.Log.Error("Failed to count bookings", "error", errCount)
			errCount = apperrors.Internal("Failed to count bookings", errCount)
		}
	}()

	go func() {
		defer wg.Done()
		bookings, errFind = s.repo.Find(ctx, filter)
		if errFind != nil {
			s.cfg.Log.Error("Failed to list bookings", "error", errFind)
			errFind = apperrors.Internal("Failed to retrieve bookings", errFind)
		}
	}()

	wg.Wait()
	if errCount != nil {
		return nil, 0, errCount
	}
	if errFind != nil {
		return nil, 0, errFind
	}

	return bookings, count, nil
}

// --- Helpers ---

func slotLeaseID(userID, fingerprint string) string {
	return "booking-slot:" + userID + "|" + fingerprint
}

// acquireSlotLease serializes creates for one user and itinerary across instances.
func (s *bookingService) acquireSlotLease(ctx context.Context, userID, fingerprint string) (func(), error) {
	id := slotLeaseID(userID, fingerprint)
	if _, err := s.leases.Acquire(ctx, id, s.instance, slotLeaseTTL); err != nil {
		if errors.Is(err, bookingserrors.ErrLeaseHeld) {
			return nil, apperrors.Conflict("This itinerary is currently being booked by another request. Please try again.")
		}
		return nil, apperrors.Internal("Failed to acquire booking lock", err)
	}

	return func() {
		if err := s.leases.Release(context.WithoutCancel(ctx), id, s.instance); err != nil {
			s.cfg.Log.Warn("Failed to release booking lock", "lease_id", id, "error", err)
		}
	}, nil
}

func (s *bookingService) find(ctx context.Context, id string) (*model.Booking, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Booking ID cannot be empty")
	}

	booking, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, bookingserrors.ErrNotFound) {
			return nil, apperrors.NotFound("Booking")
		}
		if errors.Is(err, bookingserrors.ErrInvalidID) {
			return nil, apperrors.InvalidInput("Invalid booking ID format")
		}
		return nil, apperrors.Internal("Failed to retrieve booking", err)
	}
	return booking, nil
}

func (s *bookingService) normalizePlan(p *model.Plan) {
	for i := range p.Legs {
		leg := &p.Legs[i]
		leg.Origin = sanitizer.NormalizeCode(leg.Origin)
		leg.Destination = sanitizer.NormalizeCode(leg.Destination)
		leg.Provider = sanitizer.NormalizeProvider(leg.Provider)
		leg.DepartAt = leg.DepartAt.UTC()
		leg.ArriveAt = leg.ArriveAt.UTC()
		leg.Faults = nil
	}
	if p.Passengers == 0 {
		p.Passengers = 1
	}
}

// reserveAll holds seats on every leg or on none of them.
func (s *bookingService) reserveAll(ctx context.Context, b *model.Booking) ([]*inventory.Hold, error) {
	holds := make([]*inventory.Hold, 0, len(b.Plan.Legs))
	for _, leg := range b.Plan.Legs {
		key := leg.InventoryKey()
		if !s.inventory.Known(key) {
			total, err := s.capacity.Capacity(ctx, leg.RouteFragment)
			if err != nil {
				s.releaseAll(ctx, b.ID, holds)
				s.cfg.Log.Warn("Capacity lookup failed", "key", key.String(), "error", err)
				return nil, apperrors.Unavailable("Availability provider")
			}
			s.inventory.Provision(key, total)
		}

		hold, err := s.inventory.Reserve(ctx, key, b.ID, b.Plan.Passengers, s.cfg.HoldTTL)
		if err != nil {
			s.releaseAll(ctx, b.ID, holds)
			if errors.Is(err, inventory.ErrInsufficientInventory) {
				s.cfg.Log.Info("Seat reservation refused", "key", key.String(), "passengers", b.Plan.Passengers)
				return nil, apperrors.InsufficientInventory(fmt.Sprintf(
					"Not enough seats on %s to %s with %s; please choose another itinerary",
					leg.Origin, leg.Destination, leg.Provider,
				))
			}
			return nil, apperrors.Internal("Failed to reserve seats", err)
		}
		holds = append(holds, hold)
	}
	return holds, nil
}

func (s *bookingService) releaseAll(ctx context.Context, bookingID string, holds []*inventory.Hold) {
	for _, h := range holds {
		if err := s.inventory.Release(ctx, h); err != nil {
			s.cfg.Log.Warn("Failed to release hold", "booking_id", bookingID, "hold_id", h.ID, "error", err)
		}
	}
}

func (s *bookingService) releaseRefs(ctx context.Context, b *model.Booking) {
	holds := make([]*inventory.Hold, 0, len(b.Holds))
	for _, ref := range b.Holds {
		holds = append(holds, inventory.HoldFromRef(ref, b.ID))
	}
	s.releaseAll(ctx, b.ID, holds)
}

func (s *bookingService) commitAll(ctx context.Context, b *model.Booking) ([]*inventory.Hold, error) {
	committed := make([]*inventory.Hold, 0, len(b.Holds))
	for _, ref := range b.Holds {
		hold := inventory.HoldFromRef(ref, b.ID)
		if err := s.inventory.Commit(ctx, hold); err != nil {
			return committed, err
		}
		committed = append(committed, hold)
	}
	return committed, nil
}

func (s *bookingService) revertAll(ctx context.Context, b *model.Booking, committed []*inventory.Hold) error {
	var errs []error
	for _, h := range committed {
		if err := s.inventory.Revert(ctx, h); err != nil {
			s.cfg.Log.Error("Failed to revert seat commit", "booking_id", b.ID, "hold_id", h.ID, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// expire moves a PROPOSED booking to EXPIRED and frees its seats. Callers hold the booking lock.
func (s *bookingService) expire(ctx context.Context, b *model.Booking, now time.Time) bool {
	before := b.Clone()
	b.Status = model.StatusExpired
	b.ExpiredAt = &now
	b.UpdatedAt = now

	if err := s.repo.Transition(ctx, b, model.StatusProposed); err != nil {
		s.cfg.Log.Warn("Failed to expire booking", "id", b.ID, "error", err)
		*b = *before
		return false
	}
	s.releaseRefs(ctx, b)

	s.recorder.Record(ctx, events.Transitioned(model.AuditExpired, before, b, map[string]any{
		"hold_expires_at": b.HoldExpiresAt,
	}, now))
	s.cfg.Log.Info("Booking expired", "id", b.ID, "hold_expires_at", b.HoldExpiresAt)
	return true
}

func (s *bookingService) flagReconciliation(ctx context.Context, b *model.Booking, reason string, now time.Time) {
	from := b.Status
	b.ReconciliationNeeded = true
	b.UpdatedAt = now
	if err := s.repo.Transition(ctx, b, from); err != nil {
		s.cfg.Log.Error("Failed to flag booking for reconciliation", "id", b.ID, "error", err)
	}
	s.recorder.Record(ctx, events.ReconciliationNeeded(b, reason, now))
}

func validationError(message string, err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return apperrors.Validation(message, map[string]any{"errors": verrs})
	}
	return apperrors.InvalidInput(message)
}

func paymentReason(err error) string {
	if errors.Is(err, payment.ErrDeclined) {
		return "declined"
	}
	return "error"
}

func roundMoney(v float64) float64 {
	return math.Round(v*100) / 100
}
