package repository

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	bookingserrors "itinera/internal/bookings/errors"
	"itinera/pkg/model"
)

type memoryBookingRepository struct {
	mu       sync.RWMutex
	bookings map[string]*model.Booking
}

// NewMemoryBookingRepository keeps bookings in process. Stored values are cloned
// on the way in and out so callers never share state with the store.
func NewMemoryBookingRepository() BookingRepository {
	return &memoryBookingRepository{
		bookings: make(map[string]*model.Booking),
	}
}

func (r *memoryBookingRepository) Create(ctx context.Context, b *model.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.bookings[b.ID]; exists {
		return bookingserrors.ErrDuplicate
	}
	if b.UserID != "" && len(r.activeByFingerprintLocked(b.UserID, b.PlanFingerprint)) > 0 {
		return bookingserrors.ErrDuplicate
	}
	r.bookings[b.ID] = b.Clone()
	return nil
}

func (r *memoryBookingRepository) FindByID(ctx context.Context, id string) (*model.Booking, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.bookings[id]
	if !ok {
		return nil, bookingserrors.ErrNotFound
	}
	return b.Clone(), nil
}

func (r *memoryBookingRepository) Find(ctx context.Context, filter model.BookingFilter) ([]*model.Booking, error) {
	r.mu.RLock()
	matched := r.matchLocked(filter)
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID < matched[j].ID
	})

	start := min(int(max(filter.Offset, 0)), len(matched))
	end := len(matched)
	if filter.Limit > 0 {
		end = min(start+filter.Limit, len(matched))
	}
	return matched[start:end], nil
}

func (r *memoryBookingRepository) Count(ctx context.Context, filter model.BookingFilter) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.matchLocked(filter))), nil
}

func (r *memoryBookingRepository) FindActiveByFingerprint(ctx context.Context, userID, fingerprint string) ([]*model.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.activeByFingerprintLocked(userID, fingerprint), nil
}

func (r *memoryBookingRepository) FindExpiredHolds(ctx context.Context, now time.Time, limit int) ([]*model.Booking, error) {
	r.mu.RLock()
	var expired []*model.Booking
	for _, b := range r.bookings {
		if b.Status == model.StatusProposed && b.HoldExpired(now) {
			expired = append(expired, b.Clone())
		}
	}
	r.mu.RUnlock()

	sort.Slice(expired, func(i, j int) bool {
		return expired[i].HoldExpiresAt.Before(expired[j].HoldExpiresAt)
	})
	if limit > 0 && len(expired) > limit {
		expired = expired[:limit]
	}
	return expired, nil
}

func (r *memoryBookingRepository) FindActive(ctx context.Context) ([]*model.Booking, error) {
	r.mu.RLock()
	active := []*model.Booking{}
	for _, b := range r.bookings {
		if slices.Contains(model.ActiveStatuses, b.Status) {
			active = append(active, b.Clone())
		}
	}
	r.mu.RUnlock()

	sort.Slice(active, func(i, j int) bool {
		if !active[i].CreatedAt.Equal(active[j].CreatedAt) {
			return active[i].CreatedAt.Before(active[j].CreatedAt)
		}
		return active[i].ID < active[j].ID
	})
	return active, nil
}

func (r *memoryBookingRepository) Transition(ctx context.Context, b *model.Booking, from model.BookingStatus) error {
	if err := checkTransition(from, b.Status); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.bookings[b.ID]
	if !ok {
		return bookingserrors.ErrNotFound
	}
	if current.Status != from {
		return bookingserrors.ErrStatusConflict
	}
	r.bookings[b.ID] = b.Clone()
	return nil
}

func (r *memoryBookingRepository) matchLocked(filter model.BookingFilter) []*model.Booking {
	matched := []*model.Booking{}
	for _, b := range r.bookings {
		if filter.Status != "" && b.Status != filter.Status {
			continue
		}
		if filter.UserID != "" && b.UserID != filter.UserID {
			continue
		}
		matched = append(matched, b.Clone())
	}
	return matched
}

func (r *memoryBookingRepository) activeByFingerprintLocked(userID, fingerprint string) []*model.Booking {
	var active []*model.Booking
	for _, b := range r.bookings {
		if b.UserID == userID && b.PlanFingerprint == fingerprint && slices.Contains(model.ActiveStatuses, b.Status) {
			active = append(active, b.Clone())
		}
	}
	return active
}
