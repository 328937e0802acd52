package repository

import (
	"context"
	"testing"
	"time"

	bookingserrors "itinera/internal/bookings/errors"
	"itinera/pkg/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 11, 1, 9, 0, 0, 0, time.UTC)

func newBooking(userID, fingerprint string, status model.BookingStatus, created time.Time) *model.Booking {
	return &model.Booking{
		ID:              uuid.NewString(),
		UserID:          userID,
		Status:          status,
		PlanFingerprint: fingerprint,
		HoldExpiresAt:   created.Add(5 * time.Minute),
		CreatedAt:       created,
		UpdatedAt:       created,
	}
}

func TestMemoryBookingRepository_CreateAndFind(t *testing.T) {
	repo := NewMemoryBookingRepository()
	ctx := context.Background()
	b := newBooking("u1", "fp1", model.StatusProposed, base)

	require.NoError(t, repo.Create(ctx, b))
	b.Status = model.StatusCancelled

	got, err := repo.FindByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusProposed, got.Status, "store must not share state with the caller")

	_, err = repo.FindByID(ctx, uuid.NewString())
	assert.ErrorIs(t, err, bookingserrors.ErrNotFound)

	_, err = repo.FindByID(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, bookingserrors.ErrInvalidID)
}

func TestMemoryBookingRepository_DuplicateFingerprint(t *testing.T) {
	repo := NewMemoryBookingRepository()
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newBooking("u1", "fp1", model.StatusProposed, base)))

	tests := []struct {
		name    string
		booking *model.Booking
		wantErr error
	}{
		{name: "same user same plan", booking: newBooking("u1", "fp1", model.StatusProposed, base), wantErr: bookingserrors.ErrDuplicate},
		{name: "other user", booking: newBooking("u2", "fp1", model.StatusProposed, base)},
		{name: "other plan", booking: newBooking("u1", "fp2", model.StatusProposed, base)},
		{name: "anonymous", booking: newBooking("", "fp1", model.StatusProposed, base)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := repo.Create(ctx, tt.booking)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestMemoryBookingRepository_DuplicateAllowedAfterTerminal(t *testing.T) {
	repo := NewMemoryBookingRepository()
	ctx := context.Background()
	first := newBooking("u1", "fp1", model.StatusProposed, base)
	require.NoError(t, repo.Create(ctx, first))

	first.Status = model.StatusExpired
	require.NoError(t, repo.Transition(ctx, first, model.StatusProposed))

	assert.NoError(t, repo.Create(ctx, newBooking("u1", "fp1", model.StatusProposed, base)))
}

func TestMemoryBookingRepository_Transition(t *testing.T) {
	repo := NewMemoryBookingRepository()
	ctx := context.Background()
	b := newBooking("u1", "fp1", model.StatusProposed, base)
	require.NoError(t, repo.Create(ctx, b))

	confirmed := b.Clone()
	confirmed.Status = model.StatusConfirmed
	require.NoError(t, repo.Transition(ctx, confirmed, model.StatusProposed))

	cancelled := b.Clone()
	cancelled.Status = model.StatusCancelled
	assert.ErrorIs(t, repo.Transition(ctx, cancelled, model.StatusProposed), bookingserrors.ErrStatusConflict)

	missing := newBooking("u1", "fp9", model.StatusConfirmed, base)
	assert.ErrorIs(t, repo.Transition(ctx, missing, model.StatusProposed), bookingserrors.ErrNotFound)
}

func TestMemoryBookingRepository_FindAndCount(t *testing.T) {
	repo := NewMemoryBookingRepository()
	ctx := context.Background()
	for i, status := range []model.BookingStatus{model.StatusProposed, model.StatusConfirmed, model.StatusConfirmed, model.StatusCancelled} {
		user := "u1"
		if i%2 == 1 {
			user = "u2"
		}
		require.NoError(t, repo.Create(ctx, newBooking(user, uuid.NewString(), status, base.Add(time.Duration(i)*time.Minute))))
	}

	tests := []struct {
		name      string
		filter    model.BookingFilter
		wantLen   int
		wantCount int64
	}{
		{name: "all", filter: model.BookingFilter{}, wantLen: 4, wantCount: 4},
		{name: "status", filter: model.BookingFilter{Status: model.StatusConfirmed}, wantLen: 2, wantCount: 2},
		{name: "user", filter: model.BookingFilter{UserID: "u2"}, wantLen: 2, wantCount: 2},
		{name: "paged", filter: model.BookingFilter{Limit: 3, Offset: 2}, wantLen: 2, wantCount: 4},
		{name: "offset past end", filter: model.BookingFilter{Offset: 10}, wantLen: 0, wantCount: 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			found, err := repo.Find(ctx, tt.filter)
			require.NoError(t, err)
			require.NotNil(t, found)
			assert.Len(t, found, tt.wantLen)

			count, err := repo.Count(ctx, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.wantCount, count)
		})
	}

	newestFirst, err := repo.Find(ctx, model.BookingFilter{})
	require.NoError(t, err)
	for i := 1; i < len(newestFirst); i++ {
		assert.False(t, newestFirst[i].CreatedAt.After(newestFirst[i-1].CreatedAt))
	}
}

func TestMemoryBookingRepository_FindExpiredHolds(t *testing.T) {
	repo := NewMemoryBookingRepository()
	ctx := context.Background()
	older := newBooking("u1", "fp1", model.StatusProposed, base)
	newer := newBooking("u1", "fp2", model.StatusProposed, base.Add(2*time.Minute))
	fresh := newBooking("u1", "fp3", model.StatusProposed, base.Add(10*time.Minute))
	confirmed := newBooking("u1", "fp4", model.StatusConfirmed, base)
	for _, b := range []*model.Booking{newer, fresh, confirmed, older} {
		require.NoError(t, repo.Create(ctx, b))
	}

	expired, err := repo.FindExpiredHolds(ctx, base.Add(8*time.Minute), 0)
	require.NoError(t, err)
	require.Len(t, expired, 2)
	assert.Equal(t, older.ID, expired[0].ID)
	assert.Equal(t, newer.ID, expired[1].ID)

	limited, err := repo.FindExpiredHolds(ctx, base.Add(8*time.Minute), 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestMemoryLeaseRepository(t *testing.T) {
	now := base
	leases := NewMemoryLeaseRepository(func() time.Time { return now })
	ctx := context.Background()

	lease, err := leases.Acquire(ctx, "sweeper", "a", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "a", lease.Owner)

	_, err = leases.Acquire(ctx, "sweeper", "b", time.Minute)
	assert.ErrorIs(t, err, bookingserrors.ErrLeaseHeld)

	require.NoError(t, leases.Release(ctx, "sweeper", "b"))
	_, err = leases.Acquire(ctx, "sweeper", "b", time.Minute)
	assert.ErrorIs(t, err, bookingserrors.ErrLeaseHeld, "only the owner releases")

	now = now.Add(2 * time.Minute)
	lease, err = leases.Acquire(ctx, "sweeper", "b", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "b", lease.Owner)

	require.NoError(t, leases.Release(ctx, "sweeper", "b"))
	_, err = leases.Acquire(ctx, "sweeper", "a", time.Minute)
	assert.NoError(t, err)
}

func TestMemoryBookingRepository_TransitionFollowsLifecycle(t *testing.T) {
	tests := []struct {
		name    string
		from    model.BookingStatus
		to      model.BookingStatus
		wantErr error
	}{
		{name: "proposed to confirmed", from: model.StatusProposed, to: model.StatusConfirmed},
		{name: "proposed to expired", from: model.StatusProposed, to: model.StatusExpired},
		{name: "confirmed to cancelled", from: model.StatusConfirmed, to: model.StatusCancelled},
		{name: "flag update keeps status", from: model.StatusCancelled, to: model.StatusCancelled},
		{name: "confirmed back to proposed", from: model.StatusConfirmed, to: model.StatusProposed, wantErr: bookingserrors.ErrInvalidTransition},
		{name: "cancelled to confirmed", from: model.StatusCancelled, to: model.StatusConfirmed, wantErr: bookingserrors.ErrInvalidTransition},
		{name: "expired to cancelled", from: model.StatusExpired, to: model.StatusCancelled, wantErr: bookingserrors.ErrInvalidTransition},
		{name: "confirmed to expired", from: model.StatusConfirmed, to: model.StatusExpired, wantErr: bookingserrors.ErrInvalidTransition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := NewMemoryBookingRepository()
			ctx := context.Background()
			b := newBooking("u1", uuid.NewString(), tt.from, base)
			require.NoError(t, repo.Create(ctx, b))

			next := b.Clone()
			next.Status = tt.to
			next.ReconciliationNeeded = true
			err := repo.Transition(ctx, next, tt.from)

			stored, findErr := repo.FindByID(ctx, b.ID)
			require.NoError(t, findErr)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, tt.from, stored.Status)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.to, stored.Status)
			assert.True(t, stored.ReconciliationNeeded)
		})
	}
}
