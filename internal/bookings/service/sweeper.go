package service

import (
	"context"
	"errors"
	"time"

	bookingserrors "itinera/internal/bookings/errors"
	"itinera/pkg/logger"
	"itinera/pkg/model"
)

const sweeperLease = "booking-expiry-sweeper"

// SweepExpired expires PROPOSED bookings whose hold lapsed. Only the instance holding the
// sweeper lease does work; others return zero.
func (s *bookingService) SweepExpired(ctx context.Context) (int, error) {
	lease, err := s.leases.Acquire(ctx, sweeperLease, s.instance, 2*s.cfg.SweepInterval)
	if err != nil {
		if errors.Is(err, bookingserrors.ErrLeaseHeld) {
			return 0, nil
		}
		s.cfg.Log.Error("Failed to acquire sweeper lease", "error", err)
		return 0, err
	}
	defer func() {
		if err := s.leases.Release(context.WithoutCancel(ctx), lease.ID, s.instance); err != nil {
			s.cfg.Log.Warn("Failed to release sweeper lease", "error", err)
		}
	}()

	now := s.now().UTC()
	candidates, err := s.repo.FindExpiredHolds(ctx, now, s.cfg.SweepBatchSize)
	if err != nil {
		s.cfg.Log.Error("Failed to find expired bookings", "error", err)
		return 0, err
	}

	expired := 0
	for _, candidate := range candidates {
		if ctx.Err() != nil {
			break
		}
		if s.expireIfStale(ctx, candidate.ID, now) {
			expired++
		}
	}

	orphaned := s.inventory.ExpireStale(now)
	if expired > 0 || orphaned > 0 {
		s.cfg.Log.Info("Expiry sweep completed",
			"bookings_expired", expired,
			"holds_expired", orphaned,
			"candidates", len(candidates),
		)
	}
	return expired, nil
}

// expireIfStale re-reads the booking under its lock so a concurrent confirm or cancel wins.
func (s *bookingService) expireIfStale(ctx context.Context, id string, now time.Time) bool {
	unlock := s.locks.Lock(id)
	defer unlock()

	current, err := s.repo.FindByID(ctx, id)
	if err != nil {
		s.cfg.Log.Warn("Failed to reload booking for expiry", "id", id, "error", err)
		return false
	}
	if current.Status != model.StatusProposed || !current.HoldExpired(now) {
		return false
	}
	return s.expire(ctx, current, now)
}

// Sweeper runs SweepExpired on a fixed interval until its context ends.
type Sweeper struct {
	service  BookingService
	interval time.Duration
	log      *logger.Logger
}

func NewSweeper(service BookingService, interval time.Duration, log *logger.Logger) *Sweeper {
	return &Sweeper{service: service, interval: interval, log: log}
}

func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info("Expiry sweeper started", "interval", s.interval.String())
	for {
		select {
		case <-ctx.Done():
			s.log.Info("Expiry sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.service.SweepExpired(ctx); err != nil && ctx.Err() == nil {
				s.log.Error("Expiry sweep failed", "error", err)
			}
		}
	}
}
