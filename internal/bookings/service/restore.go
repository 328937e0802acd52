package service

import (
	"context"
	"errors"
	"fmt"

	"itinera/internal/inventory"
	"itinera/pkg/model"
)

// RestoreInventory replays the seat holds of every active booking into the inventory
// manager: CONFIRMED bookings as committed seats, PROPOSED ones as holds with their
// stored expiry. It runs once at startup, before the service takes traffic.
func (s *bookingService) RestoreInventory(ctx context.Context) (int, error) {
	bookings, err := s.repo.FindActive(ctx)
	if err != nil {
		s.cfg.Log.Error("Failed to load active bookings", "error", err)
		return 0, fmt.Errorf("failed to load active bookings: %w", err)
	}

	restored, lapsed := 0, 0
	for _, b := range bookings {
		committed := b.Status == model.StatusConfirmed
		for _, ref := range b.Holds {
			hold := inventory.HoldFromRef(ref, b.ID)
			hold.CreatedAt = b.CreatedAt
			hold.ExpiresAt = b.HoldExpiresAt

			if err := s.inventory.Restore(hold, committed); err != nil {
				if errors.Is(err, inventory.ErrHoldExpired) {
					lapsed++
					continue
				}
				s.cfg.Log.Error("Failed to restore seat hold", "booking_id", b.ID, "hold_id", ref.HoldID, "error", err)
				return restored, fmt.Errorf("failed to restore hold %s of booking %s: %w", ref.HoldID, b.ID, err)
			}
			restored++
		}
	}

	s.cfg.Log.Info("Seat inventory restored from bookings",
		"bookings", len(bookings),
		"holds_restored", restored,
		"holds_lapsed", lapsed,
	)
	return restored, nil
}
