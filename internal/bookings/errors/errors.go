package errors

import "errors"

var (
	ErrNotFound = errors.New("booking not found")

	ErrInvalidID = errors.New("invalid booking ID format")

	ErrStatusConflict = errors.New("booking status changed concurrently")

	ErrInvalidTransition = errors.New("booking status transition not allowed")

	ErrDuplicate = errors.New("an active booking already exists for this plan")

	ErrLeaseHeld = errors.New("lease held by another owner")
)
