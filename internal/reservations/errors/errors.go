package errors

import "errors"

var (
	ErrNotFound = errors.New("booking not found")

	ErrInvalidID = errors.New("invalid booking ID format")

	ErrVehicleNotFound = errors.New("vehicle not found")

	// ErrStatusChanged means the optimistic status precondition on an
	// update failed: the booking moved to another state between the read
	// and the write.
	ErrStatusChanged = errors.New("booking status changed concurrently")
)
