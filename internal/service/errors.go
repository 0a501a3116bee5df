package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"thumbsup/internal/database"
)

var (
	ErrInvalidSeatCount = errors.New("invalid seat count")
	ErrUnauthenticated  = errors.New("authentication required")
	ErrForbidden        = errors.New("forbidden")
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrPartialFailure marks a side effect that failed after the inventory
	// change committed. It is logged and retried, never returned to callers.
	ErrPartialFailure     = errors.New("partial failure")
	ErrNotFound           = errors.New("not found")
	ErrAlreadyCancelled   = errors.New("booking already cancelled")
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("email already registered")
)

// storeError maps a storage error onto the service taxonomy, keeping the
// original in the chain.
func storeError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, database.ErrRideNotFound),
		errors.Is(err, database.ErrBookingNotFound),
		errors.Is(err, database.ErrUserNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, database.ErrInsufficientSeats):
		return fmt.Errorf("%w: %w", ErrInvalidSeatCount, err)
	case errors.Is(err, database.ErrNotOwner):
		return fmt.Errorf("%w: %w", ErrForbidden, err)
	case errors.Is(err, database.ErrAlreadyCancelled):
		return fmt.Errorf("%w: %w", ErrAlreadyCancelled, err)
	case errors.Is(err, database.ErrDuplicateEmail):
		return fmt.Errorf("%w: %w", ErrEmailTaken, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
}

// UserMessage converts an error into a short message fit for end users.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidSeatCount):
		return "Not enough seats available for this request."
	case errors.Is(err, ErrUnauthenticated):
		return "Please sign in to continue."
	case errors.Is(err, ErrForbidden):
		return "You are not allowed to change this resource."
	case errors.Is(err, ErrNotFound):
		return "The requested item was not found."
	case errors.Is(err, ErrAlreadyCancelled):
		return "This booking is already cancelled."
	case errors.Is(err, ErrEmailTaken):
		return "An account with this email already exists."
	case errors.Is(err, ErrInvalidCredentials):
		return "Invalid email or password."
	case errors.Is(err, ErrInvalidInput):
		return "Invalid request: " + strings.TrimPrefix(err.Error(), ErrInvalidInput.Error()+": ")
	default:
		return "Something went wrong. Please try again later."
	}
}
