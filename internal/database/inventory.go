package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"thumbsup/internal/models"
)

// BookSeats reserves booking.Seats on booking.RideID and appends the ledger
// entry in one transaction. The decrement is conditional, so the seat count
// can never drop below zero however many callers race on the same ride.
// It returns the seats left after the booking.
func (db *DB) BookSeats(ctx context.Context, booking *models.Booking) (int, error) {
	if booking.Seats < 1 {
		return 0, ErrInsufficientSeats
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// 1. Conditional decrement
	result, err := tx.ExecContext(ctx,
		`UPDATE rides SET seats_available = seats_available - ?, version = version + 1
         WHERE id = ? AND seats_available >= ?`,
		booking.Seats, booking.RideID, booking.Seats)
	if err != nil {
		return 0, fmt.Errorf("failed to reserve seats in tx: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM rides WHERE id = ?`, booking.RideID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrRideNotFound
		}
		if err != nil {
			return 0, fmt.Errorf("failed to check ride in tx: %w", err)
		}
		return 0, ErrInsufficientSeats
	}

	// 2. Capture price and route info from the ride as it is now
	var (
		remaining  int
		priceCents int64
	)
	err = tx.QueryRowContext(ctx,
		`SELECT seats_available, price_cents, estimated_duration, estimated_distance FROM rides WHERE id = ?`,
		booking.RideID).Scan(&remaining, &priceCents, &booking.EstimatedDuration, &booking.EstimatedDistance)
	if err != nil {
		return 0, fmt.Errorf("failed to read ride in tx: %w", err)
	}

	// 3. Ledger entry
	booking.TotalPriceCents = int64(booking.Seats) * priceCents
	if err := insertBooking(ctx, tx, booking); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit booking: %w", err)
	}
	return remaining, nil
}

// CancelBookingAndRestore cancels a confirmed booking and gives its seats back
// to the ride in one transaction. The restore is capped at seats_offered.
// The returned ride is nil when it no longer exists; the booking is still
// cancelled in that case.
func (db *DB) CancelBookingAndRestore(ctx context.Context, bookingID int64) (*models.Booking, *models.Ride, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	booking, err := scanBooking(tx.QueryRowContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings b WHERE b.id = ?`, bookingID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, ErrBookingNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read booking in tx: %w", err)
	}

	now := time.Now()
	result, err := tx.ExecContext(ctx,
		`UPDATE bookings SET status = ?, canceled_at = ? WHERE id = ? AND status = ?`,
		models.StatusCancelled, now, bookingID, models.StatusConfirmed)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to cancel booking in tx: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return nil, nil, ErrAlreadyCancelled
	}
	booking.Status = models.StatusCancelled
	booking.CanceledAt = &now

	_, err = tx.ExecContext(ctx,
		`UPDATE rides SET seats_available = MIN(seats_available + ?, seats_offered), version = version + 1
         WHERE id = ?`,
		booking.Seats, booking.RideID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to restore seats in tx: %w", err)
	}

	ride, err := scanRide(tx.QueryRowContext(ctx, `SELECT `+rideColumns+` FROM rides WHERE id = ?`, booking.RideID))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		ride = nil
	case err != nil:
		return nil, nil, fmt.Errorf("failed to read ride in tx: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("failed to commit cancellation: %w", err)
	}
	return booking, ride, nil
}

// DeleteRideCascade removes the ride and every booking that references it in
// one transaction, after checking that ownerID created the ride. It returns
// the bookings that were removed.
func (db *DB) DeleteRideCascade(ctx context.Context, rideID, ownerID int64) ([]*models.Booking, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var createdBy int64
	err = tx.QueryRowContext(ctx, `SELECT created_by FROM rides WHERE id = ?`, rideID).Scan(&createdBy)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRideNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read ride in tx: %w", err)
	}
	if createdBy != ownerID {
		return nil, ErrNotOwner
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings b WHERE b.ride_id = ? ORDER BY b.id`, rideID)
	if err != nil {
		return nil, fmt.Errorf("failed to list ride bookings in tx: %w", err)
	}
	removed := make([]*models.Booking, 0)
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan booking in tx: %w", err)
		}
		removed = append(removed, b)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bookings in tx: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM bookings WHERE ride_id = ?`, rideID); err != nil {
		return nil, fmt.Errorf("failed to delete bookings in tx: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM rides WHERE id = ?`, rideID); err != nil {
		return nil, fmt.Errorf("failed to delete ride in tx: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit ride deletion: %w", err)
	}
	return removed, nil
}
