package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"thumbsup/internal/models"
)

const bookingColumns = `b.id, b.user_id, b.user_email, b.ride_id, b.seats, b.total_price_cents,
	b.booking_date, b.status, b.estimated_duration, b.estimated_distance, b.created_at, b.canceled_at`

// CreateBooking appends a confirmed ledger entry. The total is captured as
// seats * pricePerSeatCents and never recomputed. The ride is not touched.
func (db *DB) CreateBooking(ctx context.Context, booking *models.Booking, pricePerSeatCents int64) error {
	booking.TotalPriceCents = int64(booking.Seats) * pricePerSeatCents
	return insertBooking(ctx, db, booking)
}

func insertBooking(ctx context.Context, ex execer, booking *models.Booking) error {
	query := `INSERT INTO bookings (
				user_id, user_email, ride_id, seats, total_price_cents, booking_date,
				status, estimated_duration, estimated_distance, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now()
	if booking.BookingDate == "" {
		booking.BookingDate = now.Format(models.DateLayout)
	}
	booking.Status = models.StatusConfirmed

	result, err := ex.ExecContext(ctx, query,
		booking.UserID,
		booking.UserEmail,
		booking.RideID,
		booking.Seats,
		booking.TotalPriceCents,
		booking.BookingDate,
		booking.Status,
		booking.EstimatedDuration,
		booking.EstimatedDistance,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create booking: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	booking.ID = id
	booking.CreatedAt = now
	booking.CanceledAt = nil

	return nil
}

func (db *DB) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings b WHERE b.id = ?`
	booking, err := scanBooking(db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBookingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return booking, nil
}

// ListBookingsForUser returns the user's non-cancelled bookings joined with
// their rides. Bookings whose ride no longer exists are dropped.
func (db *DB) ListBookingsForUser(ctx context.Context, userID int64) ([]*models.BookingWithRide, error) {
	query := `SELECT ` + bookingColumns + `, ` + prefixed("r", rideColumns) + `
              FROM bookings b
              JOIN rides r ON r.id = b.ride_id
              WHERE b.user_id = ? AND b.status != ?
              ORDER BY b.created_at DESC, b.id DESC`
	rows, err := db.QueryContext(ctx, query, userID, models.StatusCancelled)
	if err != nil {
		return nil, fmt.Errorf("failed to list user bookings: %w", err)
	}
	defer rows.Close()

	result := make([]*models.BookingWithRide, 0)
	for rows.Next() {
		var (
			b          models.Booking
			r          models.Ride
			canceledAt sql.NullTime
		)
		err := rows.Scan(
			&b.ID, &b.UserID, &b.UserEmail, &b.RideID, &b.Seats, &b.TotalPriceCents,
			&b.BookingDate, &b.Status, &b.EstimatedDuration, &b.EstimatedDistance, &b.CreatedAt, &canceledAt,
			&r.ID, &r.DepartureLocation, &r.DepartureAddress, &r.DepartureLat, &r.DepartureLng,
			&r.Destination, &r.DestinationAddress, &r.DestinationLat, &r.DestinationLng,
			&r.DepartureDate, &r.DepartureTime, &r.SeatsOffered, &r.SeatsAvailable, &r.PriceCents,
			&r.Description, &r.EstimatedDuration, &r.EstimatedDistance, &r.CreatedBy, &r.CreatorEmail,
			&r.Status, &r.CreatedAt, &r.Version,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user booking: %w", err)
		}
		if canceledAt.Valid {
			b.CanceledAt = &canceledAt.Time
		}
		ride := r
		result = append(result, &models.BookingWithRide{Booking: b, Ride: &ride})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate user bookings: %w", err)
	}
	return result, nil
}

// ListBookingsForRide returns bookings of any status that reference the ride.
func (db *DB) ListBookingsForRide(ctx context.Context, rideID int64) ([]*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings b WHERE b.ride_id = ? ORDER BY b.created_at ASC, b.id ASC`
	return db.queryBookings(ctx, query, rideID)
}

// ListAllBookings returns the whole ledger ordered by id. Used for a full
// resync of the mirror spreadsheet.
func (db *DB) ListAllBookings(ctx context.Context) ([]*models.Booking, error) {
	return db.queryBookings(ctx, `SELECT `+bookingColumns+` FROM bookings b ORDER BY b.id ASC`)
}

func (db *DB) queryBookings(ctx context.Context, query string, args ...any) ([]*models.Booking, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	defer rows.Close()

	bookings := make([]*models.Booking, 0)
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bookings: %w", err)
	}
	return bookings, nil
}

// CancelBooking flips the status and stamps the cancellation time. The ride's
// seat count is left alone.
func (db *DB) CancelBooking(ctx context.Context, bookingID int64) error {
	query := `UPDATE bookings SET status = ?, canceled_at = ? WHERE id = ?`
	result, err := db.ExecContext(ctx, query, models.StatusCancelled, time.Now(), bookingID)
	if err != nil {
		return fmt.Errorf("failed to cancel booking: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrBookingNotFound
	}
	return nil
}

// DeleteBooking removes a single ledger row.
func (db *DB) DeleteBooking(ctx context.Context, bookingID int64) error {
	result, err := db.ExecContext(ctx, `DELETE FROM bookings WHERE id = ?`, bookingID)
	if err != nil {
		return fmt.Errorf("failed to delete booking: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrBookingNotFound
	}
	return nil
}

// ConfirmedSeats sums seats over confirmed bookings of a ride.
func (db *DB) ConfirmedSeats(ctx context.Context, rideID int64) (int, error) {
	var n int
	query := `SELECT COALESCE(SUM(seats), 0) FROM bookings WHERE ride_id = ? AND status = ?`
	if err := db.QueryRowContext(ctx, query, rideID, models.StatusConfirmed).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to sum confirmed seats: %w", err)
	}
	return n, nil
}

func scanBooking(row rowScanner) (*models.Booking, error) {
	var (
		b          models.Booking
		canceledAt sql.NullTime
	)
	err := row.Scan(
		&b.ID, &b.UserID, &b.UserEmail, &b.RideID, &b.Seats, &b.TotalPriceCents,
		&b.BookingDate, &b.Status, &b.EstimatedDuration, &b.EstimatedDistance, &b.CreatedAt, &canceledAt,
	)
	if err != nil {
		return nil, err
	}
	if canceledAt.Valid {
		b.CanceledAt = &canceledAt.Time
	}
	return &b, nil
}
