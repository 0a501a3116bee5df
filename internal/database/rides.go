package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"thumbsup/internal/models"
)

const rideColumns = `id, departure_location, departure_address, departure_lat, departure_lng,
	destination, destination_address, destination_lat, destination_lng,
	departure_date, departure_time, seats_offered, seats_available, price_cents,
	description, estimated_duration, estimated_distance, created_by, creator_email,
	status, created_at, version`

func (db *DB) CreateRide(ctx context.Context, ride *models.Ride) error {
	query := `INSERT INTO rides (
				departure_location, departure_address, departure_lat, departure_lng,
				destination, destination_address, destination_lat, destination_lng,
				departure_date, departure_time, seats_offered, seats_available, price_cents,
				description, estimated_duration, estimated_distance, created_by, creator_email,
				status, created_at, version
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now()
	result, err := db.ExecContext(ctx, query,
		ride.DepartureLocation,
		ride.DepartureAddress,
		ride.DepartureLat,
		ride.DepartureLng,
		ride.Destination,
		ride.DestinationAddress,
		ride.DestinationLat,
		ride.DestinationLng,
		ride.DepartureDate,
		ride.DepartureTime,
		ride.SeatsOffered,
		ride.SeatsOffered,
		ride.PriceCents,
		ride.Description,
		ride.EstimatedDuration,
		ride.EstimatedDistance,
		ride.CreatedBy,
		ride.CreatorEmail,
		models.RideStatusActive,
		now,
		1,
	)
	if err != nil {
		return fmt.Errorf("failed to create ride: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	ride.ID = id
	ride.SeatsAvailable = ride.SeatsOffered
	ride.Status = models.RideStatusActive
	ride.CreatedAt = now
	ride.Version = 1

	return nil
}

func (db *DB) GetRide(ctx context.Context, id int64) (*models.Ride, error) {
	query := `SELECT ` + rideColumns + ` FROM rides WHERE id = ?`
	ride, err := scanRide(db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRideNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ride: %w", err)
	}
	return ride, nil
}

// ListRides returns every ride, newest first. No pagination.
func (db *DB) ListRides(ctx context.Context) ([]*models.Ride, error) {
	query := `SELECT ` + rideColumns + ` FROM rides ORDER BY created_at DESC, id DESC`
	return db.queryRides(ctx, query)
}

func (db *DB) ListRidesByCreator(ctx context.Context, userID int64) ([]*models.Ride, error) {
	query := `SELECT ` + rideColumns + ` FROM rides WHERE created_by = ? ORDER BY created_at DESC, id DESC`
	return db.queryRides(ctx, query, userID)
}

func (db *DB) CountRides(ctx context.Context) (int, error) {
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM rides`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count rides: %w", err)
	}
	return n, nil
}

// DeleteRide removes only the ride row. Bookings that reference it are left
// in place; use DeleteRideCascade to remove both.
func (db *DB) DeleteRide(ctx context.Context, id int64) error {
	result, err := db.ExecContext(ctx, `DELETE FROM rides WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete ride: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrRideNotFound
	}
	return nil
}

// AdjustSeats reads the current seat count and writes current+delta in a
// separate statement. It is not atomic: two callers that read the same value
// both write, and nothing stops the counter from leaving [0, seats_offered].
// Booking flows use BookSeats and CancelBookingAndRestore instead.
func (db *DB) AdjustSeats(ctx context.Context, rideID int64, delta int) (int, error) {
	var current int
	err := db.QueryRowContext(ctx, `SELECT seats_available FROM rides WHERE id = ?`, rideID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrRideNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read seats: %w", err)
	}

	next := current + delta
	_, err = db.ExecContext(ctx, `UPDATE rides SET seats_available = ?, version = version + 1 WHERE id = ?`, next, rideID)
	if err != nil {
		return 0, fmt.Errorf("failed to write seats: %w", err)
	}
	return next, nil
}

// UpdateRideEstimates stores route estimates resolved after posting.
func (db *DB) UpdateRideEstimates(ctx context.Context, rideID, fromVersion int64, duration, distance string) error {
	query := `UPDATE rides SET estimated_duration = ?, estimated_distance = ?, version = version + 1
              WHERE id = ? AND version = ?`
	result, err := db.ExecContext(ctx, query, duration, distance, rideID, fromVersion)
	if err != nil {
		return fmt.Errorf("failed to update ride estimates: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrConcurrentModification
	}
	return nil
}

func (db *DB) queryRides(ctx context.Context, query string, args ...any) ([]*models.Ride, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list rides: %w", err)
	}
	defer rows.Close()

	rides := make([]*models.Ride, 0)
	for rows.Next() {
		ride, err := scanRide(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ride: %w", err)
		}
		rides = append(rides, ride)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rides: %w", err)
	}
	return rides, nil
}

func scanRide(row rowScanner) (*models.Ride, error) {
	var r models.Ride
	err := row.Scan(
		&r.ID, &r.DepartureLocation, &r.DepartureAddress, &r.DepartureLat, &r.DepartureLng,
		&r.Destination, &r.DestinationAddress, &r.DestinationLat, &r.DestinationLng,
		&r.DepartureDate, &r.DepartureTime, &r.SeatsOffered, &r.SeatsAvailable, &r.PriceCents,
		&r.Description, &r.EstimatedDuration, &r.EstimatedDistance, &r.CreatedBy, &r.CreatorEmail,
		&r.Status, &r.CreatedAt, &r.Version,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}
