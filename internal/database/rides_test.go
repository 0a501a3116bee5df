package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"thumbsup/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *DB {
	logger := zerolog.New(os.Stdout)
	db, err := NewDB(":memory:", &logger)
	require.NoError(t, err)
	return db
}

func newTestRide(createdBy int64, seats int) *models.Ride {
	return &models.Ride{
		DepartureLocation: "Lisbon",
		Destination:       "Porto",
		DepartureDate:     "2026-11-02",
		DepartureTime:     "08:30",
		SeatsOffered:      seats,
		PriceCents:        1500,
		CreatedBy:         createdBy,
		CreatorEmail:      "driver@example.com",
	}
}

func TestNewDB_DirectoryCreation(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "dir", "test.db")
	logger := zerolog.Nop()

	db, err := NewDB(dbPath, &logger)
	require.NoError(t, err)
	defer db.Close()

	assert.FileExists(t, dbPath)
	assert.Equal(t, dbPath, db.Path())
	assert.NoError(t, db.HealthCheck(context.Background()))
}

func TestNewDB_Reopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "thumbsup.db")
	logger := zerolog.Nop()

	db, err := NewDB(dbPath, &logger)
	require.NoError(t, err)
	require.NoError(t, db.CreateRide(context.Background(), newTestRide(1, 3)))
	require.NoError(t, db.Close())

	// migrations are idempotent and data survives
	db, err = NewDB(dbPath, nil)
	require.NoError(t, err)
	defer db.Close()

	n, err := db.CountRides(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCreateAndGetRide(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	ride := newTestRide(7, 4)
	require.NoError(t, db.CreateRide(ctx, ride))

	assert.NotZero(t, ride.ID)
	assert.Equal(t, 4, ride.SeatsAvailable)
	assert.Equal(t, models.RideStatusActive, ride.Status)
	assert.Equal(t, int64(1), ride.Version)

	got, err := db.GetRide(ctx, ride.ID)
	require.NoError(t, err)
	assert.Equal(t, "Lisbon", got.DepartureLocation)
	assert.Equal(t, "Porto", got.Destination)
	assert.Equal(t, 4, got.SeatsOffered)
	assert.Equal(t, 4, got.SeatsAvailable)
	assert.Equal(t, int64(1500), got.PriceCents)
	assert.Equal(t, int64(7), got.CreatedBy)

	_, err = db.GetRide(ctx, 9999)
	assert.ErrorIs(t, err, ErrRideNotFound)
}

func TestListRides(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()

	rides, err := db.ListRides(ctx)
	require.NoError(t, err)
	assert.Empty(t, rides)

	first := newTestRide(1, 2)
	second := newTestRide(2, 3)
	second.Destination = "Faro"
	require.NoError(t, db.CreateRide(ctx, first))
	require.NoError(t, db.CreateRide(ctx, second))

	rides, err = db.ListRides(ctx)
	require.NoError(t, err)
	require.Len(t, rides, 2)
	assert.Equal(t, second.ID, rides[0].ID, "newest first")

	mine, err := db.ListRidesByCreator(ctx, 1)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, first.ID, mine[0].ID)
}

func TestDeleteRide_LeavesBookings(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	ride := newTestRide(1, 3)
	require.NoError(t, db.CreateRide(ctx, ride))
	booking := &models.Booking{UserID: 2, RideID: ride.ID, Seats: 1}
	require.NoError(t, db.CreateBooking(ctx, booking, ride.PriceCents))

	require.NoError(t, db.DeleteRide(ctx, ride.ID))
	assert.ErrorIs(t, db.DeleteRide(ctx, ride.ID), ErrRideNotFound)

	// the ledger row is orphaned, and the user listing hides it
	orphan, err := db.GetBooking(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, ride.ID, orphan.RideID)

	listed, err := db.ListBookingsForUser(ctx, 2)
	require.NoError(t, err)
	assert.Empty(t, listed)
}

func TestAdjustSeats(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	ride := newTestRide(1, 3)
	require.NoError(t, db.CreateRide(ctx, ride))

	left, err := db.AdjustSeats(ctx, ride.ID, -2)
	require.NoError(t, err)
	assert.Equal(t, 1, left)

	left, err = db.AdjustSeats(ctx, ride.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, left)

	_, err = db.AdjustSeats(ctx, 9999, -1)
	assert.ErrorIs(t, err, ErrRideNotFound)
}

func TestUpdateRideEstimates(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	ride := newTestRide(1, 3)
	require.NoError(t, db.CreateRide(ctx, ride))

	require.NoError(t, db.UpdateRideEstimates(ctx, ride.ID, ride.Version, "3 hours 5 mins", "313 km"))

	// stale version
	err := db.UpdateRideEstimates(ctx, ride.ID, ride.Version, "x", "y")
	assert.ErrorIs(t, err, ErrConcurrentModification)

	got, err := db.GetRide(ctx, ride.ID)
	require.NoError(t, err)
	assert.Equal(t, "3 hours 5 mins", got.EstimatedDuration)
	assert.Equal(t, "313 km", got.EstimatedDistance)
	assert.Equal(t, int64(2), got.Version)
}

func TestPrefixed(t *testing.T) {
	assert.Equal(t, "r.id, r.name, r.created_at", prefixed("r", "id, name,\n\tcreated_at"))
}

func TestDB_ClosedErrors(t *testing.T) {
	db := setupTestDB(t)
	require.NoError(t, db.Close())

	ctx := context.Background()
	assert.Error(t, db.CreateRide(ctx, newTestRide(1, 1)))
	_, err := db.ListRides(ctx)
	assert.Error(t, err)
	_, err = db.GetRide(ctx, 1)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrRideNotFound)
	_, err = db.BookSeats(ctx, &models.Booking{RideID: 1, Seats: 1})
	assert.Error(t, err)
	assert.Error(t, db.HealthCheck(ctx))
}
