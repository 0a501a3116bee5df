package service

import (
	"context"
	"errors"
	"testing"

	"thumbsup/internal/database"
	"thumbsup/internal/events"
	"thumbsup/internal/models"
	"thumbsup/internal/ticket"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func validRide() *models.Ride {
	return &models.Ride{
		DepartureLocation: " Lisbon ",
		Destination:       "Porto",
		DepartureDate:     "2026-11-02",
		DepartureTime:     "08:30",
		SeatsOffered:      3,
		PriceCents:        1500,
	}
}

func TestValidateRide(t *testing.T) {
	tests := []struct {
		name   string
		modify func(r *models.Ride)
		ok     bool
	}{
		{"valid", func(*models.Ride) {}, true},
		{"no time", func(r *models.Ride) { r.DepartureTime = "" }, true},
		{"free ride", func(r *models.Ride) { r.PriceCents = 0 }, true},
		{"max seats", func(r *models.Ride) { r.SeatsOffered = models.MaxSeatsOffered }, true},
		{"missing from", func(r *models.Ride) { r.DepartureLocation = "  " }, false},
		{"missing to", func(r *models.Ride) { r.Destination = "" }, false},
		{"bad date", func(r *models.Ride) { r.DepartureDate = "02/11/2026" }, false},
		{"bad time", func(r *models.Ride) { r.DepartureTime = "8.30am" }, false},
		{"zero seats", func(r *models.Ride) { r.SeatsOffered = 0 }, false},
		{"too many seats", func(r *models.Ride) { r.SeatsOffered = 9 }, false},
		{"negative price", func(r *models.Ride) { r.PriceCents = -1 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validRide()
			tt.modify(r)
			err := ValidateRide(r)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}

	assert.ErrorIs(t, ValidateRide(nil), ErrInvalidInput)
}

func TestRideService_CreateRide(t *testing.T) {
	ctx := context.Background()
	sess := models.NewSession(1, "driver@example.com")

	t.Run("FillsEstimates", func(t *testing.T) {
		rides := new(mockRideStore)
		router := new(mockRouter)
		bus := new(mockPublisher)
		svc := NewRideService(rides, nil, nil, router, bus, testLogger())

		r := validRide()
		r.DepartureLat, r.DepartureLng = 38.7223, -9.1393
		r.DestinationLat, r.DestinationLng = 41.1579, -8.6291

		router.On("Route", ctx,
			models.Coordinates{Lat: 38.7223, Lng: -9.1393},
			models.Coordinates{Lat: 41.1579, Lng: -8.6291},
		).Return(&models.RouteInfo{DurationText: "3 hours 5 mins", DistanceText: "313 km"}, nil).Once()
		rides.On("CreateRide", ctx, mock.MatchedBy(func(r *models.Ride) bool {
			return r.CreatedBy == 1 && r.CreatorEmail == "driver@example.com" &&
				r.EstimatedDistance == "313 km" && r.DepartureLocation == "Lisbon"
		})).Run(func(args mock.Arguments) {
			args.Get(1).(*models.Ride).ID = 42
		}).Return(nil).Once()
		bus.On("PublishJSON", events.EventRideCreated, mock.MatchedBy(func(p events.RideEventPayload) bool {
			return p.RideID == 42 && p.SeatsAvailable == 3
		})).Return(nil).Once()

		require.NoError(t, svc.CreateRide(ctx, sess, r))
		assert.Equal(t, 3, r.SeatsAvailable)
		rides.AssertExpectations(t)
		router.AssertExpectations(t)
		bus.AssertExpectations(t)
	})

	t.Run("RouteFailureIsNotFatal", func(t *testing.T) {
		rides := new(mockRideStore)
		router := new(mockRouter)
		svc := NewRideService(rides, nil, nil, router, nil, testLogger())

		r := validRide()
		r.DepartureLat, r.DepartureLng = 1, 1
		r.DestinationLat, r.DestinationLng = 2, 2
		router.On("Route", ctx, mock.Anything, mock.Anything).Return(nil, errors.New("timeout")).Once()
		rides.On("CreateRide", ctx, mock.Anything).Return(nil).Once()

		require.NoError(t, svc.CreateRide(ctx, sess, r))
		assert.Empty(t, r.EstimatedDuration)
	})

	t.Run("KeepsSuppliedEstimates", func(t *testing.T) {
		rides := new(mockRideStore)
		router := new(mockRouter)
		svc := NewRideService(rides, nil, nil, router, nil, testLogger())

		r := validRide()
		r.DepartureLat, r.DepartureLng = 1, 1
		r.DestinationLat, r.DestinationLng = 2, 2
		r.EstimatedDuration = "2 hours"
		rides.On("CreateRide", ctx, mock.Anything).Return(nil).Once()

		require.NoError(t, svc.CreateRide(ctx, sess, r))
		router.AssertNotCalled(t, "Route", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Unauthenticated", func(t *testing.T) {
		rides := new(mockRideStore)
		svc := NewRideService(rides, nil, nil, nil, nil, testLogger())

		err := svc.CreateRide(ctx, models.Anonymous(), validRide())
		assert.ErrorIs(t, err, ErrUnauthenticated)
		rides.AssertNotCalled(t, "CreateRide", mock.Anything, mock.Anything)
	})

	t.Run("Invalid", func(t *testing.T) {
		rides := new(mockRideStore)
		svc := NewRideService(rides, nil, nil, nil, nil, testLogger())

		r := validRide()
		r.SeatsOffered = 0
		assert.ErrorIs(t, svc.CreateRide(ctx, sess, r), ErrInvalidInput)
	})
}

func TestRideService_ListRides(t *testing.T) {
	ctx := context.Background()
	rides := new(mockRideStore)
	svc := NewRideService(rides, nil, nil, nil, nil, testLogger())

	all := []*models.Ride{
		{ID: 1, DepartureLocation: "Lisbon", Destination: "Porto", DepartureDate: "2026-11-02", SeatsAvailable: 2},
		{ID: 2, DepartureLocation: "Porto", Destination: "Braga", DepartureDate: "2026-11-03", SeatsAvailable: 0},
	}
	rides.On("ListRides", ctx).Return(all, nil)

	got, err := svc.ListRides(ctx, models.RideFilter{})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = svc.ListRides(ctx, models.RideFilter{From: "porto"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(2), got[0].ID)

	got, err = svc.ListRides(ctx, models.RideFilter{MinSeats: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(1), got[0].ID)
}

func TestRideService_ManifestAndTicket(t *testing.T) {
	ctx := context.Background()
	rides := new(mockRideStore)
	ledger := new(mockLedger)
	svc := NewRideService(rides, ledger, nil, nil, nil, testLogger())

	ride := &models.Ride{ID: 10, CreatedBy: 1}
	rides.On("GetRide", ctx, int64(10)).Return(ride, nil)
	ledger.On("ListBookingsForRide", ctx, int64(10)).Return([]*models.Booking{{ID: 3}, {ID: 1}}, nil)
	ledger.On("GetBooking", ctx, int64(3)).Return(&models.Booking{ID: 3, UserID: 2, RideID: 10}, nil)

	_, bookings, err := svc.RideManifest(ctx, models.NewSession(1, ""), 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), bookings[0].ID)

	_, _, err = svc.RideManifest(ctx, models.NewSession(2, ""), 10)
	assert.ErrorIs(t, err, ErrForbidden)

	b, r, err := svc.BookingTicket(ctx, models.NewSession(2, ""), 3)
	require.NoError(t, err)
	assert.Equal(t, int64(3), b.ID)
	assert.Equal(t, int64(10), r.ID)

	_, _, err = svc.BookingTicket(ctx, models.NewSession(1, ""), 3)
	assert.ErrorIs(t, err, ErrForbidden)

	_, _, err = svc.BookingTicket(ctx, models.Anonymous(), 3)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	// билет остаётся доступен после удаления поездки
	ledger.On("GetBooking", ctx, int64(4)).Return(&models.Booking{ID: 4, UserID: 2, RideID: 11}, nil)
	rides.On("GetRide", ctx, int64(11)).Return(nil, database.ErrRideNotFound)
	b, r, err = svc.BookingTicket(ctx, models.NewSession(2, ""), 4)
	require.NoError(t, err)
	assert.Equal(t, int64(4), b.ID)
	assert.Nil(t, r)
}

func TestRideService_VerifyTicket(t *testing.T) {
	ctx := context.Background()
	rides := new(mockRideStore)
	ledger := new(mockLedger)
	svc := NewRideService(rides, ledger, nil, nil, nil, testLogger())

	booking := &models.Booking{ID: 3, UserID: 2, RideID: 10, Status: models.StatusConfirmed}
	ledger.On("GetBooking", ctx, int64(3)).Return(booking, nil)
	rides.On("GetRide", ctx, int64(10)).Return(&models.Ride{ID: 10, CreatedBy: 1}, nil)

	got, err := svc.VerifyTicket(ctx, models.NewSession(1, ""), ticket.Payload(booking))
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.ID)

	_, err = svc.VerifyTicket(ctx, models.NewSession(2, ""), ticket.Payload(booking))
	assert.ErrorIs(t, err, ErrForbidden, "only the driver scans tickets")

	_, err = svc.VerifyTicket(ctx, models.NewSession(1, ""), "thumbsup:booking:3:AAAAAAAAAA")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.VerifyTicket(ctx, models.NewSession(1, ""), "hello")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.VerifyTicket(ctx, models.Anonymous(), ticket.Payload(booking))
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestRideService_Profile(t *testing.T) {
	ctx := context.Background()
	rides := new(mockRideStore)
	ledger := new(mockLedger)
	users := new(mockUserStore)
	svc := NewRideService(rides, ledger, users, nil, nil, testLogger())

	users.On("GetUserByID", ctx, int64(1)).Return(&models.User{ID: 1, Email: "a@example.com"}, nil)
	rides.On("ListRidesByCreator", ctx, int64(1)).Return([]*models.Ride{{ID: 5}}, nil)
	ledger.On("ListBookingsForUser", ctx, int64(1)).Return([]*models.BookingWithRide{}, nil)

	p, err := svc.Profile(ctx, models.NewSession(1, "a@example.com"))
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", p.User.Email)
	assert.Len(t, p.Rides, 1)
	assert.Empty(t, p.Bookings)

	users.On("GetUserByID", ctx, int64(9)).Return(nil, database.ErrUserNotFound)
	_, err = svc.Profile(ctx, models.NewSession(9, ""))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRideService_SeedRides(t *testing.T) {
	db, err := database.NewDB(":memory:", testLogger())
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	driver := &models.User{Email: "ines@example.com", PasswordHash: "x"}
	require.NoError(t, db.CreateUser(ctx, driver))
	svc := NewRideService(db, db, db, nil, nil, testLogger())

	seeded := func() *models.Ride {
		r := validRide()
		r.CreatorEmail = " Ines@Example.com "
		return r
	}

	t.Run("UnknownCreator", func(t *testing.T) {
		stranger := seeded()
		stranger.CreatorEmail = "nobody@example.com"
		n, err := svc.SeedRides(ctx, []*models.Ride{seeded(), stranger})
		assert.ErrorIs(t, err, ErrInvalidInput)
		assert.Zero(t, n)

		count, err := db.CountRides(ctx)
		require.NoError(t, err)
		assert.Zero(t, count, "nothing is stored when one ride is rejected")
	})

	t.Run("MissingCreator", func(t *testing.T) {
		_, err := svc.SeedRides(ctx, []*models.Ride{validRide()})
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("OwnedByCreator", func(t *testing.T) {
		n, err := svc.SeedRides(ctx, []*models.Ride{seeded(), seeded()})
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		n, err = svc.SeedRides(ctx, []*models.Ride{seeded()})
		require.NoError(t, err)
		assert.Zero(t, n, "non-empty catalog is left alone")

		mine, err := svc.MyRides(ctx, models.NewSession(driver.ID, driver.Email))
		require.NoError(t, err)
		require.Len(t, mine, 2)
		assert.Equal(t, 3, mine[0].SeatsAvailable)
		assert.Equal(t, "ines@example.com", mine[0].CreatorEmail)

		// водитель может управлять засеянной поездкой
		inventory := NewInventoryService(db, nil, nil, testLogger())
		_, err = inventory.DeleteRide(ctx, models.NewSession(driver.ID, driver.Email), mine[0].ID)
		require.NoError(t, err)
	})
}
