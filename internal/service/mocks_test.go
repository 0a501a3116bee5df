package service

import (
	"context"
	"time"

	"thumbsup/internal/models"

	"github.com/stretchr/testify/mock"
)

type mockInventoryStore struct {
	mock.Mock
}

func (m *mockInventoryStore) GetRide(ctx context.Context, id int64) (*models.Ride, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Ride), args.Error(1)
}
func (m *mockInventoryStore) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}
func (m *mockInventoryStore) BookSeats(ctx context.Context, b *models.Booking) (int, error) {
	args := m.Called(ctx, b)
	return args.Int(0), args.Error(1)
}
func (m *mockInventoryStore) CancelBookingAndRestore(ctx context.Context, id int64) (*models.Booking, *models.Ride, error) {
	args := m.Called(ctx, id)
	var b *models.Booking
	var r *models.Ride
	if args.Get(0) != nil {
		b = args.Get(0).(*models.Booking)
	}
	if args.Get(1) != nil {
		r = args.Get(1).(*models.Ride)
	}
	return b, r, args.Error(2)
}
func (m *mockInventoryStore) DeleteRideCascade(ctx context.Context, rideID, ownerID int64) ([]*models.Booking, error) {
	args := m.Called(ctx, rideID, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Booking), args.Error(1)
}

type mockRideStore struct {
	mock.Mock
}

func (m *mockRideStore) CreateRide(ctx context.Context, r *models.Ride) error {
	return m.Called(ctx, r).Error(0)
}
func (m *mockRideStore) GetRide(ctx context.Context, id int64) (*models.Ride, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Ride), args.Error(1)
}
func (m *mockRideStore) ListRides(ctx context.Context) ([]*models.Ride, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Ride), args.Error(1)
}
func (m *mockRideStore) ListRidesByCreator(ctx context.Context, userID int64) ([]*models.Ride, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Ride), args.Error(1)
}
func (m *mockRideStore) CountRides(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}
func (m *mockRideStore) UpdateRideEstimates(ctx context.Context, id, v int64, d, dist string) error {
	return m.Called(ctx, id, v, d, dist).Error(0)
}

type mockLedger struct {
	mock.Mock
}

func (m *mockLedger) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}
func (m *mockLedger) ListBookingsForUser(ctx context.Context, userID int64) ([]*models.BookingWithRide, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.BookingWithRide), args.Error(1)
}
func (m *mockLedger) ListBookingsForRide(ctx context.Context, rideID int64) ([]*models.Booking, error) {
	args := m.Called(ctx, rideID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Booking), args.Error(1)
}

type mockUserStore struct {
	mock.Mock
}

func (m *mockUserStore) CreateUser(ctx context.Context, u *models.User) error {
	return m.Called(ctx, u).Error(0)
}
func (m *mockUserStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}
func (m *mockUserStore) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}
func (m *mockUserStore) CreateTelegramLinkCode(ctx context.Context, userID int64, code string, expiresAt time.Time) error {
	return m.Called(ctx, userID, code, expiresAt).Error(0)
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishJSON(eventType string, payload any) error {
	return m.Called(eventType, payload).Error(0)
}

type mockSyncWorker struct {
	mock.Mock
}

func (m *mockSyncWorker) EnqueueTask(ctx context.Context, taskType string, bookingID int64, b *models.Booking, status string) error {
	return m.Called(ctx, taskType, bookingID, b, status).Error(0)
}

type mockRouter struct {
	mock.Mock
}

func (m *mockRouter) Route(ctx context.Context, from, to models.Coordinates) (*models.RouteInfo, error) {
	args := m.Called(ctx, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.RouteInfo), args.Error(1)
}
