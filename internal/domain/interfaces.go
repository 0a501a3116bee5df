package domain

import (
	"context"
	"time"

	"thumbsup/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// RideStore is the ride catalog.
type RideStore interface {
	CreateRide(ctx context.Context, ride *models.Ride) error
	GetRide(ctx context.Context, id int64) (*models.Ride, error)
	ListRides(ctx context.Context) ([]*models.Ride, error)
	ListRidesByCreator(ctx context.Context, userID int64) ([]*models.Ride, error)
	CountRides(ctx context.Context) (int, error)
	UpdateRideEstimates(ctx context.Context, rideID, fromVersion int64, duration, distance string) error
}

// BookingLedger is the read side of the booking records.
type BookingLedger interface {
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
	ListBookingsForUser(ctx context.Context, userID int64) ([]*models.BookingWithRide, error)
	ListBookingsForRide(ctx context.Context, rideID int64) ([]*models.Booking, error)
}

// InventoryStore groups the transactional seat operations.
type InventoryStore interface {
	GetRide(ctx context.Context, id int64) (*models.Ride, error)
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
	BookSeats(ctx context.Context, booking *models.Booking) (int, error)
	CancelBookingAndRestore(ctx context.Context, bookingID int64) (*models.Booking, *models.Ride, error)
	DeleteRideCascade(ctx context.Context, rideID, ownerID int64) ([]*models.Booking, error)
}

type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	CreateTelegramLinkCode(ctx context.Context, userID int64, code string, expiresAt time.Time) error
}

type SyncTaskStore interface {
	CreateSyncTask(ctx context.Context, task *models.SyncTask) error
	GetPendingSyncTasks(ctx context.Context, limit int) ([]models.SyncTask, error)
	UpdateSyncTaskStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error
	CountPendingSyncTasks(ctx context.Context) (int, error)
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
	GetRide(ctx context.Context, id int64) (*models.Ride, error)
}

type CacheRepository interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload any) error
}

type SyncWorker interface {
	EnqueueTask(ctx context.Context, taskType string, bookingID int64, booking *models.Booking, status string) error
}

type Geocoder interface {
	Search(ctx context.Context, query string) ([]models.Place, error)
}

type Router interface {
	Route(ctx context.Context, from, to models.Coordinates) (*models.RouteInfo, error)
}

type SheetsWriter interface {
	UpsertBooking(ctx context.Context, booking *models.Booking, ride *models.Ride) error
	UpdateBookingStatus(ctx context.Context, bookingID int64, status string) error
	DeleteBookingRow(ctx context.Context, bookingID int64) error
}

type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}
