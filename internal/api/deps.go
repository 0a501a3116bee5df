package api

import (
	"context"

	"thumbsup/internal/models"
	"thumbsup/internal/service"
)

// RideCatalog is the read and post side used by both transports.
type RideCatalog interface {
	CreateRide(ctx context.Context, sess models.Session, ride *models.Ride) error
	GetRide(ctx context.Context, id int64) (*models.Ride, error)
	ListRides(ctx context.Context, filter models.RideFilter) ([]*models.Ride, error)
	MyRides(ctx context.Context, sess models.Session) ([]*models.Ride, error)
	MyBookings(ctx context.Context, sess models.Session) ([]*models.BookingWithRide, error)
	Profile(ctx context.Context, sess models.Session) (*service.Profile, error)
	RideManifest(ctx context.Context, sess models.Session, rideID int64) (*models.Ride, []*models.Booking, error)
	BookingTicket(ctx context.Context, sess models.Session, bookingID int64) (*models.Booking, *models.Ride, error)
	VerifyTicket(ctx context.Context, sess models.Session, payload string) (*models.Booking, error)
}

// Inventory changes seat counts.
type Inventory interface {
	Book(ctx context.Context, sess models.Session, rideID int64, seats int) (*models.Booking, int, error)
	Cancel(ctx context.Context, sess models.Session, bookingID int64) (*models.Booking, *models.Ride, error)
	DeleteRide(ctx context.Context, sess models.Session, rideID int64) ([]*models.Booking, error)
}

// Identity registers users and resolves bearer tokens.
type Identity interface {
	Register(ctx context.Context, email, password, displayName string) (*models.User, error)
	Login(ctx context.Context, email, password string) (*models.User, service.AccessToken, error)
	IssueToken(user *models.User) (service.AccessToken, error)
	ParseToken(raw string) (models.Session, error)
	TelegramLinkCode(ctx context.Context, sess models.Session) (service.TelegramLink, error)
}
