package api

import (
	"context"
	"io"
	"testing"
	"time"

	"thumbsup/internal/config"
	"thumbsup/internal/database"
	"thumbsup/internal/events"
	"thumbsup/internal/models"
	"thumbsup/internal/service"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type testStack struct {
	db        *database.DB
	bus       *events.EventBus
	auth      *service.AuthService
	rides     *service.RideService
	inventory *service.InventoryService
	logger    *zerolog.Logger
}

func newTestStack(t *testing.T) *testStack {
	t.Helper()
	logger := zerolog.New(io.Discard)

	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	bus := events.NewEventBus()
	authCfg := config.AuthConfig{
		JWTSecret:  "api-test-secret-0123456789",
		TokenTTL:   time.Hour,
		BcryptCost: bcrypt.MinCost,
		Issuer:     "thumbsup",
	}

	return &testStack{
		db:        db,
		bus:       bus,
		auth:      service.NewAuthService(db, authCfg, &logger),
		rides:     service.NewRideService(db, db, db, nil, bus, &logger),
		inventory: service.NewInventoryService(db, bus, nil, &logger),
		logger:    &logger,
	}
}

// user registers an account and returns it with a bearer token.
func (s *testStack) user(t *testing.T, email string) (*models.User, string) {
	t.Helper()
	u, err := s.auth.Register(context.Background(), email, "secret123", email)
	require.NoError(t, err)
	tok, err := s.auth.IssueToken(u)
	require.NoError(t, err)
	return u, tok.Token
}

func (s *testStack) ride(t *testing.T, owner *models.User, seats int, priceCents int64) *models.Ride {
	t.Helper()
	r := &models.Ride{
		DepartureLocation: "Lisbon",
		Destination:       "Porto",
		DepartureDate:     "2026-11-02",
		DepartureTime:     "09:30",
		SeatsOffered:      seats,
		PriceCents:        priceCents,
	}
	require.NoError(t, s.rides.CreateRide(context.Background(), models.NewSession(owner.ID, owner.Email), r))
	return r
}
