package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"thumbsup/internal/database"
	"thumbsup/internal/domain"
	"thumbsup/internal/events"
	"thumbsup/internal/models"
	"thumbsup/internal/ticket"

	"github.com/rs/zerolog"
)

// RideService handles ride posting and the read side of the catalog and ledger.
type RideService struct {
	rides    domain.RideStore
	ledger   domain.BookingLedger
	users    domain.UserStore
	router   domain.Router
	eventBus domain.EventPublisher
	logger   *zerolog.Logger
}

func NewRideService(
	rides domain.RideStore,
	ledger domain.BookingLedger,
	users domain.UserStore,
	router domain.Router,
	eventBus domain.EventPublisher,
	logger *zerolog.Logger,
) *RideService {
	l := logger.With().Str("component", "rides").Logger()
	return &RideService{
		rides:    rides,
		ledger:   ledger,
		users:    users,
		router:   router,
		eventBus: eventBus,
		logger:   &l,
	}
}

// Profile is what a signed-in user sees about themselves.
type Profile struct {
	User     *models.User              `json:"user"`
	Rides    []*models.Ride            `json:"rides"`
	Bookings []*models.BookingWithRide `json:"bookings"`
}

// CreateRide validates and stores a ride posted by the session user.
func (s *RideService) CreateRide(ctx context.Context, sess models.Session, ride *models.Ride) error {
	if !sess.Authenticated {
		return ErrUnauthenticated
	}
	if err := ValidateRide(ride); err != nil {
		return err
	}

	ride.CreatedBy = sess.UserID
	ride.CreatorEmail = sess.Email
	ride.SeatsAvailable = ride.SeatsOffered

	if ride.HasCoordinates() && ride.EstimatedDuration == "" && ride.EstimatedDistance == "" {
		s.fillEstimates(ctx, ride)
	}

	if err := s.rides.CreateRide(ctx, ride); err != nil {
		err = storeError(err)
		s.logger.Error().Err(err).Int64("user_id", sess.UserID).Msg("create ride failed")
		return err
	}

	s.logger.Info().
		Int64("ride_id", ride.ID).
		Int64("user_id", sess.UserID).
		Str("from", ride.DepartureLocation).
		Str("to", ride.Destination).
		Int("seats", ride.SeatsOffered).
		Msg("ride created")

	if s.eventBus != nil {
		if err := s.eventBus.PublishJSON(events.EventRideCreated, rideEventPayload(ride)); err != nil {
			s.logger.Error().Err(fmt.Errorf("%w: %w", ErrPartialFailure, err)).Int64("ride_id", ride.ID).Msg("publish event error")
		}
	}
	return nil
}

// ValidateRide checks a ride posting the way the post form did.
func ValidateRide(ride *models.Ride) error {
	if ride == nil {
		return fmt.Errorf("%w: ride is required", ErrInvalidInput)
	}
	ride.DepartureLocation = strings.TrimSpace(ride.DepartureLocation)
	ride.Destination = strings.TrimSpace(ride.Destination)

	switch {
	case ride.DepartureLocation == "":
		return fmt.Errorf("%w: departure location is required", ErrInvalidInput)
	case ride.Destination == "":
		return fmt.Errorf("%w: destination is required", ErrInvalidInput)
	}
	if _, err := time.Parse(models.DateLayout, ride.DepartureDate); err != nil {
		return fmt.Errorf("%w: departure date must be YYYY-MM-DD", ErrInvalidInput)
	}
	if ride.DepartureTime != "" {
		if _, err := time.Parse(models.TimeLayout, ride.DepartureTime); err != nil {
			return fmt.Errorf("%w: departure time must be HH:MM", ErrInvalidInput)
		}
	}
	if ride.SeatsOffered < 1 || ride.SeatsOffered > models.MaxSeatsOffered {
		return fmt.Errorf("%w: seats must be between 1 and %d", ErrInvalidInput, models.MaxSeatsOffered)
	}
	if ride.PriceCents < 0 {
		return fmt.Errorf("%w: price must not be negative", ErrInvalidInput)
	}
	return nil
}

func (s *RideService) fillEstimates(ctx context.Context, ride *models.Ride) {
	if s.router == nil {
		return
	}
	route, err := s.router.Route(ctx,
		models.Coordinates{Lat: ride.DepartureLat, Lng: ride.DepartureLng},
		models.Coordinates{Lat: ride.DestinationLat, Lng: ride.DestinationLng},
	)
	if err != nil {
		s.logger.Warn().Err(err).Msg("route estimate unavailable")
		return
	}
	ride.EstimatedDuration = route.DurationText
	ride.EstimatedDistance = route.DistanceText
}

func (s *RideService) GetRide(ctx context.Context, id int64) (*models.Ride, error) {
	ride, err := s.rides.GetRide(ctx, id)
	if err != nil {
		return nil, storeError(err)
	}
	return ride, nil
}

// ListRides returns the catalog, optionally narrowed by filter.
func (s *RideService) ListRides(ctx context.Context, filter models.RideFilter) ([]*models.Ride, error) {
	rides, err := s.rides.ListRides(ctx)
	if err != nil {
		return nil, storeError(err)
	}
	if filter.IsZero() {
		return rides, nil
	}

	out := make([]*models.Ride, 0, len(rides))
	for _, r := range rides {
		if filter.Match(r) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *RideService) MyRides(ctx context.Context, sess models.Session) ([]*models.Ride, error) {
	if !sess.Authenticated {
		return nil, ErrUnauthenticated
	}
	rides, err := s.rides.ListRidesByCreator(ctx, sess.UserID)
	if err != nil {
		return nil, storeError(err)
	}
	return rides, nil
}

// MyBookings lists active bookings of the session user. Bookings whose ride
// is gone never appear.
func (s *RideService) MyBookings(ctx context.Context, sess models.Session) ([]*models.BookingWithRide, error) {
	if !sess.Authenticated {
		return nil, ErrUnauthenticated
	}
	bookings, err := s.ledger.ListBookingsForUser(ctx, sess.UserID)
	if err != nil {
		return nil, storeError(err)
	}
	return bookings, nil
}

func (s *RideService) Profile(ctx context.Context, sess models.Session) (*Profile, error) {
	if !sess.Authenticated {
		return nil, ErrUnauthenticated
	}
	user, err := s.users.GetUserByID(ctx, sess.UserID)
	if err != nil {
		return nil, storeError(err)
	}
	rides, err := s.MyRides(ctx, sess)
	if err != nil {
		return nil, err
	}
	bookings, err := s.MyBookings(ctx, sess)
	if err != nil {
		return nil, err
	}
	return &Profile{User: user, Rides: rides, Bookings: bookings}, nil
}

// RideManifest returns a ride and all its bookings, newest last. Only the
// ride creator may read it.
func (s *RideService) RideManifest(ctx context.Context, sess models.Session, rideID int64) (*models.Ride, []*models.Booking, error) {
	if !sess.Authenticated {
		return nil, nil, ErrUnauthenticated
	}
	ride, err := s.rides.GetRide(ctx, rideID)
	if err != nil {
		return nil, nil, storeError(err)
	}
	if ride.CreatedBy != sess.UserID {
		return nil, nil, fmt.Errorf("%w: ride %d belongs to another user", ErrForbidden, rideID)
	}
	bookings, err := s.ledger.ListBookingsForRide(ctx, rideID)
	if err != nil {
		return nil, nil, storeError(err)
	}
	sort.SliceStable(bookings, func(i, j int) bool { return bookings[i].ID < bookings[j].ID })
	return ride, bookings, nil
}

// BookingTicket returns a booking of the session user and its ride. The ride
// is nil when it has been deleted since.
func (s *RideService) BookingTicket(ctx context.Context, sess models.Session, bookingID int64) (*models.Booking, *models.Ride, error) {
	if !sess.Authenticated {
		return nil, nil, ErrUnauthenticated
	}
	booking, err := s.ledger.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, nil, storeError(err)
	}
	if booking.UserID != sess.UserID {
		return nil, nil, fmt.Errorf("%w: booking %d belongs to another user", ErrForbidden, bookingID)
	}
	ride, err := s.rides.GetRide(ctx, booking.RideID)
	if errors.Is(err, database.ErrRideNotFound) {
		return booking, nil, nil
	}
	if err != nil {
		return nil, nil, storeError(err)
	}
	return booking, ride, nil
}

// VerifyTicket resolves a scanned ticket for the driver of the ticket's ride.
// The booking is returned whatever its status so the driver sees
// cancellations too.
func (s *RideService) VerifyTicket(ctx context.Context, sess models.Session, payload string) (*models.Booking, error) {
	if !sess.Authenticated {
		return nil, ErrUnauthenticated
	}
	bookingID, err := ticket.BookingID(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	booking, err := s.ledger.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, storeError(err)
	}
	ride, err := s.rides.GetRide(ctx, booking.RideID)
	if err != nil {
		return nil, storeError(err)
	}
	if ride.CreatedBy != sess.UserID {
		return nil, fmt.Errorf("%w: ride %d belongs to another user", ErrForbidden, ride.ID)
	}
	if !ticket.Verify(strings.TrimSpace(payload), booking) {
		s.logger.Warn().Int64("booking_id", bookingID).Int64("user_id", sess.UserID).Msg("ticket code mismatch")
		return nil, fmt.Errorf("%w: ticket code does not match", ErrInvalidInput)
	}
	return booking, nil
}

// SeedRides loads fixture rides into an empty catalog and returns how many
// were created. Each ride names its driver by creator_email; the account must
// exist so the driver can manage the ride later.
func (s *RideService) SeedRides(ctx context.Context, rides []*models.Ride) (int, error) {
	count, err := s.rides.CountRides(ctx)
	if err != nil {
		return 0, storeError(err)
	}
	if count > 0 {
		return 0, nil
	}

	// сначала проверяем весь файл, чтобы не оставить каталог наполовину заполненным
	for _, r := range rides {
		if err := ValidateRide(r); err != nil {
			return 0, fmt.Errorf("seed ride %s -> %s: %w", r.DepartureLocation, r.Destination, err)
		}
		if err := s.resolveCreator(ctx, r); err != nil {
			return 0, fmt.Errorf("seed ride %s -> %s: %w", r.DepartureLocation, r.Destination, err)
		}
	}

	created := 0
	for _, r := range rides {
		r.SeatsAvailable = r.SeatsOffered
		if err := s.rides.CreateRide(ctx, r); err != nil {
			return created, storeError(err)
		}
		created++
	}
	s.logger.Info().Int("rides", created).Msg("catalog seeded")
	return created, nil
}

func (s *RideService) resolveCreator(ctx context.Context, r *models.Ride) error {
	email := strings.TrimSpace(r.CreatorEmail)
	if email == "" {
		return fmt.Errorf("%w: creator_email is required", ErrInvalidInput)
	}
	user, err := s.users.GetUserByEmail(ctx, email)
	if errors.Is(err, database.ErrUserNotFound) {
		return fmt.Errorf("%w: no account for creator %s", ErrInvalidInput, email)
	}
	if err != nil {
		return storeError(err)
	}
	r.CreatedBy = user.ID
	r.CreatorEmail = user.Email
	return nil
}
