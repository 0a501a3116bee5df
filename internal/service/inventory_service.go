package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"thumbsup/internal/domain"
	"thumbsup/internal/events"
	"thumbsup/internal/export"
	"thumbsup/internal/metrics"
	"thumbsup/internal/models"
	"thumbsup/internal/worker"

	"github.com/rs/zerolog"
)

// Sheet mirror task types.
const (
	SyncUpsert       = worker.TaskUpsert
	SyncUpdateStatus = worker.TaskUpdateStatus
	SyncDelete       = worker.TaskDelete
)

// InventoryService keeps ride seat counts and the booking ledger consistent.
// Every state change is one store transaction; events, sheet sync and
// notifications follow the commit.
type InventoryService struct {
	store      domain.InventoryStore
	eventBus   domain.EventPublisher
	syncWorker domain.SyncWorker
	archiveDir string
	logger     *zerolog.Logger
}

func NewInventoryService(store domain.InventoryStore, eventBus domain.EventPublisher, syncWorker domain.SyncWorker, logger *zerolog.Logger) *InventoryService {
	l := logger.With().Str("component", "inventory").Logger()
	return &InventoryService{
		store:      store,
		eventBus:   eventBus,
		syncWorker: syncWorker,
		logger:     &l,
	}
}

// ArchiveDeletedRides makes DeleteRide save the passenger manifest of every
// deleted ride into dir. An empty dir turns archiving off.
func (s *InventoryService) ArchiveDeletedRides(dir string) {
	s.archiveDir = dir
}

// Book reserves seats on a ride for the session user and returns the booking
// together with the seats left on the ride.
func (s *InventoryService) Book(ctx context.Context, sess models.Session, rideID int64, seats int) (*models.Booking, int, error) {
	started := time.Now()

	if seats < 1 {
		metrics.ObserveBooking("invalid", started)
		return nil, 0, fmt.Errorf("%w: requested %d", ErrInvalidSeatCount, seats)
	}

	ride, err := s.store.GetRide(ctx, rideID)
	if err != nil {
		metrics.ObserveBooking("error", started)
		return nil, 0, storeError(err)
	}
	if seats > ride.SeatsAvailable {
		metrics.ObserveBooking("invalid", started)
		return nil, 0, fmt.Errorf("%w: requested %d, available %d", ErrInvalidSeatCount, seats, ride.SeatsAvailable)
	}

	if !sess.Authenticated {
		metrics.ObserveBooking("unauthenticated", started)
		return nil, 0, ErrUnauthenticated
	}

	booking := &models.Booking{
		UserID:    sess.UserID,
		UserEmail: sess.Email,
		RideID:    rideID,
		Seats:     seats,
	}

	// the read above is advisory; the store re-checks under the write lock
	remaining, err := s.store.BookSeats(ctx, booking)
	if err != nil {
		err = storeError(err)
		if errors.Is(err, ErrInvalidSeatCount) {
			metrics.IncSeatConflict()
			metrics.ObserveBooking("conflict", started)
			s.logger.Info().Int64("ride_id", rideID).Int("seats", seats).Msg("seat request lost to a concurrent booking")
		} else {
			metrics.ObserveBooking("error", started)
			s.logger.Error().Err(err).Int64("ride_id", rideID).Msg("booking failed")
		}
		return nil, 0, err
	}
	metrics.ObserveBooking("ok", started)

	s.logger.Info().
		Int64("booking_id", booking.ID).
		Int64("ride_id", rideID).
		Int64("user_id", sess.UserID).
		Int("seats", seats).
		Int("seats_available", remaining).
		Msg("booking created")

	ride.SeatsAvailable = remaining
	s.publishBookingEvent(events.EventBookingCreated, booking, ride)
	s.enqueueSync(ctx, *booking, SyncUpsert)

	return booking, remaining, nil
}

// Cancel cancels one of the session user's bookings and returns its seats to
// the ride. The returned ride is nil when the ride no longer exists.
func (s *InventoryService) Cancel(ctx context.Context, sess models.Session, bookingID int64) (*models.Booking, *models.Ride, error) {
	if !sess.Authenticated {
		return nil, nil, ErrUnauthenticated
	}

	booking, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, nil, storeError(err)
	}
	if booking.UserID != sess.UserID {
		return nil, nil, fmt.Errorf("%w: booking %d belongs to another user", ErrForbidden, bookingID)
	}
	if booking.IsCancelled() {
		return nil, nil, ErrAlreadyCancelled
	}

	cancelled, ride, err := s.store.CancelBookingAndRestore(ctx, bookingID)
	if err != nil {
		err = storeError(err)
		if !errors.Is(err, ErrAlreadyCancelled) {
			s.logger.Error().Err(err).Int64("booking_id", bookingID).Msg("cancellation failed")
		}
		return nil, nil, err
	}
	metrics.IncCancellation()

	logEvent := s.logger.Info().Int64("booking_id", bookingID).Int64("ride_id", cancelled.RideID)
	if ride != nil {
		logEvent = logEvent.Int("seats_available", ride.SeatsAvailable)
	} else {
		logEvent = logEvent.Bool("ride_gone", true)
	}
	logEvent.Msg("booking cancelled")

	s.publishBookingEvent(events.EventBookingCancelled, cancelled, ride)
	s.enqueueSync(ctx, *cancelled, SyncUpdateStatus)

	return cancelled, ride, nil
}

// DeleteRide removes a ride owned by the session user together with every
// booking that references it and returns the removed bookings.
func (s *InventoryService) DeleteRide(ctx context.Context, sess models.Session, rideID int64) ([]*models.Booking, error) {
	if !sess.Authenticated {
		return nil, ErrUnauthenticated
	}

	ride, err := s.store.GetRide(ctx, rideID)
	if err != nil {
		return nil, storeError(err)
	}
	if ride.CreatedBy != sess.UserID {
		return nil, fmt.Errorf("%w: ride %d belongs to another user", ErrForbidden, rideID)
	}

	removed, err := s.store.DeleteRideCascade(ctx, rideID, sess.UserID)
	if err != nil {
		err = storeError(err)
		s.logger.Error().Err(err).Int64("ride_id", rideID).Msg("ride deletion failed")
		return nil, err
	}
	metrics.IncRideDeleted()

	s.logger.Info().Int64("ride_id", rideID).Int("bookings_removed", len(removed)).Msg("ride deleted")

	if s.archiveDir != "" {
		if path, err := export.SaveManifest(s.archiveDir, ride, removed); err != nil {
			s.logger.Error().Err(fmt.Errorf("%w: %w", ErrPartialFailure, err)).Int64("ride_id", rideID).Msg("archive manifest failed")
		} else {
			s.logger.Info().Int64("ride_id", rideID).Str("path", path).Msg("manifest archived")
		}
	}

	payload := rideEventPayload(ride)
	payload.SeatsAvailable = 0
	seen := make(map[int64]bool)
	for _, b := range removed {
		payload.RemovedBookings = append(payload.RemovedBookings, b.ID)
		if !b.IsCancelled() && !seen[b.UserID] {
			seen[b.UserID] = true
			payload.AffectedUsers = append(payload.AffectedUsers, b.UserID)
		}
		s.enqueueSync(ctx, *b, SyncDelete)
	}
	s.publish(events.EventRideDeleted, payload)

	return removed, nil
}

func (s *InventoryService) publishBookingEvent(eventType string, booking *models.Booking, ride *models.Ride) {
	payload := events.BookingEventPayload{
		BookingID:       booking.ID,
		UserID:          booking.UserID,
		UserEmail:       booking.UserEmail,
		RideID:          booking.RideID,
		Seats:           booking.Seats,
		TotalPriceCents: booking.TotalPriceCents,
		Status:          booking.Status,
	}
	if ride != nil {
		payload.RideCreatedBy = ride.CreatedBy
		payload.From = ride.DepartureLocation
		payload.To = ride.Destination
		payload.DepartureDate = ride.DepartureDate
		payload.DepartureTime = ride.DepartureTime
		payload.SeatsAvailable = ride.SeatsAvailable
	} else {
		payload.RideGone = true
	}
	s.publish(eventType, payload)
}

func (s *InventoryService) publish(eventType string, payload any) {
	if s.eventBus == nil {
		return
	}
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(fmt.Errorf("%w: %w", ErrPartialFailure, err)).Str("event_type", eventType).Msg("publish event error")
	}
}

func (s *InventoryService) enqueueSync(ctx context.Context, booking models.Booking, taskType string) {
	if s.syncWorker == nil {
		return
	}

	var status string
	if taskType == SyncUpdateStatus {
		status = booking.Status
	}

	if err := s.syncWorker.EnqueueTask(ctx, taskType, booking.ID, &booking, status); err != nil {
		s.logger.Error().Err(fmt.Errorf("%w: %w", ErrPartialFailure, err)).Int64("booking_id", booking.ID).Str("task", taskType).Msg("sheets enqueue error")
	}
}

func rideEventPayload(ride *models.Ride) events.RideEventPayload {
	return events.RideEventPayload{
		RideID:         ride.ID,
		CreatedBy:      ride.CreatedBy,
		CreatorEmail:   ride.CreatorEmail,
		From:           ride.DepartureLocation,
		To:             ride.Destination,
		DepartureDate:  ride.DepartureDate,
		DepartureTime:  ride.DepartureTime,
		SeatsOffered:   ride.SeatsOffered,
		SeatsAvailable: ride.SeatsAvailable,
	}
}
