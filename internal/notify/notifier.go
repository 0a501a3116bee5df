// Package notify delivers ride events to drivers and passengers on Telegram.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"thumbsup/internal/domain"
	"thumbsup/internal/events"
	"thumbsup/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// UserLookup resolves the chat linked to a user.
type UserLookup interface {
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
}

// Notifier turns domain events into Telegram messages.
type Notifier struct {
	sender  domain.TelegramSender
	users   UserLookup
	timeout time.Duration
	logger  *zerolog.Logger
}

func NewNotifier(sender domain.TelegramSender, users UserLookup, logger *zerolog.Logger) *Notifier {
	l := logger.With().Str("component", "notifier").Logger()
	return &Notifier{sender: sender, users: users, timeout: 5 * time.Second, logger: &l}
}

// Attach subscribes the notifier to every event on the bus.
func (n *Notifier) Attach(bus *events.EventBus) {
	bus.SubscribeAll(n.Handle)
}

// Handle sends the messages an event calls for. Users without a linked chat
// are skipped.
func (n *Notifier) Handle(event *events.Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
	defer cancel()

	switch event.Type {
	case events.EventBookingCreated, events.EventBookingCancelled:
		var p events.BookingEventPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			return fmt.Errorf("decode %s: %w", event.Type, err)
		}
		if p.RideGone || p.RideCreatedBy == 0 {
			return nil
		}
		return n.notifyUser(ctx, p.RideCreatedBy, bookingMessage(event.Type, p))

	case events.EventRideDeleted:
		var p events.RideEventPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			return fmt.Errorf("decode %s: %w", event.Type, err)
		}
		text := rideDeletedMessage(p)
		var first error
		for _, userID := range p.AffectedUsers {
			if err := n.notifyUser(ctx, userID, text); err != nil && first == nil {
				first = err
			}
		}
		return first
	}
	return nil
}

func (n *Notifier) notifyUser(ctx context.Context, userID int64, text string) error {
	user, err := n.users.GetUserByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("resolve user %d: %w", userID, err)
	}
	if user.TelegramChatID == 0 {
		return nil
	}

	msg := tgbotapi.NewMessage(user.TelegramChatID, text)
	if _, err := n.sender.Send(msg); err != nil {
		n.logger.Error().Err(err).Int64("user_id", userID).Msg("telegram send failed")
		return fmt.Errorf("send to user %d: %w", userID, err)
	}
	n.logger.Debug().Int64("user_id", userID).Msg("notification sent")
	return nil
}

func bookingMessage(eventType string, p events.BookingEventPayload) string {
	var sb strings.Builder
	if eventType == events.EventBookingCreated {
		fmt.Fprintf(&sb, "New booking on %s → %s (%s).\n", p.From, p.To, departure(p.DepartureDate, p.DepartureTime))
		fmt.Fprintf(&sb, "%s reserved %d seat(s).\n", p.UserEmail, p.Seats)
	} else {
		fmt.Fprintf(&sb, "Booking cancelled on %s → %s (%s).\n", p.From, p.To, departure(p.DepartureDate, p.DepartureTime))
		fmt.Fprintf(&sb, "%s released %d seat(s).\n", p.UserEmail, p.Seats)
	}
	fmt.Fprintf(&sb, "Seats left: %d", p.SeatsAvailable)
	return sb.String()
}

func rideDeletedMessage(p events.RideEventPayload) string {
	return fmt.Sprintf("The ride %s → %s on %s was cancelled by the driver. Your booking has been removed.",
		p.From, p.To, departure(p.DepartureDate, p.DepartureTime))
}

func departure(date, tm string) string {
	if tm == "" {
		return date
	}
	return date + " " + tm
}
