package notify

import (
	"context"
	"errors"
	"io"
	"testing"

	"thumbsup/internal/events"
	"thumbsup/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockTelegramSender struct {
	mock.Mock
}

func (m *mockTelegramSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	args := m.Called(c)
	return args.Get(0).(tgbotapi.Message), args.Error(1)
}

type fakeUsers map[int64]*models.User

func (f fakeUsers) GetUserByID(_ context.Context, id int64) (*models.User, error) {
	if u, ok := f[id]; ok {
		return u, nil
	}
	return nil, errors.New("user not found")
}

func testLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

func TestNotifier_BookingCreated(t *testing.T) {
	sender := new(mockTelegramSender)
	users := fakeUsers{1: {ID: 1, TelegramChatID: 100}}
	n := NewNotifier(sender, users, testLogger())

	bus := events.NewEventBus()
	n.Attach(bus)

	sender.On("Send", mock.MatchedBy(func(c tgbotapi.Chattable) bool {
		msg, ok := c.(tgbotapi.MessageConfig)
		return ok && msg.ChatID == 100 &&
			assert.ObjectsAreEqual("New booking on Lisbon → Porto (2026-11-02 08:30).\na@example.com reserved 2 seat(s).\nSeats left: 1", msg.Text)
	})).Return(tgbotapi.Message{}, nil).Once()

	err := bus.PublishJSON(events.EventBookingCreated, events.BookingEventPayload{
		BookingID: 5, UserEmail: "a@example.com", RideCreatedBy: 1,
		From: "Lisbon", To: "Porto", DepartureDate: "2026-11-02", DepartureTime: "08:30",
		Seats: 2, SeatsAvailable: 1,
	})
	require.NoError(t, err)
	sender.AssertExpectations(t)
}

func TestNotifier_SkipsUnlinkedAndGoneRides(t *testing.T) {
	sender := new(mockTelegramSender)
	users := fakeUsers{1: {ID: 1}}
	n := NewNotifier(sender, users, testLogger())

	ev, err := events.NewJSONEvent(events.EventBookingCancelled, events.BookingEventPayload{RideCreatedBy: 1})
	require.NoError(t, err)
	assert.NoError(t, n.Handle(&ev))

	ev, err = events.NewJSONEvent(events.EventBookingCancelled, events.BookingEventPayload{RideGone: true})
	require.NoError(t, err)
	assert.NoError(t, n.Handle(&ev))

	ev, err = events.NewJSONEvent(events.EventRideCreated, events.RideEventPayload{CreatedBy: 1})
	require.NoError(t, err)
	assert.NoError(t, n.Handle(&ev))

	sender.AssertNotCalled(t, "Send", mock.Anything)
}

func TestNotifier_RideDeleted(t *testing.T) {
	sender := new(mockTelegramSender)
	users := fakeUsers{
		2: {ID: 2, TelegramChatID: 200},
		3: {ID: 3, TelegramChatID: 300},
	}
	n := NewNotifier(sender, users, testLogger())

	sender.On("Send", mock.MatchedBy(func(c tgbotapi.Chattable) bool {
		msg := c.(tgbotapi.MessageConfig)
		return msg.ChatID == 200
	})).Return(tgbotapi.Message{}, nil).Once()
	sender.On("Send", mock.MatchedBy(func(c tgbotapi.Chattable) bool {
		msg := c.(tgbotapi.MessageConfig)
		return msg.ChatID == 300
	})).Return(tgbotapi.Message{}, errors.New("blocked by user")).Once()

	ev, err := events.NewJSONEvent(events.EventRideDeleted, events.RideEventPayload{
		From: "Lisbon", To: "Porto", DepartureDate: "2026-11-02",
		AffectedUsers: []int64{2, 3, 4},
	})
	require.NoError(t, err)

	err = n.Handle(&ev)
	assert.Error(t, err, "first failure is reported")
	sender.AssertExpectations(t)
}

func TestNotifier_BadPayload(t *testing.T) {
	n := NewNotifier(new(mockTelegramSender), fakeUsers{}, testLogger())
	err := n.Handle(&events.Event{Type: events.EventBookingCreated, Payload: []byte("{")})
	assert.Error(t, err)
}
