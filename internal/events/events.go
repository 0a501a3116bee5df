package events

import (
	"encoding/json"
	"sync"
	"time"
)

const (
	EventRideCreated      = "ride_created"
	EventBookingCreated   = "booking_created"
	EventBookingCancelled = "booking_cancelled"
	EventRideDeleted      = "ride_deleted"
)

// EventTypes lists every event the inventory publishes.
var EventTypes = []string{
	EventRideCreated,
	EventBookingCreated,
	EventBookingCancelled,
	EventRideDeleted,
}

// BookingEventPayload describes the minimal booking snapshot for event consumers.
type BookingEventPayload struct {
	BookingID       int64  `json:"booking_id"`
	UserID          int64  `json:"user_id"`
	UserEmail       string `json:"user_email"`
	RideID          int64  `json:"ride_id"`
	RideCreatedBy   int64  `json:"ride_created_by,omitempty"`
	From            string `json:"from,omitempty"`
	To              string `json:"to,omitempty"`
	DepartureDate   string `json:"departure_date,omitempty"`
	DepartureTime   string `json:"departure_time,omitempty"`
	Seats           int    `json:"seats"`
	TotalPriceCents int64  `json:"total_price_cents"`
	Status          string `json:"status"`
	SeatsAvailable  int    `json:"seats_available"`
	// RideGone is set when a cancellation found no ride to restore seats to.
	RideGone bool `json:"ride_gone,omitempty"`
}

// RideEventPayload is published on ride creation and deletion.
type RideEventPayload struct {
	RideID          int64   `json:"ride_id"`
	CreatedBy       int64   `json:"created_by"`
	CreatorEmail    string  `json:"creator_email,omitempty"`
	From            string  `json:"from"`
	To              string  `json:"to"`
	DepartureDate   string  `json:"departure_date"`
	DepartureTime   string  `json:"departure_time,omitempty"`
	SeatsOffered    int     `json:"seats_offered"`
	SeatsAvailable  int     `json:"seats_available"`
	RemovedBookings []int64 `json:"removed_bookings,omitempty"`
	AffectedUsers   []int64 `json:"affected_users,omitempty"`
}

// Event represents a lightweight domain event.
type Event struct {
	ID        int64
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// SubscribeAll registers the handler for every type in EventTypes.
func (b *EventBus) SubscribeAll(handler EventHandler) {
	for _, t := range EventTypes {
		b.Subscribe(t, handler)
	}
}

// Publish notifies subscribers of the event type and returns the first
// handler error. Every handler runs even if an earlier one failed.
func (b *EventBus) Publish(event *Event) error {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	var first error
	for _, handler := range handlers {
		if err := handler(event); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload any) error {
	if b == nil {
		return nil
	}

	event, err := NewJSONEvent(eventType, payload)
	if err != nil {
		return err
	}
	return b.Publish(&event)
}

// NewJSONEvent builds an Event with JSON payload for manual publishing.
func NewJSONEvent(eventType string, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}

	return Event{Type: eventType, Payload: raw, CreatedAt: time.Now()}, nil
}
