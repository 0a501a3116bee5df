package models

import "time"

type Booking struct {
	ID                int64      `json:"id"`
	UserID            int64      `json:"user_id"`
	UserEmail         string     `json:"user_email"`
	RideID            int64      `json:"ride_id"`
	Seats             int        `json:"seats"`
	TotalPriceCents   int64      `json:"total_price_cents"`
	BookingDate       string     `json:"booking_date"`
	Status            string     `json:"status"` // confirmed, cancelled
	EstimatedDuration string     `json:"estimated_duration,omitempty"`
	EstimatedDistance string     `json:"estimated_distance,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	CanceledAt        *time.Time `json:"canceled_at,omitempty"`
}

// TotalPrice returns the captured total formatted with two decimals.
func (b *Booking) TotalPrice() string {
	return FormatCents(b.TotalPriceCents)
}

func (b *Booking) IsCancelled() bool {
	return b.Status == StatusCancelled
}

// BookingWithRide is a ledger entry joined with the current state of its ride.
type BookingWithRide struct {
	Booking
	Ride *Ride `json:"ride"`
}
