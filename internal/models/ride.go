package models

import (
	"strings"
	"time"
)

// Ride is one offered trip. SeatsOffered is fixed at posting, SeatsAvailable
// moves with bookings and cancellations.
type Ride struct {
	ID                 int64     `json:"id" yaml:"id"`
	DepartureLocation  string    `json:"departure_location" yaml:"departure_location"`
	DepartureAddress   string    `json:"departure_address" yaml:"departure_address"`
	DepartureLat       float64   `json:"departure_lat" yaml:"departure_lat"`
	DepartureLng       float64   `json:"departure_lng" yaml:"departure_lng"`
	Destination        string    `json:"destination" yaml:"destination"`
	DestinationAddress string    `json:"destination_address" yaml:"destination_address"`
	DestinationLat     float64   `json:"destination_lat" yaml:"destination_lat"`
	DestinationLng     float64   `json:"destination_lng" yaml:"destination_lng"`
	DepartureDate      string    `json:"departure_date" yaml:"departure_date"`
	DepartureTime      string    `json:"departure_time" yaml:"departure_time"`
	SeatsOffered       int       `json:"seats_offered" yaml:"seats"`
	SeatsAvailable     int       `json:"seats_available" yaml:"-"`
	PriceCents         int64     `json:"price_cents" yaml:"price_cents"`
	Description        string    `json:"description,omitempty" yaml:"description"`
	EstimatedDuration  string    `json:"estimated_duration,omitempty" yaml:"estimated_duration"`
	EstimatedDistance  string    `json:"estimated_distance,omitempty" yaml:"estimated_distance"`
	CreatedBy          int64     `json:"created_by" yaml:"created_by"`
	CreatorEmail       string    `json:"creator_email" yaml:"creator_email"`
	Status             string    `json:"status" yaml:"-"`
	CreatedAt          time.Time `json:"created_at" yaml:"-"`
	Version            int64     `json:"version" yaml:"-"`
}

// Price returns the per-seat price formatted with two decimals.
func (r *Ride) Price() string {
	return FormatCents(r.PriceCents)
}

// HasCoordinates reports whether both ends of the ride were geocoded.
func (r *Ride) HasCoordinates() bool {
	return (r.DepartureLat != 0 || r.DepartureLng != 0) &&
		(r.DestinationLat != 0 || r.DestinationLng != 0)
}

// RideFilter narrows ride listings. Zero values match everything.
type RideFilter struct {
	From     string
	To       string
	Date     string
	MinSeats int
}

// Match applies the filter the same way the browse page did: case-insensitive
// substring on locations, exact date, and a lower bound on free seats.
func (f RideFilter) Match(r *Ride) bool {
	if f.From != "" && !containsFold(r.DepartureLocation, f.From) && !containsFold(r.DepartureAddress, f.From) {
		return false
	}
	if f.To != "" && !containsFold(r.Destination, f.To) && !containsFold(r.DestinationAddress, f.To) {
		return false
	}
	if f.Date != "" && r.DepartureDate != f.Date {
		return false
	}
	if f.MinSeats > 0 && r.SeatsAvailable < f.MinSeats {
		return false
	}
	return true
}

// IsZero reports whether the filter has no conditions.
func (f RideFilter) IsZero() bool {
	return f.From == "" && f.To == "" && f.Date == "" && f.MinSeats == 0
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(strings.TrimSpace(sub)))
}
