package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "thumbsup"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint and status class.",
		},
		[]string{"endpoint", "status"},
	)

	bookings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_total",
			Help:      "Booking attempts by result.",
		},
		[]string{"result"},
	)

	cancellations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cancellations_total",
			Help:      "Bookings cancelled.",
		},
	)

	ridesDeleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rides_deleted_total",
			Help:      "Rides deleted together with their bookings.",
		},
	)

	seatConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "seat_conflicts_total",
			Help:      "Bookings rejected by the conditional seat decrement.",
		},
	)

	bookingDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "booking_duration_seconds",
			Help:      "Time spent in the booking transaction.",
			Buckets:   prometheus.DefBuckets,
		},
	)

	syncQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sync_queue_depth",
			Help:      "Pending sheet sync tasks seen by the last poll.",
		},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			bookings,
			cancellations,
			ridesDeleted,
			seatConflicts,
			bookingDuration,
			syncQueueDepth,
		)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string, status int) {
	httpRequests.WithLabelValues(endpoint, statusClass(status)).Inc()
}

// ObserveBooking records a booking attempt and its duration.
func ObserveBooking(result string, started time.Time) {
	bookings.WithLabelValues(result).Inc()
	bookingDuration.Observe(time.Since(started).Seconds())
}

func IncCancellation() { cancellations.Inc() }

func IncRideDeleted() { ridesDeleted.Inc() }

func IncSeatConflict() { seatConflicts.Inc() }

func SetSyncQueueDepth(n int) { syncQueueDepth.Set(float64(n)) }

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
