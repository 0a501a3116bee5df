package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	// Register should be safe to call multiple times
	Register()
	Register()

	assert.NotPanics(t, func() {
		IncHTTP("rides", 200)
		ObserveBooking("ok", time.Now())
		IncCancellation()
		IncRideDeleted()
		SetSyncQueueDepth(3)
	})

	before := testutil.ToFloat64(seatConflicts)
	IncSeatConflict()
	assert.Equal(t, before+1, testutil.ToFloat64(seatConflicts))
	assert.Equal(t, float64(3), testutil.ToFloat64(syncQueueDepth))
}

func TestStatusClass(t *testing.T) {
	assert.Equal(t, "2xx", statusClass(204))
	assert.Equal(t, "3xx", statusClass(302))
	assert.Equal(t, "4xx", statusClass(409))
	assert.Equal(t, "5xx", statusClass(503))
}
