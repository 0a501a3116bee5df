package ticket

import (
	"bytes"
	"testing"
	"time"

	"thumbsup/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBooking() *models.Booking {
	return &models.Booking{
		ID: 12, UserID: 2, UserEmail: "a@example.com", RideID: 7,
		Seats: 2, TotalPriceCents: 2000, Status: models.StatusConfirmed,
		CreatedAt: time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC),
	}
}

func TestCode(t *testing.T) {
	b := testBooking()
	code := Code(b)
	assert.Len(t, code, 10)
	assert.Equal(t, code, Code(testBooking()), "stable for the same booking")

	other := testBooking()
	other.ID = 13
	assert.NotEqual(t, code, Code(other))
}

func TestPayloadAndVerify(t *testing.T) {
	b := testBooking()
	p := Payload(b)
	assert.Equal(t, "thumbsup:booking:12:"+Code(b), p)
	assert.True(t, Verify(p, b))
	assert.False(t, Verify("thumbsup:booking:12:XXXXXXXXXX", b))
}

func TestBookingID(t *testing.T) {
	id, err := BookingID(" " + Payload(testBooking()) + "\n")
	require.NoError(t, err)
	assert.Equal(t, int64(12), id)

	for _, bad := range []string{
		"",
		"booking:12:ABCDEFGHIJ",
		"thumbsup:booking:12",
		"thumbsup:booking:x:ABCDEFGHIJ",
		"thumbsup:booking:-3:ABCDEFGHIJ",
		"thumbsup:booking:12:SHORT",
	} {
		_, err := BookingID(bad)
		assert.ErrorIs(t, err, ErrBadPayload, bad)
	}
}

func TestRender(t *testing.T) {
	ride := &models.Ride{
		ID: 7, DepartureLocation: "Lisboa", Destination: "Porto",
		DepartureDate: "2026-11-02", DepartureTime: "08:30",
		EstimatedDuration: "3 hours 5 mins", EstimatedDistance: "313 km",
		CreatorEmail: "driver@example.com", Description: "Small bags only",
	}

	out, err := Render(testBooking(), ride)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))

	gone, err := Render(testBooking(), nil)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(gone, []byte("%PDF")))
}
