package google

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"thumbsup/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

func setupMockServer(t *testing.T) (*http.ServeMux, *SheetsService) {
	t.Helper()
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	srv, err := sheets.NewService(context.Background(), option.WithEndpoint(server.URL), option.WithoutAuthentication())
	require.NoError(t, err)
	return mux, newSheetsService(srv, "bookings_tid", nil)
}

func TestSheetsService_TestConnection(t *testing.T) {
	mux, s := setupMockServer(t)
	mux.HandleFunc("/v4/spreadsheets/bookings_tid/values/Bookings!A1", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sheets.ValueRange{Values: [][]interface{}{{"ID"}}})
	})
	assert.NoError(t, s.TestConnection(context.Background()))
}

func TestSheetsService_WarmUpCache(t *testing.T) {
	mux, s := setupMockServer(t)
	mux.HandleFunc("/v4/spreadsheets/bookings_tid/values/Bookings!A:A", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sheets.ValueRange{
			Values: [][]interface{}{{"ID"}, {"123"}, {}, {456.0}},
		})
	})

	require.NoError(t, s.WarmUpCache(context.Background()))
	row, ok := s.getCachedRow(123)
	assert.True(t, ok)
	assert.Equal(t, 2, row)
	row, _ = s.getCachedRow(456)
	assert.Equal(t, 4, row)
}

func TestSheetsService_UpsertBooking_Append(t *testing.T) {
	mux, s := setupMockServer(t)
	mux.HandleFunc("/v4/spreadsheets/bookings_tid/values/Bookings!A:A", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sheets.ValueRange{Values: [][]interface{}{{"ID"}}})
	})

	var appended sheets.ValueRange
	mux.HandleFunc("/v4/spreadsheets/bookings_tid/values/Bookings!A:A:append", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &appended)
		_ = json.NewEncoder(w).Encode(sheets.AppendValuesResponse{
			Updates: &sheets.UpdateValuesResponse{UpdatedRange: "Bookings!A10:L10"},
		})
	})

	booking := &models.Booking{ID: 789, UserEmail: "a@example.com", RideID: 5, Seats: 2, TotalPriceCents: 2000, Status: models.StatusConfirmed, CreatedAt: time.Now()}
	ride := &models.Ride{ID: 5, DepartureLocation: "Lisbon", Destination: "Porto", DepartureDate: "2026-11-02", DepartureTime: "08:30"}

	require.NoError(t, s.UpsertBooking(context.Background(), booking, ride))
	row, _ := s.getCachedRow(789)
	assert.Equal(t, 10, row)

	require.Len(t, appended.Values, 1)
	assert.Equal(t, "Lisbon", appended.Values[0][4])
	assert.Equal(t, "2026-11-02 08:30", appended.Values[0][6])
	assert.Equal(t, "20.00", appended.Values[0][8])
}

func TestSheetsService_UpsertBooking_Update(t *testing.T) {
	mux, s := setupMockServer(t)
	s.setCachedRow(123, 2)

	called := false
	mux.HandleFunc("/v4/spreadsheets/bookings_tid/values/Bookings!A2:L2", func(w http.ResponseWriter, r *http.Request) {
		called = true
		_ = json.NewEncoder(w).Encode(sheets.UpdateValuesResponse{})
	})

	require.NoError(t, s.UpsertBooking(context.Background(), &models.Booking{ID: 123, CreatedAt: time.Now()}, nil))
	assert.True(t, called)
	assert.Error(t, s.UpsertBooking(context.Background(), nil, nil))
}

func TestSheetsService_UpdateBookingStatus(t *testing.T) {
	mux, s := setupMockServer(t)
	s.setCachedRow(123, 7)

	var req sheets.BatchUpdateValuesRequest
	mux.HandleFunc("/v4/spreadsheets/bookings_tid/values:batchUpdate", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &req)
		_ = json.NewEncoder(w).Encode(sheets.BatchUpdateValuesResponse{})
	})

	require.NoError(t, s.UpdateBookingStatus(context.Background(), 123, models.StatusCancelled))
	require.Len(t, req.Data, 2)
	assert.Equal(t, "Bookings!J7", req.Data[0].Range)
	assert.Equal(t, models.StatusCancelled, req.Data[0].Values[0][0])
}

func TestSheetsService_DeleteBookingRow(t *testing.T) {
	mux, s := setupMockServer(t)
	s.setCachedRow(456, 3)

	mux.HandleFunc("/v4/spreadsheets/bookings_tid/values/Bookings!A3:L3:clear", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sheets.ClearValuesResponse{})
	})
	mux.HandleFunc("/v4/spreadsheets/bookings_tid/values/Bookings!A:A", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sheets.ValueRange{Values: [][]interface{}{{"ID"}}})
	})

	require.NoError(t, s.DeleteBookingRow(context.Background(), 456))
	_, ok := s.getCachedRow(456)
	assert.False(t, ok)

	// already gone from the sheet
	assert.NoError(t, s.DeleteBookingRow(context.Background(), 999))
}

func TestSheetsService_ReplaceBookings(t *testing.T) {
	mux, s := setupMockServer(t)
	mux.HandleFunc("/v4/spreadsheets/bookings_tid/values/Bookings!A:L:clear", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sheets.ClearValuesResponse{})
	})
	var written sheets.ValueRange
	mux.HandleFunc("/v4/spreadsheets/bookings_tid/values/Bookings!A1:L3", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &written)
		_ = json.NewEncoder(w).Encode(sheets.UpdateValuesResponse{})
	})

	bookings := []*models.Booking{{ID: 1, RideID: 5}, {ID: 2, RideID: 6}}
	rides := map[int64]*models.Ride{5: {ID: 5, Destination: "Porto"}}

	require.NoError(t, s.ReplaceBookings(context.Background(), bookings, rides))
	require.Len(t, written.Values, 3)
	assert.Equal(t, "ID", written.Values[0][0])
	assert.Equal(t, "Porto", written.Values[1][5])
	assert.Equal(t, "", written.Values[2][5])

	row, _ := s.getCachedRow(2)
	assert.Equal(t, 3, row)
}

func TestRowFromRange(t *testing.T) {
	assert.Equal(t, 10, rowFromRange("Bookings!A10:L10"))
	assert.Equal(t, 2, rowFromRange("'Bookings'!A2"))
	assert.Equal(t, 0, rowFromRange("garbage"))
}

func TestCellID(t *testing.T) {
	assert.Equal(t, int64(12), cellID("12"))
	assert.Equal(t, int64(12), cellID(12.0))
	assert.Zero(t, cellID("ID"))
	assert.Zero(t, cellID(true))
}
