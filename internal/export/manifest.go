package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"thumbsup/internal/models"

	"github.com/xuri/excelize/v2"
)

const manifestSheet = "Passengers"

var manifestHeaders = []string{"Booking", "Passenger", "Seats", "Total", "Status", "Booked On", "Cancelled At"}

// WriteManifest renders the passenger list of a ride as an .xlsx workbook.
func WriteManifest(w io.Writer, ride *models.Ride, bookings []*models.Booking) error {
	f, err := buildManifest(ride, bookings)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.Write(w); err != nil {
		return fmt.Errorf("error writing manifest: %w", err)
	}
	return nil
}

// SaveManifest writes the manifest into dir and returns the file path.
func SaveManifest(dir string, ride *models.Ride, bookings []*models.Booking) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %w", err)
	}

	f, err := buildManifest(ride, bookings)
	if err != nil {
		return "", err
	}
	defer f.Close()

	filePath := filepath.Join(dir, ManifestFileName(ride))
	if err := f.SaveAs(filePath); err != nil {
		return "", fmt.Errorf("error saving file: %w", err)
	}
	return filePath, nil
}

func ManifestFileName(ride *models.Ride) string {
	return fmt.Sprintf("ride_%d_%s_manifest.xlsx", ride.ID, ride.DepartureDate)
}

func buildManifest(ride *models.Ride, bookings []*models.Booking) (*excelize.File, error) {
	f := excelize.NewFile()

	index, err := f.NewSheet(manifestSheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)

	// Заголовок поездки
	title := fmt.Sprintf("%s → %s, %s %s", ride.DepartureLocation, ride.Destination, ride.DepartureDate, ride.DepartureTime)
	_ = f.SetCellValue(manifestSheet, "A1", title)
	_ = f.MergeCell(manifestSheet, "A1", "G1")
	titleStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	_ = f.SetCellStyle(manifestSheet, "A1", "A1", titleStyle)

	_ = f.SetCellValue(manifestSheet, "A2", fmt.Sprintf("Seats: %d/%d free, price %s per seat",
		ride.SeatsAvailable, ride.SeatsOffered, ride.Price()))

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})
	for i, header := range manifestHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 4)
		_ = f.SetCellValue(manifestSheet, cell, header)
		_ = f.SetCellStyle(manifestSheet, cell, cell, headerStyle)
	}

	cancelledStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Color: "#9C0006", Strike: true},
	})

	confirmedSeats := 0
	var confirmedCents int64
	row := 5
	for _, b := range bookings {
		cancelledAt := ""
		if b.CanceledAt != nil {
			cancelledAt = b.CanceledAt.Format("2006-01-02 15:04")
		}
		values := []interface{}{b.ID, b.UserEmail, b.Seats, b.TotalPrice(), b.Status, b.BookingDate, cancelledAt}
		for i, v := range values {
			cell, _ := excelize.CoordinatesToCellName(i+1, row)
			_ = f.SetCellValue(manifestSheet, cell, v)
		}

		if b.IsCancelled() {
			first, _ := excelize.CoordinatesToCellName(1, row)
			last, _ := excelize.CoordinatesToCellName(len(values), row)
			_ = f.SetCellStyle(manifestSheet, first, last, cancelledStyle)
		} else {
			confirmedSeats += b.Seats
			confirmedCents += b.TotalPriceCents
		}
		row++
	}

	row++
	_ = f.SetCellValue(manifestSheet, fmt.Sprintf("A%d", row), "Confirmed")
	_ = f.SetCellValue(manifestSheet, fmt.Sprintf("C%d", row), confirmedSeats)
	_ = f.SetCellValue(manifestSheet, fmt.Sprintf("D%d", row), models.FormatCents(confirmedCents))
	totalStyle, _ := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	_ = f.SetCellStyle(manifestSheet, fmt.Sprintf("A%d", row), fmt.Sprintf("D%d", row), totalStyle)

	_ = f.SetColWidth(manifestSheet, "A", "A", 10)
	_ = f.SetColWidth(manifestSheet, "B", "B", 30)
	_ = f.SetColWidth(manifestSheet, "C", "E", 12)
	_ = f.SetColWidth(manifestSheet, "F", "G", 18)

	_ = f.DeleteSheet("Sheet1")
	_ = f.SetDocProps(&excelize.DocProperties{
		Title:   title,
		Creator: "thumbsup",
		Created: time.Now().UTC().Format(time.RFC3339),
	})

	return f, nil
}
