// Package ticket renders printable booking tickets.
package ticket

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"thumbsup/internal/models"

	"github.com/google/uuid"
	"github.com/jung-kurt/gofpdf"
	qrcode "github.com/skip2/go-qrcode"
)

const (
	payloadPrefix = "thumbsup:booking:"
	codeLen       = 10
)

var ErrBadPayload = errors.New("not a ticket code")

// codeSpace namespaces ticket codes so they cannot be derived from other ids.
var codeSpace = uuid.MustParse("6f1f7a7e-4c1b-4e0e-9d8a-2b7b1c3f5a10")

// Code is a short verification code, stable for a booking.
func Code(b *models.Booking) string {
	name := fmt.Sprintf("%d:%d:%d:%d", b.ID, b.UserID, b.RideID, b.CreatedAt.Unix())
	id := uuid.NewSHA1(codeSpace, []byte(name))
	return strings.ToUpper(strings.ReplaceAll(id.String(), "-", "")[:codeLen])
}

// Payload is the string carried by the ticket QR code.
func Payload(b *models.Booking) string {
	return fmt.Sprintf("%s%d:%s", payloadPrefix, b.ID, Code(b))
}

// Verify checks a scanned payload against a booking.
func Verify(payload string, b *models.Booking) bool {
	return payload == Payload(b)
}

// BookingID extracts the booking id from a scanned payload without checking
// the code.
func BookingID(payload string) (int64, error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(payload), payloadPrefix)
	if !ok {
		return 0, ErrBadPayload
	}
	rawID, code, ok := strings.Cut(rest, ":")
	if !ok || len(code) != codeLen {
		return 0, ErrBadPayload
	}
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrBadPayload
	}
	return id, nil
}

// Render builds a single-page A4 ticket for a booking. ride may be nil when
// the ride was deleted after the booking was cancelled.
func Render(b *models.Booking, ride *models.Ride) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFont("Helvetica", "B", 22)
	pdf.Cell(0, 15, "THUMBSUP RIDE TICKET")
	pdf.Ln(20)

	pdf.SetDrawColor(220, 220, 220)
	pdf.Line(15, pdf.GetY(), 195, pdf.GetY())
	pdf.Ln(8)

	// --- Summary + QR ---
	yStart := pdf.GetY()
	pdf.SetFillColor(245, 245, 245)
	pdf.Rect(15, yStart, 120, 55, "F")

	pdf.SetXY(20, yStart+7)
	pdf.SetFont("Helvetica", "B", 14)
	pdf.Cell(0, 8, "BOOKING")
	pdf.Ln(10)
	pdf.SetFont("Helvetica", "", 12)
	lines := []string{
		fmt.Sprintf("Booking ID: %d", b.ID),
		fmt.Sprintf("Passenger: %s", b.UserEmail),
		fmt.Sprintf("Seats: %d", b.Seats),
		fmt.Sprintf("Total: %s", b.TotalPrice()),
		fmt.Sprintf("Status: %s", strings.ToUpper(b.Status)),
	}
	for _, line := range lines {
		pdf.SetX(20)
		pdf.Cell(0, 8, tr(line))
		pdf.Ln(6)
	}

	qrBytes, err := qrcode.Encode(Payload(b), qrcode.Medium, 256)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	pdf.RegisterImageOptionsReader("qr", gofpdf.ImageOptions{ImageType: "png"}, bytes.NewReader(qrBytes))
	pdf.ImageOptions("qr", 145, yStart+5, 45, 0, false, gofpdf.ImageOptions{ImageType: "png"}, 0, "")

	pdf.SetY(yStart + 63)
	pdf.SetFont("Helvetica", "I", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Show this code to the driver: %s", Code(b)))
	pdf.Ln(10)

	drawSectionTitle(pdf, "RIDE")
	pdf.SetFont("Helvetica", "", 12)
	if ride == nil {
		pdf.Cell(0, 8, "This ride is no longer available.")
		pdf.Ln(6)
	} else {
		rideLines := []string{
			fmt.Sprintf("From: %s", ride.DepartureLocation),
			fmt.Sprintf("To: %s", ride.Destination),
			fmt.Sprintf("Departure: %s %s", ride.DepartureDate, ride.DepartureTime),
		}
		if ride.EstimatedDuration != "" || ride.EstimatedDistance != "" {
			rideLines = append(rideLines, fmt.Sprintf("Estimate: %s, %s", ride.EstimatedDuration, ride.EstimatedDistance))
		}
		if ride.CreatorEmail != "" {
			rideLines = append(rideLines, fmt.Sprintf("Driver: %s", ride.CreatorEmail))
		}
		for _, line := range rideLines {
			pdf.Cell(0, 8, tr(line))
			pdf.Ln(6)
		}
		if ride.Description != "" {
			pdf.MultiCell(0, 8, tr(ride.Description), "", "", false)
		}
	}

	pdf.SetDrawColor(200, 200, 200)
	pdf.Line(15, 285, 195, 285)
	pdf.SetY(288)
	pdf.SetFont("Helvetica", "I", 10)
	pdf.CellFormat(0, 8, "Generated by thumbsup", "", 0, "C", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func drawSectionTitle(pdf *gofpdf.Fpdf, title string) {
	pdf.SetFont("Helvetica", "B", 14)
	pdf.SetFillColor(240, 240, 240)
	pdf.CellFormat(0, 9, title, "", 1, "L", true, 0, "")
	pdf.Ln(3)
}
