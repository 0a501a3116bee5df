package api

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"thumbsup/internal/export"
	"thumbsup/internal/models"
	"thumbsup/internal/service"
	"thumbsup/internal/ticket"

	"github.com/labstack/echo/v4"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type registerRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	User        *models.User `json:"user"`
	AccessToken string       `json:"access_token"`
	ExpiresAt   time.Time    `json:"expires_at"`
}

// rideRequest is the post form. Price is a decimal string ("12.50").
type rideRequest struct {
	DepartureLocation  string  `json:"departure_location"`
	DepartureAddress   string  `json:"departure_address"`
	DepartureLat       float64 `json:"departure_lat"`
	DepartureLng       float64 `json:"departure_lng"`
	Destination        string  `json:"destination"`
	DestinationAddress string  `json:"destination_address"`
	DestinationLat     float64 `json:"destination_lat"`
	DestinationLng     float64 `json:"destination_lng"`
	DepartureDate      string  `json:"departure_date"`
	DepartureTime      string  `json:"departure_time"`
	Seats              int     `json:"seats"`
	Price              string  `json:"price"`
	Description        string  `json:"description"`
	EstimatedDuration  string  `json:"estimated_duration"`
	EstimatedDistance  string  `json:"estimated_distance"`
}

func (r rideRequest) toRide() (*models.Ride, error) {
	price, err := models.ParsePrice(r.Price)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", service.ErrInvalidInput, err)
	}
	return &models.Ride{
		DepartureLocation:  r.DepartureLocation,
		DepartureAddress:   r.DepartureAddress,
		DepartureLat:       r.DepartureLat,
		DepartureLng:       r.DepartureLng,
		Destination:        r.Destination,
		DestinationAddress: r.DestinationAddress,
		DestinationLat:     r.DestinationLat,
		DestinationLng:     r.DestinationLng,
		DepartureDate:      strings.TrimSpace(r.DepartureDate),
		DepartureTime:      strings.TrimSpace(r.DepartureTime),
		SeatsOffered:       r.Seats,
		PriceCents:         price,
		Description:        strings.TrimSpace(r.Description),
		EstimatedDuration:  r.EstimatedDuration,
		EstimatedDistance:  r.EstimatedDistance,
	}, nil
}

type bookRequest struct {
	Seats int `json:"seats"`
}

type bookResponse struct {
	Booking        *models.Booking `json:"booking"`
	SeatsAvailable int             `json:"seats_available"`
}

type cancelResponse struct {
	Booking        *models.Booking `json:"booking"`
	SeatsAvailable *int            `json:"seats_available,omitempty"`
	RideGone       bool            `json:"ride_gone"`
}

type verifyRequest struct {
	Payload string `json:"payload"`
}

func (s *HTTPServer) healthz(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func (s *HTTPServer) readyz(c echo.Context) error {
	if s.deps.Ready != nil {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.Ready(ctx); err != nil {
			s.log.Warn().Err(err).Msg("readiness check failed")
			return c.String(http.StatusServiceUnavailable, "not ready")
		}
	}
	return c.String(http.StatusOK, "ready")
}

func (s *HTTPServer) register(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}

	ctx := c.Request().Context()
	user, err := s.deps.Identity.Register(ctx, req.Email, req.Password, req.DisplayName)
	if err != nil {
		return s.fail(c, err)
	}
	token, err := s.deps.Identity.IssueToken(user)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusCreated, authResponse{User: user, AccessToken: token.Token, ExpiresAt: token.ExpiresAt})
}

func (s *HTTPServer) login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if !s.allowLogin(c) {
		c.Response().Header().Set("Retry-After", strconv.Itoa(models.RateLimitWindow))
		return c.JSON(http.StatusTooManyRequests, errorBody{Error: "too_many_requests", Message: "Too many login attempts, try again later."})
	}

	user, token, err := s.deps.Identity.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, authResponse{User: user, AccessToken: token.Token, ExpiresAt: token.ExpiresAt})
}

func (s *HTTPServer) listRides(c echo.Context) error {
	filter := models.RideFilter{
		From: c.QueryParam("from"),
		To:   c.QueryParam("to"),
		Date: strings.TrimSpace(c.QueryParam("date")),
	}
	if raw := c.QueryParam("min_seats"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return badRequest(c, "min_seats must be a non-negative number")
		}
		filter.MinSeats = n
	}
	if filter.Date != "" {
		if _, err := time.Parse(models.DateLayout, filter.Date); err != nil {
			return badRequest(c, "date must be YYYY-MM-DD")
		}
	}

	rides, err := s.deps.Rides.ListRides(c.Request().Context(), filter)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"rides": rides})
}

func (s *HTTPServer) getRide(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	ride, err := s.deps.Rides.GetRide(c.Request().Context(), id)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, ride)
}

func (s *HTTPServer) createRide(c echo.Context) error {
	sess := currentSession(c)
	if !sess.Authenticated {
		return s.fail(c, service.ErrUnauthenticated)
	}

	var req rideRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	ride, err := req.toRide()
	if err != nil {
		return s.fail(c, err)
	}
	if err := s.deps.Rides.CreateRide(c.Request().Context(), sess, ride); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusCreated, ride)
}

func (s *HTTPServer) deleteRide(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	removed, err := s.deps.Inventory.DeleteRide(c.Request().Context(), currentSession(c), id)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"ride_id": id, "removed_bookings": len(removed)})
}

func (s *HTTPServer) book(c echo.Context) error {
	rideID, err := pathID(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	var req bookRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}

	booking, remaining, err := s.deps.Inventory.Book(c.Request().Context(), currentSession(c), rideID, req.Seats)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusCreated, bookResponse{Booking: booking, SeatsAvailable: remaining})
}

func (s *HTTPServer) cancel(c echo.Context) error {
	bookingID, err := pathID(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	booking, ride, err := s.deps.Inventory.Cancel(c.Request().Context(), currentSession(c), bookingID)
	if err != nil {
		return s.fail(c, err)
	}
	resp := cancelResponse{Booking: booking, RideGone: ride == nil}
	if ride != nil {
		seats := ride.SeatsAvailable
		resp.SeatsAvailable = &seats
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *HTTPServer) manifest(c echo.Context) error {
	rideID, err := pathID(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	ride, bookings, err := s.deps.Rides.RideManifest(c.Request().Context(), currentSession(c), rideID)
	if err != nil {
		return s.fail(c, err)
	}

	var buf bytes.Buffer
	if err := export.WriteManifest(&buf, ride, bookings); err != nil {
		return s.fail(c, err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", export.ManifestFileName(ride)))
	return c.Blob(http.StatusOK, xlsxContentType, buf.Bytes())
}

func (s *HTTPServer) ticket(c echo.Context) error {
	bookingID, err := pathID(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	booking, ride, err := s.deps.Rides.BookingTicket(c.Request().Context(), currentSession(c), bookingID)
	if err != nil {
		return s.fail(c, err)
	}

	pdf, err := ticket.Render(booking, ride)
	if err != nil {
		return s.fail(c, err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("inline; filename=\"ticket-%d.pdf\"", booking.ID))
	return c.Blob(http.StatusOK, "application/pdf", pdf)
}

// verifyTicket lets a driver check a scanned QR code at pickup.
func (s *HTTPServer) verifyTicket(c echo.Context) error {
	var req verifyRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	booking, err := s.deps.Rides.VerifyTicket(c.Request().Context(), currentSession(c), req.Payload)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"booking": booking, "valid": !booking.IsCancelled()})
}

func (s *HTTPServer) me(c echo.Context) error {
	profile, err := s.deps.Rides.Profile(c.Request().Context(), currentSession(c))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, profile)
}

func (s *HTTPServer) myBookings(c echo.Context) error {
	bookings, err := s.deps.Rides.MyBookings(c.Request().Context(), currentSession(c))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"bookings": bookings})
}

func (s *HTTPServer) myRides(c echo.Context) error {
	rides, err := s.deps.Rides.MyRides(c.Request().Context(), currentSession(c))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"rides": rides})
}

// telegramCode hands out a one-time code; the bot links whichever chat
// sends it back.
func (s *HTTPServer) telegramCode(c echo.Context) error {
	link, err := s.deps.Identity.TelegramLinkCode(c.Request().Context(), currentSession(c))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusCreated, link)
}

func (s *HTTPServer) geoSearch(c echo.Context) error {
	if s.deps.Geocoder == nil {
		return c.JSON(http.StatusServiceUnavailable, errorBody{Error: "geo_unavailable", Message: "Location search is not available."})
	}
	q := strings.TrimSpace(c.QueryParam("q"))
	if len([]rune(q)) < 2 {
		return badRequest(c, "q must be at least 2 characters")
	}

	places, err := s.deps.Geocoder.Search(c.Request().Context(), q)
	if err != nil {
		s.log.Warn().Err(err).Str("q", q).Msg("geocoder failed")
		return c.JSON(http.StatusBadGateway, errorBody{Error: "geo_failed", Message: "Location search failed."})
	}
	return c.JSON(http.StatusOK, map[string]any{"places": places})
}

func (s *HTTPServer) geoRoute(c echo.Context) error {
	if s.deps.Router == nil {
		return c.JSON(http.StatusServiceUnavailable, errorBody{Error: "geo_unavailable", Message: "Routing is not available."})
	}
	from, err := parseCoordinates(c.QueryParam("from"))
	if err != nil {
		return badRequest(c, "from: "+err.Error())
	}
	to, err := parseCoordinates(c.QueryParam("to"))
	if err != nil {
		return badRequest(c, "to: "+err.Error())
	}

	route, err := s.deps.Router.Route(c.Request().Context(), from, to)
	if err != nil {
		s.log.Warn().Err(err).Msg("router failed")
		return c.JSON(http.StatusBadGateway, errorBody{Error: "geo_failed", Message: "Route estimate failed."})
	}
	return c.JSON(http.StatusOK, route)
}

func pathID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", c.Param("id"))
	}
	return id, nil
}

// parseCoordinates reads "lat,lng".
func parseCoordinates(raw string) (models.Coordinates, error) {
	latRaw, lngRaw, ok := strings.Cut(strings.TrimSpace(raw), ",")
	if !ok {
		return models.Coordinates{}, fmt.Errorf("expected lat,lng")
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(latRaw), 64)
	if err != nil || lat < -90 || lat > 90 {
		return models.Coordinates{}, fmt.Errorf("invalid latitude")
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(lngRaw), 64)
	if err != nil || lng < -180 || lng > 180 {
		return models.Coordinates{}, fmt.Errorf("invalid longitude")
	}
	return models.Coordinates{Lat: lat, Lng: lng}, nil
}
