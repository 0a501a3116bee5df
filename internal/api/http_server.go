package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"thumbsup/internal/config"
	"thumbsup/internal/domain"
	"thumbsup/internal/metrics"
	"thumbsup/internal/models"
	"thumbsup/internal/service"
	"thumbsup/internal/ws"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
)

const (
	sessionCtxKey = "session"
	requestCtxKey = "request_id"

	// loginAttempts попыток входа с одного адреса за окно RateLimitWindow
	loginAttempts = 10
)

// Deps is everything the HTTP API calls into. Geocoder, Router, Cache, Hub
// and Ready are optional.
type Deps struct {
	Identity  Identity
	Rides     RideCatalog
	Inventory Inventory
	Geocoder  domain.Geocoder
	Router    domain.Router
	Cache     domain.CacheRepository
	Hub       *ws.Hub
	Ready     func(ctx context.Context) error
}

// HTTPServer is the public JSON API.
type HTTPServer struct {
	cfg     config.APIConfig
	deps    Deps
	echo    *echo.Echo
	server  *http.Server
	limiter *rateLimiter
	log     zerolog.Logger

	stopOnce sync.Once
	stop     chan struct{}
}

func NewHTTPServer(cfg config.APIConfig, deps Deps, logger *zerolog.Logger) *HTTPServer {
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "http").Logger()
	}

	s := &HTTPServer{
		cfg:     cfg,
		deps:    deps,
		limiter: newRateLimiter(cfg.RateLimit),
		log:     l,
		stop:    make(chan struct{}),
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.handleEchoError

	e.Use(middleware.Recover())
	if len(cfg.HTTP.CORSOrigins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: cfg.HTTP.CORSOrigins,
			AllowHeaders: []string{echo.HeaderAuthorization, echo.HeaderContentType, echo.HeaderXRequestID},
		}))
	}
	e.Use(s.requestLogger)

	e.GET("/healthz", s.healthz)
	e.GET("/readyz", s.readyz)

	v1 := e.Group("/api/v1", s.sessionMiddleware, s.rateLimit)
	s.registerRoutes(v1)

	s.echo = e
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           e,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *HTTPServer) registerRoutes(g *echo.Group) {
	g.POST("/auth/register", s.register)
	g.POST("/auth/login", s.login)

	g.GET("/rides", s.listRides)
	g.POST("/rides", s.createRide)
	g.GET("/rides/:id", s.getRide)
	g.DELETE("/rides/:id", s.deleteRide)
	g.POST("/rides/:id/bookings", s.book)
	g.GET("/rides/:id/manifest.xlsx", s.manifest)

	g.DELETE("/bookings/:id", s.cancel)
	g.GET("/bookings/:id/ticket.pdf", s.ticket)
	g.POST("/tickets/verify", s.verifyTicket)

	g.GET("/me", s.me)
	g.GET("/me/bookings", s.myBookings)
	g.GET("/me/rides", s.myRides)
	g.POST("/me/telegram/code", s.telegramCode)

	g.GET("/geo/search", s.geoSearch)
	g.GET("/geo/route", s.geoRoute)

	if s.deps.Hub != nil {
		g.GET("/ws", echo.WrapHandler(http.HandlerFunc(s.deps.Hub.ServeWS)))
	}
}

// Handler exposes the router, mostly for tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.echo
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	go s.sweepLimiters()

	s.log.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stop) })
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) sweepLimiters() {
	if !s.limiter.enabled() {
		return
	}
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case now := <-ticker.C:
			if n := s.limiter.sweep(now); n > 0 {
				s.log.Debug().Int("removed", n).Msg("idle rate limiters dropped")
			}
		}
	}
}

func (s *HTTPServer) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		requestID := strings.TrimSpace(req.Header.Get(echo.HeaderXRequestID))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(requestCtxKey, requestID)
		c.Response().Header().Set(echo.HeaderXRequestID, requestID)

		start := time.Now()
		err := next(c)
		if err != nil {
			c.Error(err)
		}

		code := c.Response().Status
		route := c.Path()
		if route == "" {
			route = "unmatched"
		}
		metrics.IncHTTP(route, code)

		ev := s.log.Info()
		if code >= http.StatusInternalServerError {
			ev = s.log.Error().Err(err)
		}
		sess := currentSession(c)
		ev.Str("request_id", requestID).
			Str("method", req.Method).
			Str("route", route).
			Int("status", code).
			Int64("user_id", sess.UserID).
			Str("remote", c.RealIP()).
			Dur("duration", time.Since(start)).
			Msg("http request")
		return nil
	}
}

// sessionMiddleware resolves an optional bearer token. Requests without one
// run with an anonymous session, a bad token is rejected outright.
func (s *HTTPServer) sessionMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		sess := models.Anonymous()
		if header := c.Request().Header.Get(echo.HeaderAuthorization); header != "" {
			raw, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || strings.TrimSpace(raw) == "" {
				return s.fail(c, service.ErrUnauthenticated)
			}
			parsed, err := s.deps.Identity.ParseToken(strings.TrimSpace(raw))
			if err != nil {
				return s.fail(c, err)
			}
			sess = parsed
		}
		c.Set(sessionCtxKey, sess)
		return next(c)
	}
}

func (s *HTTPServer) rateLimit(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !s.limiter.enabled() {
			return next(c)
		}
		key := "ip:" + c.RealIP()
		if sess := currentSession(c); sess.Authenticated {
			key = fmt.Sprintf("user:%d", sess.UserID)
		}
		if !s.limiter.Allow(key) {
			c.Response().Header().Set("Retry-After", "1")
			return c.JSON(http.StatusTooManyRequests, errorBody{Error: "too_many_requests", Message: "Too many requests, slow down."})
		}
		return next(c)
	}
}

// allowLogin throttles password attempts per address through the shared
// cache so the limit holds across instances.
func (s *HTTPServer) allowLogin(c echo.Context) bool {
	if s.deps.Cache == nil {
		return true
	}
	ok, err := s.deps.Cache.CheckRateLimit(c.Request().Context(), "login:"+c.RealIP(), loginAttempts, models.RateLimitWindow*time.Second)
	if err != nil {
		s.log.Warn().Err(err).Msg("login rate limit check failed")
		return true
	}
	return ok
}

func currentSession(c echo.Context) models.Session {
	if sess, ok := c.Get(sessionCtxKey).(models.Session); ok {
		return sess
	}
	return models.Anonymous()
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (s *HTTPServer) fail(c echo.Context, err error) error {
	code := httpStatus(err)
	if code >= http.StatusInternalServerError {
		s.log.Error().Err(err).Str("route", c.Path()).Msg("request failed")
	}
	return c.JSON(code, errorBody{Error: errorCode(err), Message: service.UserMessage(err)})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, errorBody{Error: "invalid_input", Message: msg})
}

func (s *HTTPServer) handleEchoError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := http.StatusText(he.Code)
		if m, ok := he.Message.(string); ok && m != "" {
			msg = m
		}
		_ = c.JSON(he.Code, errorBody{Error: strings.ToLower(strings.ReplaceAll(http.StatusText(he.Code), " ", "_")), Message: msg})
		return
	}
	_ = s.fail(c, err)
}
