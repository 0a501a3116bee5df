package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"thumbsup/internal/api"
	"thumbsup/internal/config"
	"thumbsup/internal/database"
	"thumbsup/internal/domain"
	"thumbsup/internal/events"
	"thumbsup/internal/geo"
	"thumbsup/internal/google"
	"thumbsup/internal/logging"
	"thumbsup/internal/metrics"
	"thumbsup/internal/models"
	"thumbsup/internal/notify"
	"thumbsup/internal/repository"
	"thumbsup/internal/service"
	"thumbsup/internal/worker"
	"thumbsup/internal/ws"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v2"
)

var resyncSheets = flag.Bool("resync-sheets", false, "rewrite the bookings spreadsheet from the database and exit")

func main() {
	flag.Parse()
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	if err := prepareDirectories(cfg, &logger); err != nil {
		return err
	}

	db, err := database.NewDB(cfg.Database.Path, &logger, database.WithBusyTimeout(cfg.Database.BusyTimeout))
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sheetsService := initGoogleSheets(ctx, cfg, &logger)
	if *resyncSheets {
		return resync(ctx, db, sheetsService, &logger)
	}

	redisClient := initRedis(ctx, cfg, &logger)
	defer func() { _ = repository.Close(redisClient) }()
	cache := initCache(redisClient, &logger)

	geoClient := geo.NewClient(cfg.Geo, &logger)
	geoClient.UseCache(cache)

	eventBus := events.NewEventBus()

	amqpConn := initAMQPForwarder(ctx, cfg, eventBus, &logger)
	if amqpConn != nil {
		defer amqpConn.Close()
	}

	// in-process notifications only when no broker carries events to cmd/notifier
	if amqpConn == nil {
		initNotifier(cfg, db, eventBus, &logger)
	}

	hub := ws.NewHub(cfg.API.HTTP.CORSOrigins, &logger)
	hub.Attach(eventBus)
	go hub.Run(ctx)

	// Воркер синхронизации Google Sheets
	var syncWorker domain.SyncWorker
	if sheetsService != nil {
		sheetsWorker := worker.NewSheetsWorker(db, sheetsService, redisClient, worker.SheetsRetryPolicy(), &logger)
		go sheetsWorker.Start(ctx)
		go sheetsService.StartCacheRefresh(ctx, 10*time.Minute)
		syncWorker = sheetsWorker
	}

	authService := service.NewAuthService(db, cfg.Auth, &logger)
	rideService := service.NewRideService(db, db, db, geoClient, eventBus, &logger)
	inventoryService := service.NewInventoryService(db, eventBus, syncWorker, &logger)
	inventoryService.ArchiveDeletedRides(filepath.Join(cfg.Exports.Path, "deleted"))

	if err := seedRides(ctx, cfg, authService, rideService, &logger); err != nil {
		return err
	}

	if cfg.Backup.Enabled {
		backupService := database.NewBackupService(db, cfg.Backup, &logger)
		go backupService.Start(ctx)
	}

	startMetrics(ctx, cfg, &logger)

	if !cfg.API.Enabled {
		logger.Warn().Msg("API is disabled in config, nothing to serve")
		<-ctx.Done()
		return nil
	}

	var grpcServer *api.GRPCServer
	if cfg.API.GRPC.Enabled {
		if !cfg.API.Auth.Enabled {
			logger.Warn().Msg("grpc api keys disabled: only anonymous reads will be served")
		}
		grpcServer, err = api.NewGRPCServer(&cfg.API, rideService, inventoryService, &logger)
		if err != nil {
			logger.Error().Err(err).Msg("create grpc server")
			return err
		}
	}

	httpServer := api.NewHTTPServer(cfg.API, api.Deps{
		Identity:  authService,
		Rides:     rideService,
		Inventory: inventoryService,
		Geocoder:  geoClient,
		Router:    geoClient,
		Cache:     cache,
		Hub:       hub,
		Ready:     db.HealthCheck,
	}, &logger)

	return startServers(ctx, grpcServer, httpServer, cfg, &logger)
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, *logging.Component(baseLogger, "api-main"), closer, nil
}

func prepareDirectories(cfg *config.Config, logger *zerolog.Logger) error {
	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		logger.Error().Err(err).Msg("Ошибка создания директории для базы данных")
		return err
	}
	if err := os.MkdirAll(cfg.Exports.Path, 0o755); err != nil {
		logger.Error().Err(err).Msg("Ошибка создания директории для экспорта")
		return err
	}
	return nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, redisClient); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = redisClient.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

func initCache(redisClient *redis.Client, logger *zerolog.Logger) domain.CacheRepository {
	fallback := repository.NewMemoryCacheRepository()
	if redisClient == nil {
		return fallback
	}
	primary := repository.NewRedisCacheRepository(redisClient, "thumbsup")
	return repository.NewFailoverCacheRepository(primary, fallback, logger)
}

func initGoogleSheets(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *google.SheetsService {
	if cfg.Google.GoogleCredentialsFile == "" || cfg.Google.BookingSpreadSheetID == "" {
		return nil
	}

	sheetsService, err := google.NewSheetsService(ctx, cfg.Google.GoogleCredentialsFile, cfg.Google.BookingSpreadSheetID, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("google sheets init failed, continuing without sheets")
		return nil
	}
	if err := sheetsService.TestConnection(ctx); err != nil {
		if email, emailErr := google.ServiceAccountEmail(cfg.Google.GoogleCredentialsFile); emailErr == nil {
			logger.Warn().Err(err).Str("share_with", email).Msg("google sheets unreachable, share the spreadsheet with the service account")
		} else {
			logger.Warn().Err(err).Msg("google sheets unreachable")
		}
		return nil
	}
	logger.Info().Msg("google sheets connected")
	return sheetsService
}

// resync rewrites the spreadsheet from the ledger.
func resync(ctx context.Context, db *database.DB, sheetsService *google.SheetsService, logger *zerolog.Logger) error {
	if sheetsService == nil {
		return errors.New("resync requested but google sheets is not configured")
	}
	bookings, err := db.ListAllBookings(ctx)
	if err != nil {
		return err
	}

	rides := make(map[int64]*models.Ride)
	for _, b := range bookings {
		if _, seen := rides[b.RideID]; seen {
			continue
		}
		ride, err := db.GetRide(ctx, b.RideID)
		if err != nil && !errors.Is(err, database.ErrRideNotFound) {
			return err
		}
		rides[b.RideID] = ride
	}

	if err := sheetsService.ReplaceBookings(ctx, bookings, rides); err != nil {
		return err
	}
	logger.Info().Int("bookings", len(bookings)).Msg("spreadsheet resynced")
	return nil
}

func initAMQPForwarder(ctx context.Context, cfg *config.Config, bus *events.EventBus, logger *zerolog.Logger) *amqp.Connection {
	if cfg.AMQP.URL == "" {
		return nil
	}

	conn, ch, err := events.Dial(ctx, cfg.AMQP.URL, 5, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("amqp unavailable, events stay in process")
		return nil
	}
	forwarder, err := events.NewForwarder(ch, cfg.AMQP.Exchange, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("amqp exchange declare failed, events stay in process")
		_ = conn.Close()
		return nil
	}
	forwarder.Attach(bus)

	logger.Info().Str("exchange", cfg.AMQP.Exchange).Msg("forwarding events to amqp")
	return conn
}

func initNotifier(cfg *config.Config, db *database.DB, bus *events.EventBus, logger *zerolog.Logger) {
	if cfg.Telegram.BotToken == "" {
		return
	}

	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
	if err != nil {
		logger.Warn().Err(err).Msg("telegram bot init failed, notifications disabled")
		return
	}
	botAPI.Debug = cfg.Telegram.Debug

	notify.NewNotifier(botAPI, db, logger).Attach(bus)
	logger.Info().Str("bot", botAPI.Self.UserName).Msg("telegram notifications enabled")
}

type seedUser struct {
	Email       string `yaml:"email"`
	DisplayName string `yaml:"display_name"`
	Password    string `yaml:"password"`
}

type seedFile struct {
	Users []seedUser     `yaml:"users"`
	Rides []*models.Ride `yaml:"rides"`
}

func seedRides(ctx context.Context, cfg *config.Config, auth *service.AuthService, rides *service.RideService, logger *zerolog.Logger) error {
	path := cfg.Seed.RidesPath
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		logger.Error().Err(err).Str("seed_path", path).Msg("read seed")
		return err
	}

	var seed seedFile
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &seed); err != nil {
		logger.Error().Err(err).Str("seed_path", path).Msg("parse seed")
		return err
	}

	for _, u := range seed.Users {
		password := u.Password
		if password == "" {
			// войти можно будет только после сброса пароля
			password = uuid.NewString()
			logger.Warn().Str("email", u.Email).Msg("seed user has no password, using a random one")
		}
		user, created, err := auth.EnsureUser(ctx, u.Email, password, u.DisplayName)
		if err != nil {
			logger.Error().Err(err).Str("email", u.Email).Msg("seed user")
			return err
		}
		if created {
			logger.Info().Int64("user_id", user.ID).Str("email", user.Email).Msg("seed user created")
		}
	}

	created, err := rides.SeedRides(ctx, seed.Rides)
	if err != nil {
		logger.Error().Err(err).Msg("seed rides")
		return err
	}
	if created > 0 {
		logger.Info().Int("rides", created).Str("seed_path", path).Msg("seed loaded")
	}
	return nil
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, logger)
}

func startServers(
	ctx context.Context,
	grpcServer *api.GRPCServer,
	httpServer *api.HTTPServer,
	cfg *config.Config,
	logger *zerolog.Logger,
) error {
	if grpcServer != nil {
		go func() {
			if err := grpcServer.Serve(); err != nil {
				logger.Error().Err(err).Msg("grpc server stopped")
			}
		}()
	}

	if cfg.API.HTTP.Enabled {
		go func() {
			if err := httpServer.Start(); err != nil {
				logger.Error().Err(err).Msg("http server stopped")
			}
		}()
	}

	logger.Info().Bool("grpc", grpcServer != nil).Int("http_port", cfg.API.HTTP.Port).Msg("API server started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if grpcServer != nil {
		grpcServer.Shutdown(shutdownCtx)
	}
	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("API server stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
