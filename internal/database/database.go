package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

const memoryPath = ":memory:"

var (
	ErrRideNotFound           = errors.New("ride not found")
	ErrBookingNotFound        = errors.New("booking not found")
	ErrUserNotFound           = errors.New("user not found")
	ErrInsufficientSeats      = errors.New("not enough seats available")
	ErrAlreadyCancelled       = errors.New("booking already cancelled")
	ErrNotOwner               = errors.New("ride belongs to another user")
	ErrDuplicateEmail         = errors.New("email already registered")
	ErrConcurrentModification = errors.New("ride was modified concurrently")
	ErrLinkCodeInvalid        = errors.New("link code is unknown or expired")
)

type DB struct {
	*sql.DB
	path   string
	logger *zerolog.Logger
}

type options struct {
	busyTimeout time.Duration
}

type Option func(*options)

// WithBusyTimeout sets how long a writer waits for the sqlite write lock.
func WithBusyTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.busyTimeout = d
		}
	}
}

// NewDB opens (and migrates) the sqlite database at path.
// Transactions start with BEGIN IMMEDIATE so concurrent writers queue on the
// write lock instead of failing on upgrade.
func NewDB(path string, logger *zerolog.Logger, opts ...Option) (*DB, error) {
	o := options{busyTimeout: 5 * time.Second}
	for _, opt := range opts {
		opt(&o)
	}

	if path != memoryPath {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("%s?_busy_timeout=%d&_txlock=immediate", path, o.busyTimeout.Milliseconds())
	if path != memoryPath {
		dsn += "&_journal_mode=WAL"
	}

	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// every :memory: connection is a separate database
	if path == memoryPath {
		sqlDB.SetMaxOpenConns(1)
	}

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	dbLogger := logger.With().Str("component", "database").Logger()

	db := &DB{DB: sqlDB, path: path, logger: &dbLogger}
	if err := db.createTables(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	db.logger.Info().Str("path", path).Msg("database initialized")
	return db, nil
}

// Path returns the file the database was opened from.
func (db *DB) Path() string {
	return db.path
}

func (db *DB) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            email TEXT UNIQUE NOT NULL,
            display_name TEXT NOT NULL DEFAULT '',
            password_hash TEXT NOT NULL,
            telegram_chat_id INTEGER NOT NULL DEFAULT 0,
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS rides (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            departure_location TEXT NOT NULL,
            departure_address TEXT NOT NULL DEFAULT '',
            departure_lat REAL NOT NULL DEFAULT 0,
            departure_lng REAL NOT NULL DEFAULT 0,
            destination TEXT NOT NULL,
            destination_address TEXT NOT NULL DEFAULT '',
            destination_lat REAL NOT NULL DEFAULT 0,
            destination_lng REAL NOT NULL DEFAULT 0,
            departure_date TEXT NOT NULL,
            departure_time TEXT NOT NULL DEFAULT '',
            seats_offered INTEGER NOT NULL,
            seats_available INTEGER NOT NULL,
            price_cents INTEGER NOT NULL,
            description TEXT NOT NULL DEFAULT '',
            estimated_duration TEXT NOT NULL DEFAULT '',
            estimated_distance TEXT NOT NULL DEFAULT '',
            created_by INTEGER NOT NULL,
            creator_email TEXT NOT NULL DEFAULT '',
            status TEXT NOT NULL DEFAULT 'active',
            created_at DATETIME NOT NULL,
            version INTEGER NOT NULL DEFAULT 1
        )`,
		`CREATE TABLE IF NOT EXISTS bookings (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            user_id INTEGER NOT NULL,
            user_email TEXT NOT NULL DEFAULT '',
            ride_id INTEGER NOT NULL,
            seats INTEGER NOT NULL,
            total_price_cents INTEGER NOT NULL,
            booking_date TEXT NOT NULL,
            status TEXT NOT NULL DEFAULT 'confirmed',
            estimated_duration TEXT NOT NULL DEFAULT '',
            estimated_distance TEXT NOT NULL DEFAULT '',
            created_at DATETIME NOT NULL,
            canceled_at DATETIME
        )`,
		`CREATE TABLE IF NOT EXISTS sync_queue (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            task_type TEXT NOT NULL,
            booking_id INTEGER NOT NULL,
            payload TEXT,
            status TEXT NOT NULL DEFAULT 'pending',
            retry_count INTEGER NOT NULL DEFAULT 0,
            last_error TEXT,
            created_at DATETIME NOT NULL,
            processed_at DATETIME,
            next_retry_at DATETIME
        )`,
		`CREATE TABLE IF NOT EXISTS telegram_link_codes (
            code TEXT PRIMARY KEY,
            user_id INTEGER NOT NULL,
            expires_at DATETIME NOT NULL
        )`,

		`CREATE INDEX IF NOT EXISTS idx_rides_created_by ON rides(created_by)`,
		`CREATE INDEX IF NOT EXISTS idx_rides_departure_date ON rides(departure_date)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_user_id ON bookings(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_ride_id ON bookings(ride_id)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_status ON bookings(status)`,
		`CREATE INDEX IF NOT EXISTS idx_sync_queue_status ON sync_queue(status, next_retry_at)`,
		`CREATE INDEX IF NOT EXISTS idx_telegram_link_codes_user ON telegram_link_codes(user_id)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", firstLine(query), err)
		}
	}
	return nil
}

// HealthCheck pings the database with a short timeout.
func (db *DB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return db.PingContext(ctx)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}

func firstLine(q string) string {
	q = strings.TrimSpace(q)
	if i := strings.IndexByte(q, '\n'); i > 0 {
		return q[:i]
	}
	return q
}

// prefixed qualifies a comma separated column list with a table alias.
func prefixed(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}
