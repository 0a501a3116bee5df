package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"thumbsup/internal/models"
)

// CreateTelegramLinkCode stores a one-time code for userID. Codes issued
// earlier for the same user stop working.
func (db *DB) CreateTelegramLinkCode(ctx context.Context, userID int64, code string, expiresAt time.Time) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM telegram_link_codes WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("failed to drop old link codes: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO telegram_link_codes (code, user_id, expires_at) VALUES (?, ?, ?)`,
		code, userID, expiresAt); err != nil {
		return fmt.Errorf("failed to store link code: %w", err)
	}
	return tx.Commit()
}

// ConsumeTelegramLinkCode spends code and points the owner's notifications
// at chatID. A chat belongs to one account at a time, so any other account
// linked to chatID is unlinked. Unknown, used and expired codes all return
// ErrLinkCodeInvalid.
func (db *DB) ConsumeTelegramLinkCode(ctx context.Context, code string, chatID int64) (*models.User, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var (
		userID    int64
		expiresAt time.Time
	)
	err = tx.QueryRowContext(ctx,
		`SELECT user_id, expires_at FROM telegram_link_codes WHERE code = ?`, code).
		Scan(&userID, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrLinkCodeInvalid
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read link code: %w", err)
	}

	// код одноразовый, даже просроченный удаляем
	if _, err := tx.ExecContext(ctx, `DELETE FROM telegram_link_codes WHERE code = ?`, code); err != nil {
		return nil, fmt.Errorf("failed to spend link code: %w", err)
	}
	now := time.Now()
	if !now.Before(expiresAt) {
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("failed to commit link code cleanup: %w", err)
		}
		return nil, ErrLinkCodeInvalid
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE users SET telegram_chat_id = 0, updated_at = ? WHERE telegram_chat_id = ? AND id <> ?`,
		now, chatID, userID); err != nil {
		return nil, fmt.Errorf("failed to unlink previous account: %w", err)
	}
	result, err := tx.ExecContext(ctx,
		`UPDATE users SET telegram_chat_id = ?, updated_at = ? WHERE id = ?`, chatID, now, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to update telegram chat id: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return nil, ErrUserNotFound
	}

	var u models.User
	err = tx.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, userID).Scan(
		&u.ID, &u.Email, &u.DisplayName, &u.PasswordHash, &u.TelegramChatID, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to read linked user: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit telegram link: %w", err)
	}
	return &u, nil
}
