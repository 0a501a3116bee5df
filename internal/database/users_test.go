package database

import (
	"context"
	"testing"
	"time"

	"thumbsup/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserCRUD(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()

	user := &models.User{Email: " Rider@Example.com ", DisplayName: "Rider", PasswordHash: "hash"}
	require.NoError(t, db.CreateUser(ctx, user))
	assert.NotZero(t, user.ID)
	assert.Equal(t, "rider@example.com", user.Email)

	dup := &models.User{Email: "RIDER@example.com", PasswordHash: "other"}
	assert.ErrorIs(t, db.CreateUser(ctx, dup), ErrDuplicateEmail)

	byEmail, err := db.GetUserByEmail(ctx, "rider@EXAMPLE.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, byEmail.ID)
	assert.Equal(t, "hash", byEmail.PasswordHash)

	byID, err := db.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "Rider", byID.DisplayName)
	assert.Zero(t, byID.TelegramChatID)

	_, err = db.GetUserByID(ctx, 9999)
	assert.ErrorIs(t, err, ErrUserNotFound)
	_, err = db.GetUserByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestTelegramLinkCodes(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	rider := &models.User{Email: "rider@example.com", PasswordHash: "hash"}
	require.NoError(t, db.CreateUser(ctx, rider))
	other := &models.User{Email: "other@example.com", PasswordHash: "hash"}
	require.NoError(t, db.CreateUser(ctx, other))
	later := time.Now().Add(15 * time.Minute)

	t.Run("UnknownCode", func(t *testing.T) {
		_, err := db.ConsumeTelegramLinkCode(ctx, "NOPE", 4242)
		assert.ErrorIs(t, err, ErrLinkCodeInvalid)
	})

	t.Run("SingleUse", func(t *testing.T) {
		require.NoError(t, db.CreateTelegramLinkCode(ctx, rider.ID, "AAAA111111", later))

		linked, err := db.ConsumeTelegramLinkCode(ctx, "AAAA111111", 4242)
		require.NoError(t, err)
		assert.Equal(t, rider.ID, linked.ID)
		assert.Equal(t, int64(4242), linked.TelegramChatID)

		_, err = db.ConsumeTelegramLinkCode(ctx, "AAAA111111", 9999)
		assert.ErrorIs(t, err, ErrLinkCodeInvalid)

		got, err := db.GetUserByID(ctx, rider.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(4242), got.TelegramChatID, "replayed code changes nothing")
	})

	t.Run("NewCodeReplacesOld", func(t *testing.T) {
		require.NoError(t, db.CreateTelegramLinkCode(ctx, rider.ID, "BBBB111111", later))
		require.NoError(t, db.CreateTelegramLinkCode(ctx, rider.ID, "BBBB222222", later))

		_, err := db.ConsumeTelegramLinkCode(ctx, "BBBB111111", 5555)
		assert.ErrorIs(t, err, ErrLinkCodeInvalid)
		_, err = db.ConsumeTelegramLinkCode(ctx, "BBBB222222", 5555)
		require.NoError(t, err)
	})

	t.Run("Expired", func(t *testing.T) {
		require.NoError(t, db.CreateTelegramLinkCode(ctx, other.ID, "CCCC111111", time.Now().Add(-time.Second)))

		_, err := db.ConsumeTelegramLinkCode(ctx, "CCCC111111", 7777)
		assert.ErrorIs(t, err, ErrLinkCodeInvalid)

		got, err := db.GetUserByID(ctx, other.ID)
		require.NoError(t, err)
		assert.Zero(t, got.TelegramChatID)

		var left int
		require.NoError(t, db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM telegram_link_codes WHERE code = ?`, "CCCC111111").Scan(&left))
		assert.Zero(t, left, "expired code is removed")
	})

	t.Run("ChatMovesBetweenAccounts", func(t *testing.T) {
		require.NoError(t, db.CreateTelegramLinkCode(ctx, other.ID, "DDDD111111", later))
		_, err := db.ConsumeTelegramLinkCode(ctx, "DDDD111111", 5555)
		require.NoError(t, err)

		prev, err := db.GetUserByID(ctx, rider.ID)
		require.NoError(t, err)
		assert.Zero(t, prev.TelegramChatID, "chat 5555 now belongs to other")
	})
}
