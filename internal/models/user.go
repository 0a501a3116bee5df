package models

import "time"

type User struct {
	ID             int64     `json:"id"`
	Email          string    `json:"email"`
	DisplayName    string    `json:"display_name"`
	PasswordHash   string    `json:"-"`
	TelegramChatID int64     `json:"telegram_chat_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Session is the caller identity handed to every operation that needs one.
type Session struct {
	UserID        int64
	Email         string
	Authenticated bool
}

// NewSession builds an authenticated session for a known user.
func NewSession(userID int64, email string) Session {
	return Session{UserID: userID, Email: email, Authenticated: userID > 0}
}

// Anonymous is the session of a caller without credentials.
func Anonymous() Session {
	return Session{}
}
