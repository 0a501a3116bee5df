package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"thumbsup/internal/config"
	"thumbsup/internal/domain"
	"thumbsup/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 6

// AccessToken is a signed bearer token and its expiry.
type AccessToken struct {
	Token     string    `json:"access_token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// AuthService is the identity provider: password accounts and HS256 access
// tokens that resolve to a models.Session.
type AuthService struct {
	users  domain.UserStore
	cfg    config.AuthConfig
	logger *zerolog.Logger
	now    func() time.Time
}

func NewAuthService(users domain.UserStore, cfg config.AuthConfig, logger *zerolog.Logger) *AuthService {
	l := logger.With().Str("component", "auth").Logger()
	return &AuthService{users: users, cfg: cfg, logger: &l, now: time.Now}
}

func (s *AuthService) Register(ctx context.Context, email, password, displayName string) (*models.User, error) {
	email = strings.TrimSpace(email)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("%w: email is not valid", ErrInvalidInput)
	}
	if len(password) < minPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLength)
	}

	cost := s.cfg.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &models.User{
		Email:        email,
		DisplayName:  strings.TrimSpace(displayName),
		PasswordHash: string(hash),
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, storeError(err)
	}

	s.logger.Info().Int64("user_id", user.ID).Msg("user registered")
	return user, nil
}

// EnsureUser returns the account registered under email, creating it when
// missing. created reports whether a new account was made.
func (s *AuthService) EnsureUser(ctx context.Context, email, password, displayName string) (user *models.User, created bool, err error) {
	user, err = s.users.GetUserByEmail(ctx, email)
	if err == nil {
		return user, false, nil
	}
	if !errors.Is(storeError(err), ErrNotFound) {
		return nil, false, storeError(err)
	}
	user, err = s.Register(ctx, email, password, displayName)
	if err != nil {
		return nil, false, err
	}
	return user, true, nil
}

// Login checks the credentials and issues an access token.
func (s *AuthService) Login(ctx context.Context, email, password string) (*models.User, AccessToken, error) {
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		err = storeError(err)
		if errors.Is(err, ErrNotFound) {
			return nil, AccessToken{}, ErrInvalidCredentials
		}
		return nil, AccessToken{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, AccessToken{}, ErrInvalidCredentials
	}

	token, err := s.IssueToken(user)
	if err != nil {
		return nil, AccessToken{}, err
	}
	return user, token, nil
}

func (s *AuthService) IssueToken(user *models.User) (AccessToken, error) {
	now := s.now().UTC()
	exp := now.Add(s.cfg.TokenTTL)
	claims := jwt.MapClaims{
		"sub":   strconv.FormatInt(user.ID, 10),
		"email": user.Email,
		"iss":   s.cfg.Issuer,
		"exp":   exp.Unix(),
		"iat":   now.Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return AccessToken{}, fmt.Errorf("sign token: %w", err)
	}
	return AccessToken{Token: signed, ExpiresAt: exp}, nil
}

// ParseToken validates a bearer token and returns the session it carries.
func (s *AuthService) ParseToken(raw string) (models.Session, error) {
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.cfg.Issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !tok.Valid {
		return models.Anonymous(), fmt.Errorf("%w: invalid token", ErrUnauthenticated)
	}

	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return models.Anonymous(), fmt.Errorf("%w: invalid claims", ErrUnauthenticated)
	}
	sub, _ := claims["sub"].(string)
	userID, err := strconv.ParseInt(sub, 10, 64)
	if err != nil || userID <= 0 {
		return models.Anonymous(), fmt.Errorf("%w: invalid subject", ErrUnauthenticated)
	}
	email, _ := claims["email"].(string)

	return models.NewSession(userID, email), nil
}

// TelegramLink is a one-time code the user sends to the bot as
// "/start CODE" to receive notifications in that chat.
type TelegramLink struct {
	Code      string    `json:"code"`
	Command   string    `json:"command"`
	ExpiresAt time.Time `json:"expires_at"`
}

const telegramLinkTTL = 15 * time.Minute

// TelegramLinkCode issues a fresh link code for the session user. The chat
// id is learned by the bot when the code comes back, so a user can only
// link a chat they write from.
func (s *AuthService) TelegramLinkCode(ctx context.Context, sess models.Session) (TelegramLink, error) {
	if !sess.Authenticated {
		return TelegramLink{}, ErrUnauthenticated
	}
	code := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:10]
	expires := s.now().Add(telegramLinkTTL)
	if err := s.users.CreateTelegramLinkCode(ctx, sess.UserID, code, expires); err != nil {
		return TelegramLink{}, storeError(err)
	}
	s.logger.Debug().Int64("user_id", sess.UserID).Time("expires_at", expires).Msg("telegram link code issued")
	return TelegramLink{Code: code, Command: "/start " + code, ExpiresAt: expires}, nil
}

func (s *AuthService) CurrentUser(ctx context.Context, sess models.Session) (*models.User, error) {
	if !sess.Authenticated {
		return nil, ErrUnauthenticated
	}
	user, err := s.users.GetUserByID(ctx, sess.UserID)
	if err != nil {
		return nil, storeError(err)
	}
	return user, nil
}
