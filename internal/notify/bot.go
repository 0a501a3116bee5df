package notify

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"thumbsup/internal/database"
	"thumbsup/internal/domain"
	"thumbsup/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

const (
	ridesPerPage    = 5
	ridesPagePrefix = "rides:"
)

// UpdatesSource is the long-polling side of the Telegram bot API.
type UpdatesSource interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// RideLister is the read side of the catalog the bot shows.
type RideLister interface {
	ListRides(ctx context.Context) ([]*models.Ride, error)
}

// ChatLinker spends a one-time link code and binds the chat it came from.
type ChatLinker interface {
	ConsumeTelegramLinkCode(ctx context.Context, code string, chatID int64) (*models.User, error)
}

// callbackAnswerer is implemented by *tgbotapi.BotAPI; Send cannot answer
// callback queries because the API returns a bool there.
type callbackAnswerer interface {
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Bot links chats to accounts with "/start CODE", where the code comes from
// POST /api/v1/me/telegram/code, and lists rides with free seats on /rides.
type Bot struct {
	updates UpdatesSource
	sender  domain.TelegramSender
	rides   RideLister
	links   ChatLinker
	logger  *zerolog.Logger
}

func NewBot(updates UpdatesSource, sender domain.TelegramSender, rides RideLister, links ChatLinker, logger *zerolog.Logger) *Bot {
	l := logger.With().Str("component", "telegram_bot").Logger()
	return &Bot{updates: updates, sender: sender, rides: rides, links: links, logger: &l}
}

// Run polls updates until ctx is done.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.updates.GetUpdatesChan(u)

	b.logger.Info().Msg("listening for updates")
	for {
		select {
		case <-ctx.Done():
			b.updates.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	if update.CallbackQuery != nil {
		b.handleCallback(ctx, update.CallbackQuery)
		return
	}
	if update.Message == nil || !update.Message.IsCommand() {
		return
	}

	chatID := update.Message.Chat.ID
	switch update.Message.Command() {
	case "start", "link":
		code := strings.ToUpper(strings.TrimSpace(update.Message.CommandArguments()))
		if code == "" {
			b.reply(tgbotapi.NewMessage(chatID, startHelp))
			return
		}
		b.linkChat(ctx, chatID, code)
	case "rides":
		b.sendRides(ctx, chatID, 0, 0)
	default:
		b.reply(tgbotapi.NewMessage(chatID, "Unknown command. Use /start CODE to link your account or /rides to list rides."))
	}
}

const startHelp = "To get ride notifications here, request a code with POST /api/v1/me/telegram/code " +
	"and send it to me as /start CODE.\nUse /rides to see rides with free seats."

func (b *Bot) linkChat(ctx context.Context, chatID int64, code string) {
	user, err := b.links.ConsumeTelegramLinkCode(ctx, code, chatID)
	switch {
	case errors.Is(err, database.ErrLinkCodeInvalid):
		b.reply(tgbotapi.NewMessage(chatID, "This code is unknown or expired. Request a new one and try again."))
		return
	case err != nil:
		b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("link chat failed")
		b.reply(tgbotapi.NewMessage(chatID, "Linking is unavailable right now, try again later."))
		return
	}
	b.logger.Info().Int64("user_id", user.ID).Int64("chat_id", chatID).Msg("chat linked")
	b.reply(tgbotapi.NewMessage(chatID, fmt.Sprintf(
		"Linked to %s. Ride notifications will arrive in this chat.", user.Email)))
}

func (b *Bot) handleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) {
	if answerer, ok := b.sender.(callbackAnswerer); ok {
		if _, err := answerer.Request(tgbotapi.NewCallback(q.ID, "")); err != nil {
			b.logger.Warn().Err(err).Msg("answer callback failed")
		}
	}
	if q.Message == nil || !strings.HasPrefix(q.Data, ridesPagePrefix) {
		return
	}
	page, err := strconv.Atoi(strings.TrimPrefix(q.Data, ridesPagePrefix))
	if err != nil || page < 0 {
		return
	}
	b.sendRides(ctx, q.Message.Chat.ID, q.Message.MessageID, page)
}

// sendRides renders one page of bookable rides. A non-zero messageID edits
// the message in place.
func (b *Bot) sendRides(ctx context.Context, chatID int64, messageID, page int) {
	all, err := b.rides.ListRides(ctx)
	if err != nil {
		b.logger.Error().Err(err).Msg("list rides failed")
		b.reply(tgbotapi.NewMessage(chatID, "Rides are unavailable right now, try again later."))
		return
	}

	open := make([]*models.Ride, 0, len(all))
	for _, r := range all {
		if r.Status == models.RideStatusActive && r.SeatsAvailable > 0 {
			open = append(open, r)
		}
	}
	if len(open) == 0 {
		b.reply(tgbotapi.NewMessage(chatID, "No rides with free seats yet."))
		return
	}

	text, markup := ridesPage(open, page)
	if messageID != 0 {
		edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
		if markup != nil {
			edit.ReplyMarkup = markup
		}
		b.reply(edit)
		return
	}
	msg := tgbotapi.NewMessage(chatID, text)
	if markup != nil {
		msg.ReplyMarkup = *markup
	}
	b.reply(msg)
}

// ridesPage clamps page into range and returns its text with navigation
// buttons, or a nil markup when everything fits on one page.
func ridesPage(rides []*models.Ride, page int) (string, *tgbotapi.InlineKeyboardMarkup) {
	totalPages := (len(rides) + ridesPerPage - 1) / ridesPerPage
	if page >= totalPages {
		page = totalPages - 1
	}
	start := page * ridesPerPage
	end := start + ridesPerPage
	if end > len(rides) {
		end = len(rides)
	}

	var sb strings.Builder
	sb.WriteString("Rides with free seats\n")
	if totalPages > 1 {
		fmt.Fprintf(&sb, "Page %d of %d\n", page+1, totalPages)
	}
	for _, r := range rides[start:end] {
		fmt.Fprintf(&sb, "\n#%d %s → %s\n%s, %d seat(s) left, %s per seat\n",
			r.ID, r.DepartureLocation, r.Destination,
			departure(r.DepartureDate, r.DepartureTime), r.SeatsAvailable, r.Price())
	}

	var nav []tgbotapi.InlineKeyboardButton
	if page > 0 {
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("⬅️ Back", fmt.Sprintf("%s%d", ridesPagePrefix, page-1)))
	}
	if end < len(rides) {
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("Next ➡️", fmt.Sprintf("%s%d", ridesPagePrefix, page+1)))
	}
	if len(nav) == 0 {
		return sb.String(), nil
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(nav)
	return sb.String(), &markup
}

func (b *Bot) reply(c tgbotapi.Chattable) {
	if _, err := b.sender.Send(c); err != nil {
		b.logger.Error().Err(err).Msg("reply failed")
	}
}
