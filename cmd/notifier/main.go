// Command notifier consumes inventory events from the broker and sends
// Telegram messages to the affected users. It also runs the bot that links
// chats to accounts with one-time codes.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"thumbsup/internal/config"
	"thumbsup/internal/database"
	"thumbsup/internal/events"
	"thumbsup/internal/logging"
	"thumbsup/internal/notify"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}
	logger := *logging.Component(baseLogger, "notifier-main")

	if cfg.Telegram.BotToken == "" {
		return errors.New("telegram.bot_token is required")
	}
	if cfg.AMQP.URL == "" {
		return errors.New("amqp.url is required")
	}

	db, err := database.NewDB(cfg.Database.Path, &logger, database.WithBusyTimeout(cfg.Database.BusyTimeout))
	if err != nil {
		logger.Error().Err(err).Msg("Ошибка инициализации базы данных")
		return err
	}
	defer db.Close()

	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
	if err != nil {
		logger.Error().Err(err).Msg("Ошибка создания BotAPI")
		return err
	}
	botAPI.Debug = cfg.Telegram.Debug

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, ch, err := events.Dial(ctx, cfg.AMQP.URL, 10, &logger)
	if err != nil {
		return fmt.Errorf("amqp dial: %w", err)
	}
	defer conn.Close()

	go notify.NewBot(botAPI, botAPI, db, db, &logger).Run(ctx)

	notifier := notify.NewNotifier(botAPI, db, &logger)
	consumer := events.NewConsumer(ch, cfg.AMQP.Exchange, cfg.AMQP.Queue, &logger)

	logger.Info().Str("bot", botAPI.Self.UserName).Str("queue", cfg.AMQP.Queue).Msg("notifier started")
	if err := consumer.Run(ctx, notifier.Handle); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	logger.Info().Msg("Shutdown complete.")
	return nil
}
