package notifications

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// messageSender is the slice of the Telegram API used here.
type messageSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram pushes notifications to a single chat.
type Telegram struct {
	api    messageSender
	chatID int64
	log    zerolog.Logger
}

func NewTelegram(token string, chatID int64, logger zerolog.Logger) (*Telegram, error) {
	if chatID == 0 {
		return nil, fmt.Errorf("telegram chat id not set")
	}
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	t := &Telegram{api: api, chatID: chatID, log: logger.With().Str("component", "telegram").Logger()}
	t.log.Info().Str("username", api.Self.UserName).Msg("telegram notifier initialized")
	return t, nil
}

func (t *Telegram) Send(text string) {
	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := t.api.Send(msg); err != nil {
		t.log.Error().Err(err).Msg("failed to send telegram message")
	}
}
