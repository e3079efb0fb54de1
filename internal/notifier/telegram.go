package notifier

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/amishk599/jobalert/internal/model"
)

// Ensure TelegramSender implements model.Sender.
var _ model.Sender = (*TelegramSender)(nil)

// NewBot authenticates against the Bot API. timeout bounds every API call,
// including sends.
func NewBot(token string, timeout time.Duration) (*tgbotapi.BotAPI, error) {
	return NewBotWithEndpoint(token, tgbotapi.APIEndpoint, &http.Client{Timeout: timeout})
}

// NewBotWithEndpoint is NewBot against a custom API endpoint
// (format "https://host/bot%s/%s").
func NewBotWithEndpoint(token, endpoint string, client *http.Client) (*tgbotapi.BotAPI, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram: empty bot token")
	}
	bot, err := tgbotapi.NewBotAPIWithClient(token, endpoint, client)
	if err != nil {
		return nil, fmt.Errorf("telegram: authenticate: %w", err)
	}
	return bot, nil
}

// TelegramSender delivers HTML messages through the Bot API.
type TelegramSender struct {
	bot *tgbotapi.BotAPI
}

// NewTelegramSender returns a sender backed by bot.
func NewTelegramSender(bot *tgbotapi.BotAPI) *TelegramSender {
	return &TelegramSender{bot: bot}
}

// Send posts text to the chat identified by to. API failures (blocked bot,
// flood control) are returned as *model.HTTPError.
func (s *TelegramSender) Send(ctx context.Context, to model.RecipientID, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(int64(to), text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true

	if _, err := s.bot.Send(msg); err != nil {
		var apiErr *tgbotapi.Error
		if errors.As(err, &apiErr) {
			return &model.HTTPError{
				StatusCode: apiErr.Code,
				RetryAfter: time.Duration(apiErr.RetryAfter) * time.Second,
				Err:        err,
			}
		}
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}
