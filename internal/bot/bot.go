package bot

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/amishk599/jobalert/internal/model"
)

// DefaultPollTimeout is how long the Bot API holds an idle getUpdates
// request open.
const DefaultPollTimeout = 30 * time.Second

// pollMargin is added to the long-poll for the client timeout of the
// update stream.
const pollMargin = 10 * time.Second

// PollClient returns an HTTP client for the update stream. Its timeout
// outlasts pollTimeout so an idle long-poll ends with an empty result
// instead of a client error.
func PollClient(pollTimeout time.Duration) *http.Client {
	return &http.Client{Timeout: pollTimeout + pollMargin}
}

// Ensure Bot implements Replier.
var _ Replier = (*Bot)(nil)

// Bot consumes the Bot API update stream and feeds commands to a Handler.
type Bot struct {
	api         *tgbotapi.BotAPI // replies
	updates     *tgbotapi.BotAPI // long-polls getUpdates
	handler     *Handler
	logger      *slog.Logger
	pollTimeout time.Duration
	wg          sync.WaitGroup
}

// New creates a bot that replies through api and reads commands through
// updates. The updates client's timeout must exceed pollTimeout (see
// PollClient); a nil updates reuses api. A non-positive pollTimeout selects
// DefaultPollTimeout. The handler is attached with SetHandler because it
// replies through the bot.
func New(api, updates *tgbotapi.BotAPI, pollTimeout time.Duration, logger *slog.Logger) *Bot {
	if updates == nil {
		updates = api
	}
	if pollTimeout <= 0 {
		pollTimeout = DefaultPollTimeout
	}
	return &Bot{api: api, updates: updates, logger: logger, pollTimeout: pollTimeout}
}

// SetHandler attaches the command handler.
func (b *Bot) SetHandler(h *Handler) {
	b.handler = h
}

// Run long-polls for updates until ctx is cancelled, then waits for the
// commands it started to finish.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = max(int(b.pollTimeout/time.Second), 1)
	updates := b.updates.GetUpdatesChan(u)

	b.logger.Info("listening for bot commands",
		"bot", b.updates.Self.UserName,
		"poll_timeout", b.pollTimeout.String(),
	)

	defer b.wg.Wait()
	defer b.updates.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("stopping bot")
			return nil
		case upd, ok := <-updates:
			if !ok {
				return nil
			}
			b.dispatch(ctx, upd)
		}
	}
}

// dispatch routes one update to the handler in its own goroutine so a long
// /check never blocks the stream.
func (b *Bot) dispatch(ctx context.Context, upd tgbotapi.Update) {
	chat, name, command, ok := commandOf(upd)
	if !ok {
		return
	}
	if cq := upd.CallbackQuery; cq != nil {
		if _, err := b.api.Request(tgbotapi.NewCallback(cq.ID, "")); err != nil {
			b.logger.Debug("answering callback", "error", err)
		}
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		if err := b.handler.Handle(ctx, chat, name, command); err != nil {
			b.logger.Warn("replying to command", "chat", int64(chat), "command", command, "error", err)
		}
	}()
}

// commandOf extracts the chat, display name and command from a message
// command or an inline keyboard press.
func commandOf(upd tgbotapi.Update) (model.RecipientID, string, string, bool) {
	switch {
	case upd.Message != nil && upd.Message.IsCommand():
		m := upd.Message
		return model.RecipientID(m.Chat.ID), displayName(m.Chat, m.From), m.Command(), true
	case upd.CallbackQuery != nil && upd.CallbackQuery.Message != nil:
		cq := upd.CallbackQuery
		return model.RecipientID(cq.Message.Chat.ID), displayName(cq.Message.Chat, cq.From), cq.Data, true
	}
	return 0, "", "", false
}

func displayName(chat *tgbotapi.Chat, from *tgbotapi.User) string {
	if chat != nil && chat.Title != "" {
		return chat.Title
	}
	if from == nil {
		return ""
	}
	if from.UserName != "" {
		return "@" + from.UserName
	}
	return from.FirstName
}

// Reply sends an HTML message, optionally with the command keyboard.
func (b *Bot) Reply(ctx context.Context, chat model.RecipientID, text string, menu bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(int64(chat), text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if menu {
		msg.ReplyMarkup = menuKeyboard()
	}
	_, err := b.api.Send(msg)
	return err
}

func menuKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Subscribe", CmdSubscribe),
			tgbotapi.NewInlineKeyboardButtonData("🚫 Unsubscribe", CmdUnsubscribe),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔎 Check now", CmdCheck),
			tgbotapi.NewInlineKeyboardButtonData("📋 Status", CmdStatus),
		),
	)
}
