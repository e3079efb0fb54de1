package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/amishk599/jobalert/internal/model"
)

// Commands understood by the bot. Inline keyboard buttons carry the same
// names as callback data.
const (
	CmdStart       = "start"
	CmdSubscribe   = "subscribe"
	CmdUnsubscribe = "unsubscribe"
	CmdCheck       = "check"
	CmdStatus      = "status"
	CmdHelp        = "help"
)

const (
	msgWelcome = "👋 <b>Welcome to jobalert!</b>\n\n" +
		"I search LinkedIn for fresh openings that match the configured profile and send you a digest.\n" +
		"Tap a button below or send /help."
	msgSubscribed     = "✅ Subscribed. You will receive the next digest."
	msgAlreadySub     = "ℹ️ You are already subscribed."
	msgUnsubscribed   = "👋 Unsubscribed. Send /subscribe to come back."
	msgNotSubscribed  = "ℹ️ You are not subscribed."
	msgSearching      = "🔎 Searching for new jobs…"
	msgNothingNew     = "😴 Nothing new right now. I will keep looking."
	msgCheckPending   = "⏳ A check for you is already in progress."
	msgCheckFailed    = "⚠️ The check could not finish. Please try again later."
	msgTryAgain       = "⚠️ Something went wrong. Please try again."
	msgUnknownCommand = "🤔 Unknown command. Send /help for the list."
	msgHelp           = "<b>Commands</b>\n" +
		"/subscribe: receive scheduled digests\n" +
		"/unsubscribe: stop receiving digests\n" +
		"/check: search right now and send the results to you\n" +
		"/status: your subscription and the last run\n" +
		"/help: this message"
)

// Replier sends a command response. menu attaches the inline keyboard.
type Replier interface {
	Reply(ctx context.Context, chat model.RecipientID, text string, menu bool) error
}

// Checker runs manual cycles and reports on the schedule.
// *scheduler.Scheduler implements it.
type Checker interface {
	RunCycleNow(ctx context.Context, requester model.RecipientID) (model.CycleReport, error)
	LastReport() (model.CycleReport, bool)
	NextRun() time.Time
}

// Handler implements the command surface on top of the subscriber store
// and the scheduler. It is safe for concurrent use.
type Handler struct {
	store   model.SubscriberStore
	checker Checker
	replier Replier
	loc     *time.Location
	logger  *slog.Logger
	pending mapset.Set[model.RecipientID] // chats with a /check in flight
}

// NewHandler creates a command handler.
func NewHandler(store model.SubscriberStore, checker Checker, replier Replier, loc *time.Location, logger *slog.Logger) *Handler {
	if loc == nil {
		loc = time.Local
	}
	return &Handler{
		store:   store,
		checker: checker,
		replier: replier,
		loc:     loc,
		logger:  logger,
		pending: mapset.NewSet[model.RecipientID](),
	}
}

// Handle executes command for chat. name is a display name stored with new
// subscriptions. Errors are logged and answered with a generic message; only
// a failure to reply is returned.
func (h *Handler) Handle(ctx context.Context, chat model.RecipientID, name, command string) error {
	command = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(command)), "/")
	logger := h.logger.With("chat", int64(chat), "command", command)
	logger.Debug("command received")

	switch command {
	case CmdStart:
		return h.replier.Reply(ctx, chat, msgWelcome, true)
	case CmdHelp:
		return h.replier.Reply(ctx, chat, msgHelp, true)
	case CmdSubscribe:
		text, err := h.subscribe(ctx, chat, name)
		return h.reply(ctx, chat, logger, text, err)
	case CmdUnsubscribe:
		text, err := h.unsubscribe(ctx, chat)
		return h.reply(ctx, chat, logger, text, err)
	case CmdStatus:
		text, err := h.status(ctx, chat)
		return h.reply(ctx, chat, logger, text, err)
	case CmdCheck:
		return h.check(ctx, chat, logger)
	default:
		return h.replier.Reply(ctx, chat, msgUnknownCommand, false)
	}
}

func (h *Handler) reply(ctx context.Context, chat model.RecipientID, logger *slog.Logger, text string, err error) error {
	if err != nil {
		logger.Error("command failed", "error", err)
		text = msgTryAgain
	}
	return h.replier.Reply(ctx, chat, text, false)
}

func (h *Handler) subscribe(ctx context.Context, chat model.RecipientID, name string) (string, error) {
	sub, ok, err := h.store.Get(ctx, chat)
	if err != nil {
		return "", err
	}
	if ok && sub.Active {
		return msgAlreadySub, nil
	}
	if err := h.store.Subscribe(ctx, chat, name); err != nil {
		return "", err
	}
	h.logger.Info("subscriber added", "chat", int64(chat), "name", name)
	return msgSubscribed, nil
}

func (h *Handler) unsubscribe(ctx context.Context, chat model.RecipientID) (string, error) {
	sub, ok, err := h.store.Get(ctx, chat)
	if err != nil {
		return "", err
	}
	if !ok || !sub.Active {
		return msgNotSubscribed, nil
	}
	if err := h.store.Unsubscribe(ctx, chat); err != nil {
		return "", err
	}
	h.logger.Info("subscriber removed", "chat", int64(chat))
	return msgUnsubscribed, nil
}

func (h *Handler) status(ctx context.Context, chat model.RecipientID) (string, error) {
	sub, ok, err := h.store.Get(ctx, chat)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("📋 <b>Status</b>\n")
	switch {
	case !ok:
		b.WriteString("Subscription: not subscribed\n")
	case sub.Active:
		fmt.Fprintf(&b, "Subscription: active since %s\n", h.format(sub.SubscribedAt))
	default:
		b.WriteString("Subscription: paused\n")
	}

	if last, ok := h.checker.LastReport(); ok {
		fmt.Fprintf(&b, "Last run: %s (%s, %d jobs)\n", h.format(last.StartedAt), last.Trigger.Kind, last.Postings)
	} else {
		b.WriteString("Last run: none yet\n")
	}
	if next := h.checker.NextRun(); !next.IsZero() {
		fmt.Fprintf(&b, "Next run: %s", h.format(next))
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// check runs a manual cycle delivering only to chat. It blocks until the
// cycle finishes; callers run it off the update loop.
func (h *Handler) check(ctx context.Context, chat model.RecipientID, logger *slog.Logger) error {
	if !h.pending.Add(chat) {
		return h.replier.Reply(ctx, chat, msgCheckPending, false)
	}
	defer h.pending.Remove(chat)

	if err := h.replier.Reply(ctx, chat, msgSearching, false); err != nil {
		return err
	}

	report, err := h.checker.RunCycleNow(ctx, chat)
	switch {
	case err != nil:
		logger.Warn("manual check failed", "error", err)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return h.replier.Reply(ctx, chat, msgCheckFailed, false)
	case report.Postings == 0:
		return h.replier.Reply(ctx, chat, msgNothingNew, false)
	}
	return nil
}

func (h *Handler) format(t time.Time) string {
	return t.In(h.loc).Format("2006-01-02 15:04")
}
