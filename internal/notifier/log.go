package notifier

import (
	"context"
	"log/slog"

	"github.com/amishk599/jobalert/internal/model"
)

// Ensure LogSender implements model.Sender.
var _ model.Sender = (*LogSender)(nil)

// LogSender writes messages to the logger instead of delivering them.
// Used for dry runs.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender returns a sender that logs each message via slog.
func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

// Send logs the message. It never fails.
func (s *LogSender) Send(_ context.Context, to model.RecipientID, text string) error {
	s.logger.Info("message", "recipient", int64(to), "chars", len([]rune(text)), "text", text)
	return nil
}
