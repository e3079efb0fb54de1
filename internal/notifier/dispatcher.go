package notifier

import (
	"context"
	"log/slog"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/amishk599/jobalert/internal/model"
	"github.com/amishk599/jobalert/internal/ratelimit"
)

// sendKey is the pacer key shared by all outbound messages.
const sendKey = "send"

// TestMessage is delivered by SendTest.
const TestMessage = "✅ <b>jobalert</b> test message. Delivery is working."

// Result is the outcome of delivering one digest.
type Result struct {
	Delivered mapset.Set[model.RecipientID]
	Failed    map[model.RecipientID]error
}

// Dispatcher fans a digest out to recipients. A failure for one recipient
// never stops delivery to the others, and nothing is retried.
type Dispatcher struct {
	sender model.Sender
	pacer  *ratelimit.Pacer
	logger *slog.Logger
}

// NewDispatcher creates a dispatcher. pacer may be nil to send without delay.
func NewDispatcher(sender model.Sender, pacer *ratelimit.Pacer, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		sender: sender,
		pacer:  pacer,
		logger: logger,
	}
}

// Dispatch sends every chunk of digest, in order, to each recipient.
// Recipients are deduplicated. A recipient whose chunk fails gets no further
// chunks and is recorded in Failed with a *model.DispatchError.
func (d *Dispatcher) Dispatch(ctx context.Context, digest model.Digest, recipients []model.RecipientID) Result {
	res := Result{
		Delivered: mapset.NewThreadUnsafeSet[model.RecipientID](),
		Failed:    make(map[model.RecipientID]error),
	}

	seen := mapset.NewThreadUnsafeSet[model.RecipientID]()
	for _, r := range recipients {
		if !seen.Add(r) {
			continue
		}
		if err := d.sendAll(ctx, r, digest.Chunks); err != nil {
			res.Failed[r] = &model.DispatchError{Recipient: r, Err: err}
			d.logger.Warn("delivery failed", "recipient", int64(r), "error", err)
			continue
		}
		res.Delivered.Add(r)
	}

	d.logger.Info("digest dispatched",
		"postings", digest.Count,
		"chunks", len(digest.Chunks),
		"delivered", res.Delivered.Cardinality(),
		"failed", len(res.Failed),
	)
	return res
}

func (d *Dispatcher) sendAll(ctx context.Context, to model.RecipientID, chunks []string) error {
	for _, chunk := range chunks {
		if err := d.pacer.Wait(ctx, sendKey); err != nil {
			return err
		}
		if err := d.sender.Send(ctx, to, chunk); err != nil {
			return err
		}
	}
	return nil
}

// SendTest delivers TestMessage to each recipient.
func (d *Dispatcher) SendTest(ctx context.Context, recipients []model.RecipientID) Result {
	return d.Dispatch(ctx, model.Digest{Chunks: []string{TestMessage}}, recipients)
}
