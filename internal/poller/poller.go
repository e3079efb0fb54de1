package poller

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/amishk599/jobalert/internal/digest"
	"github.com/amishk599/jobalert/internal/discovery"
	"github.com/amishk599/jobalert/internal/model"
	"github.com/amishk599/jobalert/internal/notifier"
)

// Discoverer runs the search matrix. *discovery.Aggregator implements it.
type Discoverer interface {
	Run(ctx context.Context, plan discovery.Plan) (discovery.Result, error)
}

// CyclePoller owns the full cycle pipeline:
// discover → format → resolve recipients → dispatch.
type CyclePoller struct {
	discoverer Discoverer
	plan       discovery.Plan
	formatter  *digest.Formatter
	registry   model.Registry
	dispatcher *notifier.Dispatcher
	logger     *slog.Logger
	now        func() time.Time
}

// NewCyclePoller creates a poller wired with all its dependencies.
func NewCyclePoller(
	discoverer Discoverer,
	plan discovery.Plan,
	formatter *digest.Formatter,
	registry model.Registry,
	dispatcher *notifier.Dispatcher,
	logger *slog.Logger,
) *CyclePoller {
	return &CyclePoller{
		discoverer: discoverer,
		plan:       plan,
		formatter:  formatter,
		registry:   registry,
		dispatcher: dispatcher,
		logger:     logger,
		now:        time.Now,
	}
}

// Discovery is the undelivered outcome of a cycle.
type Discovery struct {
	Result discovery.Result
	Digest model.Digest
}

// Discover runs the search matrix and renders the digest without sending it.
// Fetch and extraction failures never fail it; an error means ctx ended first.
func (p *CyclePoller) Discover(ctx context.Context) (Discovery, error) {
	res, err := p.discoverer.Run(ctx, p.plan)
	if err != nil {
		return Discovery{Result: res}, fmt.Errorf("discovery interrupted: %w", err)
	}
	return Discovery{
		Result: res,
		Digest: p.formatter.Format(res.Postings(), p.now()),
	}, nil
}

// Poll runs one full cycle for trigger and reports what happened.
//
// Scheduled cycles go to every active recipient, including the empty notice.
// Manual cycles with a requester go to the requester only, and manual cycles
// never send the empty notice since the caller already gives feedback.
func (p *CyclePoller) Poll(ctx context.Context, trigger model.Trigger) (model.CycleReport, error) {
	report := model.CycleReport{
		ID:        uuid.NewString(),
		Trigger:   trigger,
		StartedAt: p.now(),
	}
	logger := p.logger.With("cycle_id", report.ID, "trigger", trigger.Kind.String())
	logger.Info("cycle started")

	d, err := p.Discover(ctx)
	p.fillDiscovery(&report, d.Result)
	if err != nil {
		report.Duration = time.Since(report.StartedAt)
		logger.Warn("cycle aborted", "error", err, "queries", report.Queries)
		return report, err
	}

	if d.Digest.Empty() && trigger.Kind == model.TriggerManual {
		report.Suppressed = true
	} else {
		recipients := p.recipients(ctx, trigger, logger)
		res := p.dispatcher.Dispatch(ctx, d.Digest, recipients)
		report.Delivered = res.Delivered.Cardinality()
		report.Failed = len(res.Failed)
	}

	report.Duration = time.Since(report.StartedAt)
	logger.Info("cycle finished",
		"queries", report.Queries,
		"fetch_errors", report.FetchErrors,
		"candidates", report.Candidates,
		"postings", report.Postings,
		"delivered", report.Delivered,
		"failed", report.Failed,
		"suppressed", report.Suppressed,
		"duration", report.Duration.Round(time.Millisecond).String(),
	)
	return report, nil
}

func (p *CyclePoller) fillDiscovery(report *model.CycleReport, res discovery.Result) {
	report.Queries = res.Stats.Queries
	report.FetchErrors = res.Stats.FetchErrors
	report.Candidates = res.Stats.Candidates
	report.Postings = len(res.Postings())
}

// recipients resolves who receives this cycle's digest. A registry failure is
// logged; whatever snapshot the registry returned alongside it is still used.
func (p *CyclePoller) recipients(ctx context.Context, trigger model.Trigger, logger *slog.Logger) []model.RecipientID {
	if trigger.Kind == model.TriggerManual && trigger.Requester != 0 {
		return []model.RecipientID{trigger.Requester}
	}
	ids, err := p.registry.ActiveRecipients(ctx)
	if err != nil {
		logger.Error("reading subscriber registry", "error", err, "fallback_recipients", len(ids))
	}
	return ids
}
