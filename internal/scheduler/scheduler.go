package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/amishk599/jobalert/internal/model"
)

// ErrBusy is returned by RunCycleNow when the run-lock could not be taken
// before the caller's context ended.
var ErrBusy = errors.New("a cycle is already running")

// Runner executes one discovery cycle. *poller.CyclePoller implements it.
type Runner interface {
	Poll(ctx context.Context, trigger model.Trigger) (model.CycleReport, error)
}

// Scheduler drives cycles from a cron schedule and from manual requests.
// At most one cycle runs at a time. A scheduled trigger that fires while a
// cycle is running is dropped; manual triggers wait for the lock.
type Scheduler struct {
	runner     Runner
	schedule   string
	runOnStart bool
	loc        *time.Location
	logger     *slog.Logger

	lock    chan struct{} // run-lock, capacity 1
	dropped atomic.Int64
	last    atomic.Pointer[model.CycleReport]

	mu    sync.Mutex
	cron  *cron.Cron
	entry cron.EntryID
}

// New creates a scheduler. schedule is any expression accepted by
// cron.ParseStandard, including descriptors such as "@every 2h".
func New(runner Runner, schedule string, runOnStart bool, loc *time.Location, logger *slog.Logger) (*Scheduler, error) {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", schedule, err)
	}
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{
		runner:     runner,
		schedule:   schedule,
		runOnStart: runOnStart,
		loc:        loc,
		logger:     logger,
		lock:       make(chan struct{}, 1),
	}, nil
}

// RunCycleOnSchedule runs the schedule until ctx is cancelled. When
// runOnStart is set, one cycle starts immediately. It returns nil on
// cancellation once the in-flight scheduled cycle has finished.
func (s *Scheduler) RunCycleOnSchedule(ctx context.Context) error {
	c := cron.New(cron.WithLocation(s.loc))
	id, err := c.AddFunc(s.schedule, func() { s.Trigger(ctx) })
	if err != nil {
		return fmt.Errorf("schedule %q: %w", s.schedule, err)
	}

	s.mu.Lock()
	s.cron, s.entry = c, id
	s.mu.Unlock()

	s.logger.Info("starting scheduler",
		"schedule", s.schedule,
		"timezone", s.loc.String(),
		"run_on_start", s.runOnStart,
	)

	c.Start()

	var wg sync.WaitGroup
	if s.runOnStart {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Trigger(ctx)
		}()
	}

	<-ctx.Done()
	s.logger.Info("shutting down scheduler")

	stopped := c.Stop()
	<-stopped.Done()
	wg.Wait()

	s.mu.Lock()
	s.cron = nil
	s.mu.Unlock()
	return nil
}

// Trigger starts a scheduled cycle if none is running and reports whether it
// ran. A trigger that finds the lock held is dropped.
func (s *Scheduler) Trigger(ctx context.Context) bool {
	select {
	case s.lock <- struct{}{}:
	default:
		n := s.dropped.Add(1)
		s.logger.Warn("cycle still running, dropping scheduled trigger", "dropped_total", n)
		return false
	}
	defer func() { <-s.lock }()

	if ctx.Err() != nil {
		return false
	}
	s.run(ctx, model.Trigger{Kind: model.TriggerScheduled})
	return true
}

// RunCycleNow runs a manual cycle for requester (zero for none), waiting for
// any running cycle to finish first. If ctx ends before the lock is free it
// returns an error wrapping ErrBusy.
func (s *Scheduler) RunCycleNow(ctx context.Context, requester model.RecipientID) (model.CycleReport, error) {
	select {
	case s.lock <- struct{}{}:
	case <-ctx.Done():
		return model.CycleReport{}, fmt.Errorf("%w: %w", ErrBusy, ctx.Err())
	}
	defer func() { <-s.lock }()

	return s.run(ctx, model.Trigger{Kind: model.TriggerManual, Requester: requester})
}

// RunCycleWithin is RunCycleNow with a bound on how long it waits for the
// run-lock. It returns ErrBusy once wait elapses.
func (s *Scheduler) RunCycleWithin(ctx context.Context, requester model.RecipientID, wait time.Duration) (model.CycleReport, error) {
	lockCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	select {
	case s.lock <- struct{}{}:
	case <-lockCtx.Done():
		return model.CycleReport{}, fmt.Errorf("%w: waited %s", ErrBusy, wait)
	}
	defer func() { <-s.lock }()

	return s.run(ctx, model.Trigger{Kind: model.TriggerManual, Requester: requester})
}

// run executes one cycle. Callers hold the run-lock.
func (s *Scheduler) run(ctx context.Context, trigger model.Trigger) (model.CycleReport, error) {
	report, err := s.runner.Poll(ctx, trigger)
	if err != nil {
		s.logger.Error("cycle failed", "trigger", trigger.Kind.String(), "error", err)
	}
	s.last.Store(&report)
	return report, err
}

// Running reports whether a cycle currently holds the run-lock.
func (s *Scheduler) Running() bool {
	return len(s.lock) > 0
}

// Dropped returns how many scheduled triggers were dropped so far.
func (s *Scheduler) Dropped() int64 {
	return s.dropped.Load()
}

// LastReport returns the report of the most recent cycle, if any.
func (s *Scheduler) LastReport() (model.CycleReport, bool) {
	r := s.last.Load()
	if r == nil {
		return model.CycleReport{}, false
	}
	return *r, true
}

// NextRun returns when the next scheduled cycle fires. It is zero until
// RunCycleOnSchedule has started.
func (s *Scheduler) NextRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron == nil {
		return time.Time{}
	}
	return s.cron.Entry(s.entry).Next
}
