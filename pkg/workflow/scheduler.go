package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/letterflow/letterflow/pkg/models"
	"github.com/letterflow/letterflow/pkg/persistence"
)

const (
	defaultPollInterval  = 5 * time.Second
	defaultLeaseDuration = 2 * time.Minute
	defaultClaimBatch    = 50
)

// Scheduler polls for due runs on a fixed interval, claims them under a
// lease and hands them to the engine. It also sweeps CUSTOM_DATE workflows
// whose scheduled time has passed. Multiple scheduler instances can share
// one database; the claim lease keeps each run on a single owner.
type Scheduler struct {
	persistence  persistence.Persistence
	engine       *Engine
	matcher      *TriggerMatcher
	ownerID      string
	pollInterval time.Duration
	lease        time.Duration
	claimBatch   int
	logger       *slog.Logger
	now          func() time.Time

	mu      sync.Mutex
	done    chan struct{}
	started bool
}

type SchedulerOptions struct {
	Persistence persistence.Persistence
	Engine      *Engine
	Matcher     *TriggerMatcher
	OwnerID     string
	Logger      *slog.Logger

	// Zero values fall back to the defaults.
	PollInterval  time.Duration
	LeaseDuration time.Duration
	ClaimBatch    int
}

func NewScheduler(opts SchedulerOptions) *Scheduler {
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}

	if opts.LeaseDuration <= 0 {
		opts.LeaseDuration = defaultLeaseDuration
	}

	if opts.ClaimBatch <= 0 {
		opts.ClaimBatch = defaultClaimBatch
	}

	return &Scheduler{
		persistence:  opts.Persistence,
		engine:       opts.Engine,
		matcher:      opts.Matcher,
		ownerID:      opts.OwnerID,
		pollInterval: opts.PollInterval,
		lease:        opts.LeaseDuration,
		claimBatch:   opts.ClaimBatch,
		logger:       opts.Logger.With("module", "scheduler", "owner_id", opts.OwnerID),
		now:          time.Now,
	}
}

// Start launches the polling loop. It returns immediately; Stop shuts the
// loop down.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return
	}

	s.started = true
	s.done = make(chan struct{})

	go s.loop(ctx, s.done)

	s.logger.InfoContext(ctx, "Scheduler started", "poll_interval", s.pollInterval)
}

func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	close(s.done)
	s.started = false

	s.logger.InfoContext(ctx, "Scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one scheduling pass: fire due CUSTOM_DATE workflows, then claim
// and advance due runs. Exported so the worker can force a pass in tests.
func (s *Scheduler) Tick(ctx context.Context) {
	s.fireDueCustomDates(ctx)
	s.advanceDueRuns(ctx)
}

func (s *Scheduler) fireDueCustomDates(ctx context.Context) {
	now := s.now().UTC()

	due, err := s.persistence.WorkflowRepository().DueCustomDate(ctx, now)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to list due scheduled workflows", "error", err)

		return
	}

	for _, wf := range due {
		// MarkFired is the at-most-once gate: only the instance that flips
		// fired_at starts the run.
		fired, err := s.persistence.WorkflowRepository().MarkFired(ctx, wf.ID, now)
		if err != nil {
			s.logger.ErrorContext(ctx, "Failed to mark scheduled workflow as fired",
				"workflow_id", wf.ID, "error", err)

			continue
		}

		if !fired {
			continue
		}

		if _, err := s.matcher.FireCustomDate(ctx, wf); err != nil {
			s.logger.ErrorContext(ctx, "Failed to start scheduled run",
				"workflow_id", wf.ID, "error", err)
		}
	}
}

func (s *Scheduler) advanceDueRuns(ctx context.Context) {
	for {
		runs, err := s.claimDue(ctx)
		if err != nil {
			s.logger.ErrorContext(ctx, "Failed to claim due runs", "error", err)

			return
		}

		if len(runs) == 0 {
			return
		}

		for _, run := range runs {
			s.advanceRun(ctx, run)
		}

		if len(runs) < s.claimBatch {
			return
		}
	}
}

func (s *Scheduler) claimDue(ctx context.Context) ([]*models.WorkflowRun, error) {
	return s.persistence.RunRepository().ClaimDue(ctx, s.ownerID, s.now().UTC(), s.lease, s.claimBatch)
}

func (s *Scheduler) advanceRun(ctx context.Context, run *models.WorkflowRun) {
	if err := s.engine.Advance(ctx, run); err != nil {
		s.logger.ErrorContext(ctx, "Failed to advance run",
			"run_id", run.ID, "workflow_id", run.WorkflowID, "error", err)

		// The claim expires on its own; the next pass retries the run.
		return
	}

	if !run.Status.IsTerminal() && run.Status != models.RunStatusWaiting {
		if err := s.persistence.RunRepository().Release(ctx, run.ID, s.ownerID); err != nil {
			s.logger.DebugContext(ctx, "Failed to release run claim",
				"run_id", run.ID, "error", err)
		}
	}
}
