package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/letterflow/letterflow/pkg/dedupe"
	"github.com/letterflow/letterflow/pkg/eventbus"
	"github.com/letterflow/letterflow/pkg/events"
	"github.com/letterflow/letterflow/pkg/models"
	"github.com/letterflow/letterflow/pkg/persistence"
)

// dedupeTTL bounds how long an event id blocks re-firing the same workflow.
// Upstream redelivery happens within seconds; a day is comfortably past it.
const dedupeTTL = 24 * time.Hour

// TriggerMatcher turns platform events into workflow runs. For each event it
// finds every active workflow of the publication whose trigger kind and
// target match, and creates at most one run per event and workflow.
type TriggerMatcher struct {
	persistence persistence.Persistence
	dedupe      dedupe.Store
	bus         eventbus.EventPublisher
	logger      *slog.Logger
	now         func() time.Time
}

// NewTriggerMatcher creates a trigger matcher. bus may be nil when run
// lifecycle events are not wanted (tests).
func NewTriggerMatcher(p persistence.Persistence, d dedupe.Store, bus eventbus.EventPublisher, logger *slog.Logger) *TriggerMatcher {
	return &TriggerMatcher{
		persistence: p,
		dedupe:      d,
		bus:         bus,
		logger:      logger.With("module", "trigger_matcher"),
		now:         time.Now,
	}
}

// Match processes one platform event and returns the runs it started.
func (tm *TriggerMatcher) Match(ctx context.Context, event events.PlatformEvent) ([]*models.WorkflowRun, error) {
	if err := event.Validate(); err != nil {
		return nil, fmt.Errorf("invalid platform event: %w", err)
	}

	kind, _ := event.TriggerKind()

	workflows, err := tm.persistence.WorkflowRepository().ActiveByTrigger(ctx, event.PublicationID, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to load active workflows: %w", err)
	}

	tm.logger.DebugContext(ctx, "Matching platform event",
		"event_id", event.ID,
		"event_type", event.Type,
		"publication_id", event.PublicationID,
		"candidates", len(workflows))

	var runs []*models.WorkflowRun

	for _, wf := range workflows {
		if !wf.MatchesEvent(kind, event.SubjectID) {
			continue
		}

		run, err := tm.startRun(ctx, wf, event.ID, event.SubscriberID, eventContext(event))
		if err != nil {
			return runs, err
		}

		if run != nil {
			runs = append(runs, run)
		}
	}

	tm.logger.InfoContext(ctx, "Completed trigger matching",
		"event_id", event.ID,
		"event_type", event.Type,
		"runs_started", len(runs))

	return runs, nil
}

// FireCustomDate starts the single run of a due CUSTOM_DATE workflow. The
// caller has already marked the workflow fired; the dedupe guard still keys
// on the fire so concurrent sweeps cannot double-start.
func (tm *TriggerMatcher) FireCustomDate(ctx context.Context, wf *models.Workflow) (*models.WorkflowRun, error) {
	eventID := "custom-date:" + wf.ID

	return tm.startRun(ctx, wf, eventID, "", map[string]any{
		"trigger": string(models.TriggerCustomDate),
	})
}

func (tm *TriggerMatcher) startRun(ctx context.Context, wf *models.Workflow, eventID, subscriberID string, runContext map[string]any) (*models.WorkflowRun, error) {
	if wf.Definition == nil || wf.Definition.TriggerNode() == nil {
		tm.logger.WarnContext(ctx, "Active workflow has no executable definition",
			"workflow_id", wf.ID)

		return nil, nil
	}

	claimed, err := tm.dedupe.Claim(ctx, eventID+":"+wf.ID, dedupeTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to check run idempotency: %w", err)
	}

	if !claimed {
		// Duplicate delivery of the same event. Suppressed, never surfaced.
		tm.logger.InfoContext(ctx, "Suppressed duplicate trigger match",
			"event_id", eventID,
			"workflow_id", wf.ID,
			"subscriber_id", subscriberID)

		return nil, nil
	}

	runID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate run ID: %w", err)
	}

	now := tm.now().UTC()

	run := &models.WorkflowRun{
		ID:            runID.String(),
		WorkflowID:    wf.ID,
		PublicationID: wf.PublicationID,
		SubscriberID:  subscriberID,
		CurrentNodeID: wf.Definition.TriggerNode().ID,
		Status:        models.RunStatusRunning,
		Context:       runContext,
		Definition:    wf.Definition,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := tm.persistence.RunRepository().Create(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to create workflow run: %w", err)
	}

	tm.logger.InfoContext(ctx, "Started workflow run",
		"run_id", run.ID,
		"workflow_id", wf.ID,
		"subscriber_id", subscriberID)

	tm.publishStarted(ctx, run)

	return run, nil
}

func (tm *TriggerMatcher) publishStarted(ctx context.Context, run *models.WorkflowRun) {
	if tm.bus == nil {
		return
	}

	event := events.RunStarted{
		BaseEvent: events.BaseEvent{
			ID:        uuid.New().String(),
			Type:      events.RunStartedEvent,
			Timestamp: tm.now().UTC(),
		},
		RunID:        run.ID,
		WorkflowID:   run.WorkflowID,
		SubscriberID: run.SubscriberID,
	}

	if err := tm.bus.Publish(ctx, events.RunTopic, run.ID, event); err != nil {
		tm.logger.ErrorContext(ctx, "Failed to publish run started event",
			"run_id", run.ID, "error", err)
	}
}

// eventContext captures the event payload as the run's execution context.
func eventContext(event events.PlatformEvent) map[string]any {
	context := make(map[string]any, len(event.Payload)+4)

	for key, value := range event.Payload {
		context[key] = value
	}

	context["event_id"] = event.ID
	context["event_type"] = string(event.Type)
	context["subscriber_id"] = event.SubscriberID

	if event.SubjectID != "" {
		context["subject_id"] = event.SubjectID
	}

	return context
}
