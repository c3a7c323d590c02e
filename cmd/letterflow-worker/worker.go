// Package main provides the Letterflow worker: it consumes platform events,
// matches them to workflow triggers and advances due runs.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/letterflow/letterflow/pkg/adapters"
	"github.com/letterflow/letterflow/pkg/dedupe"
	"github.com/letterflow/letterflow/pkg/eventbus"
	"github.com/letterflow/letterflow/pkg/events"
	"github.com/letterflow/letterflow/pkg/persistence"
	"github.com/letterflow/letterflow/pkg/workflow"
)

type WorkerConfig struct {
	ID           string
	Persistence  persistence.Persistence
	EventBus     eventbus.EventBus
	Dedupe       dedupe.Store
	Email        adapters.EmailSender
	Tags         adapters.TagStore
	Subscribers  adapters.SubscriberStore
	Templates    adapters.TemplateStore
	PollInterval time.Duration
	Logger       *slog.Logger
}

type Worker struct {
	id        string
	logger    *slog.Logger
	eventBus  eventbus.EventBus
	matcher   *workflow.TriggerMatcher
	scheduler *workflow.Scheduler
}

func NewWorker(config WorkerConfig) *Worker {
	logger := config.Logger.With("module", "letterflow-worker")

	engine := workflow.NewEngine(workflow.EngineOptions{
		Persistence: config.Persistence,
		Email:       config.Email,
		Tags:        config.Tags,
		Subscribers: config.Subscribers,
		Templates:   config.Templates,
		Bus:         config.EventBus,
		Logger:      config.Logger,
	})

	matcher := workflow.NewTriggerMatcher(config.Persistence, config.Dedupe, config.EventBus, config.Logger)

	scheduler := workflow.NewScheduler(workflow.SchedulerOptions{
		Persistence:  config.Persistence,
		Engine:       engine,
		Matcher:      matcher,
		OwnerID:      config.ID,
		PollInterval: config.PollInterval,
		Logger:       config.Logger,
	})

	return &Worker{
		id:        config.ID,
		logger:    logger,
		eventBus:  config.EventBus,
		matcher:   matcher,
		scheduler: scheduler,
	}
}

// Start subscribes to platform events and runs the scheduler until the
// process receives SIGINT or SIGTERM.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.InfoContext(ctx, "Starting worker", "worker_id", w.id)

	for _, eventType := range events.PlatformEventTypes {
		w.eventBus.Handle(eventType, w.handlePlatformEvent)
	}

	if err := w.eventBus.Subscribe(ctx, events.PlatformTopic); err != nil {
		w.logger.ErrorContext(ctx, "Failed to subscribe to platform events", "error", err)

		return err
	}

	w.scheduler.Start(ctx)

	w.logger.InfoContext(ctx, "Worker started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	w.logger.InfoContext(ctx, "Shutting down worker...")

	w.scheduler.Stop(ctx)

	return nil
}

func (w *Worker) handlePlatformEvent(ctx context.Context, event any) error {
	platformEvent, ok := event.(*events.PlatformEvent)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event type for platform event")

		return nil
	}

	logger := w.logger.With(
		"event_id", platformEvent.ID,
		"event_type", platformEvent.Type,
		"publication_id", platformEvent.PublicationID,
	)

	runs, err := w.matcher.Match(ctx, *platformEvent)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to match platform event", "error", err)

		return err
	}

	if len(runs) > 0 {
		logger.InfoContext(ctx, "Started workflow runs", "count", len(runs))
	}

	return nil
}
