package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/letterflow/letterflow/pkg/adapters"
	"github.com/letterflow/letterflow/pkg/eventbus"
	"github.com/letterflow/letterflow/pkg/events"
	"github.com/letterflow/letterflow/pkg/models"
	"github.com/letterflow/letterflow/pkg/persistence"
	"github.com/letterflow/letterflow/pkg/personalization"
)

// Engine advances workflow runs through their graph snapshots. One run is
// only ever advanced by the worker holding its claim; the engine commits
// every position change before the node's side effect becomes visible, so a
// crash-recovered run resumes without executing a node twice.
type Engine struct {
	persistence persistence.Persistence
	email       adapters.EmailSender
	tags        adapters.TagStore
	subscribers adapters.SubscriberStore
	templates   adapters.TemplateStore
	bus         eventbus.EventPublisher
	logger      *slog.Logger
	now         func() time.Time
}

// EngineOptions collects the engine's collaborators. Templates and Bus are
// optional.
type EngineOptions struct {
	Persistence persistence.Persistence
	Email       adapters.EmailSender
	Tags        adapters.TagStore
	Subscribers adapters.SubscriberStore
	Templates   adapters.TemplateStore
	Bus         eventbus.EventPublisher
	Logger      *slog.Logger
}

func NewEngine(opts EngineOptions) *Engine {
	return &Engine{
		persistence: opts.Persistence,
		email:       opts.Email,
		tags:        opts.Tags,
		subscribers: opts.Subscribers,
		templates:   opts.Templates,
		bus:         opts.Bus,
		logger:      opts.Logger.With("module", "engine"),
		now:         time.Now,
	}
}

// Advance steps a claimed run until it suspends, parks or terminates.
func (e *Engine) Advance(ctx context.Context, run *models.WorkflowRun) error {
	logger := e.logger.With("run_id", run.ID, "workflow_id", run.WorkflowID)

	graph, err := Compile(run.Definition)
	if err != nil {
		// Validation ran at activation; reaching this is an invariant
		// violation, so the run aborts rather than guesses.
		compileErr := &CompilerError{Message: err.Error()}

		return e.failRun(ctx, run, compileErr.Error())
	}

	for {
		proceed, err := e.checkWorkflowStatus(ctx, run, logger)
		if err != nil || !proceed {
			return err
		}

		if run.Status == models.RunStatusWaiting {
			if run.ResumeAt != nil && run.ResumeAt.After(e.now()) {
				// Picked up before the resume time; stays waiting.
				return e.release(ctx, run)
			}

			run.Status = models.RunStatusRunning
			run.ResumeAt = nil
		}

		node := graph.Node(run.CurrentNodeID)
		if node == nil {
			compileErr := &CompilerError{
				NodeID:  run.CurrentNodeID,
				Message: "current node missing from graph snapshot",
			}

			return e.failRun(ctx, run, compileErr.Error())
		}

		suspended, err := e.step(ctx, run, graph, node, logger)
		if err != nil {
			if persistence.IsStaleRun(err) || persistence.IsClaimLost(err) {
				// Another advancement already committed this step.
				logger.WarnContext(ctx, "Skipping replayed advancement", "node_id", node.ID)

				return nil
			}

			return err
		}

		if suspended || run.Status.IsTerminal() {
			return nil
		}
	}
}

// checkWorkflowStatus enforces lifecycle semantics before every hop: paused
// workflows park their runs, archived ones cancel them.
func (e *Engine) checkWorkflowStatus(ctx context.Context, run *models.WorkflowRun, logger *slog.Logger) (bool, error) {
	wf, err := e.persistence.WorkflowRepository().GetByID(ctx, run.WorkflowID)
	if err != nil {
		if persistence.IsWorkflowNotFound(err) {
			return false, e.failRun(ctx, run, ReasonWorkflowDeleted)
		}

		return false, fmt.Errorf("failed to load workflow for run %s: %w", run.ID, err)
	}

	switch wf.Status {
	case models.WorkflowStatusActive:
		return true, nil
	case models.WorkflowStatusArchived:
		return false, e.failRun(ctx, run, ReasonWorkflowArchived)
	default:
		// Paused (or demoted to draft): park the run, resumable on
		// reactivation.
		logger.InfoContext(ctx, "Parking run of inactive workflow", "workflow_status", wf.Status)

		return false, e.release(ctx, run)
	}
}

// step executes one node and commits the resulting position. Returns true
// when the run suspended on a WAIT node.
func (e *Engine) step(ctx context.Context, run *models.WorkflowRun, graph *Graph, node *models.Node, logger *slog.Logger) (bool, error) {
	logger.DebugContext(ctx, "Executing node", "node_id", node.ID, "node_kind", node.Kind, "node_type", node.Type)

	switch node.Kind {
	case models.NodeKindTrigger:
		return false, e.advanceLinear(ctx, run, graph, node)

	case models.NodeKindCondition:
		return false, e.stepCondition(ctx, run, graph, node, logger)

	case models.NodeKindAction:
		return e.stepAction(ctx, run, graph, node, logger)

	default:
		compileErr := &CompilerError{NodeID: node.ID, Message: fmt.Sprintf("unknown node kind %q", node.Kind)}

		return false, e.failRun(ctx, run, compileErr.Error())
	}
}

func (e *Engine) stepCondition(ctx context.Context, run *models.WorkflowRun, graph *Graph, node *models.Node, logger *slog.Logger) error {
	sub, err := e.subscriberContext(ctx, run)
	if err != nil {
		// Missing subscriber state is not fatal; the condition counts as
		// false and the run continues.
		err = &ConditionEvaluationError{NodeID: node.ID, Cause: err}
	}

	outcome := false

	if err == nil {
		outcome, err = evaluateCondition(node, sub)
	}

	if err != nil {
		var evalErr *ConditionEvaluationError
		if !errors.As(err, &evalErr) {
			return e.failRun(ctx, run, err.Error())
		}

		logger.WarnContext(ctx, "Condition evaluation fell back to false",
			"node_id", node.ID, "error", err)

		outcome = false
	}

	next, ok := graph.NextBranch(node.ID, outcome)
	if !ok {
		// Branch not wired up, e.g. no false edge. The run completes.
		return e.completeRun(ctx, run)
	}

	return e.commitPosition(ctx, run, next)
}

func (e *Engine) stepAction(ctx context.Context, run *models.WorkflowRun, graph *Graph, node *models.Node, logger *slog.Logger) (bool, error) {
	switch config := node.Config.(type) {
	case *models.WaitConfig:
		return e.stepWait(ctx, run, graph, node, config)

	case *models.SendEmailConfig:
		return false, e.stepSendEmail(ctx, run, graph, node, config, logger)

	case *models.AddTagConfig:
		return false, e.stepTags(ctx, run, graph, node, config.TagIDs, e.tags.AddTag)

	case *models.RemoveTagConfig:
		return false, e.stepTags(ctx, run, graph, node, config.TagIDs, e.tags.RemoveTag)

	default:
		compileErr := &CompilerError{NodeID: node.ID, Message: fmt.Sprintf("action node carries %T config", node.Config)}

		return false, e.failRun(ctx, run, compileErr.Error())
	}
}

// stepWait suspends the run until the configured delay elapses. Resumption
// works purely from the persisted resume time, with no dependency on process
// uptime.
func (e *Engine) stepWait(ctx context.Context, run *models.WorkflowRun, graph *Graph, node *models.Node, config *models.WaitConfig) (bool, error) {
	next, ok := graph.Next(node.ID)
	if !ok {
		// Trailing WAIT with nothing after it: nothing left to delay.
		return false, e.completeRun(ctx, run)
	}

	resumeAt := e.now().UTC().Add(config.Duration())

	run.Status = models.RunStatusWaiting
	run.ResumeAt = &resumeAt
	run.CurrentNodeID = next

	if err := e.commit(ctx, run); err != nil {
		return false, err
	}

	return true, e.release(ctx, run)
}

func (e *Engine) stepSendEmail(ctx context.Context, run *models.WorkflowRun, graph *Graph, node *models.Node, config *models.SendEmailConfig, logger *slog.Logger) error {
	sub, err := e.subscriberContext(ctx, run)
	if err != nil {
		return e.failRun(ctx, run, fmt.Sprintf("cannot resolve subscriber for email: %v", err))
	}

	subject, content, err := e.resolveEmailContent(ctx, config)
	if err != nil {
		return e.failRun(ctx, run, err.Error())
	}

	vars := e.buildVars(run, sub, config.Personalization)
	subject = personalization.Render(subject, vars)
	content = personalization.Render(content, vars)

	// Position is committed before the delivery becomes visible.
	if err := e.advanceLinear(ctx, run, graph, node); err != nil {
		return err
	}

	deliveryID, err := e.email.Send(ctx, sub.Email, subject, content)
	if err != nil {
		// The sending adapter already retried transient failures; whatever
		// reaches here is final for this run.
		logger.ErrorContext(ctx, "Email delivery failed",
			"node_id", node.ID, "to", sub.Email, "error", err)

		return e.failRun(ctx, run, fmt.Sprintf("email delivery failed: %v", err))
	}

	logger.InfoContext(ctx, "Email delivered",
		"node_id", node.ID, "delivery_id", deliveryID)

	return nil
}

func (e *Engine) resolveEmailContent(ctx context.Context, config *models.SendEmailConfig) (string, string, error) {
	if config.Subject != "" || config.Content != "" {
		return config.Subject, config.Content, nil
	}

	if e.templates == nil {
		return "", "", fmt.Errorf("email node references template %s but no template store is configured", config.TemplateID)
	}

	subject, content, err := e.templates.Template(ctx, config.TemplateID)
	if err != nil {
		return "", "", fmt.Errorf("failed to resolve email template %s: %w", config.TemplateID, err)
	}

	return subject, content, nil
}

func (e *Engine) stepTags(ctx context.Context, run *models.WorkflowRun, graph *Graph, node *models.Node, tagIDs []string, apply func(context.Context, string, string) error) error {
	// Position first, then the tag mutations; the tag store is idempotent.
	if err := e.advanceLinear(ctx, run, graph, node); err != nil {
		return err
	}

	for _, tagID := range tagIDs {
		if err := apply(ctx, run.SubscriberID, tagID); err != nil {
			return e.failRun(ctx, run, fmt.Sprintf("tag operation failed for %s: %v", tagID, err))
		}
	}

	return nil
}

// advanceLinear moves past a node with at most one outgoing edge, completing
// the run when there is none.
func (e *Engine) advanceLinear(ctx context.Context, run *models.WorkflowRun, graph *Graph, node *models.Node) error {
	next, ok := graph.Next(node.ID)
	if !ok {
		return e.completeRun(ctx, run)
	}

	return e.commitPosition(ctx, run, next)
}

func (e *Engine) commitPosition(ctx context.Context, run *models.WorkflowRun, nextNodeID string) error {
	run.CurrentNodeID = nextNodeID
	run.Status = models.RunStatusRunning

	return e.commit(ctx, run)
}

func (e *Engine) completeRun(ctx context.Context, run *models.WorkflowRun) error {
	now := e.now().UTC()
	run.Status = models.RunStatusCompleted
	run.FinishedAt = &now

	if err := e.commit(ctx, run); err != nil {
		return err
	}

	e.publishTerminal(ctx, run, "")

	return nil
}

func (e *Engine) failRun(ctx context.Context, run *models.WorkflowRun, reason string) error {
	now := e.now().UTC()
	run.Status = models.RunStatusFailed
	run.LastError = reason
	run.FinishedAt = &now

	if err := e.commit(ctx, run); err != nil {
		return err
	}

	e.logger.WarnContext(ctx, "Run failed",
		"run_id", run.ID, "workflow_id", run.WorkflowID, "reason", reason)

	e.publishTerminal(ctx, run, reason)

	return nil
}

func (e *Engine) commit(ctx context.Context, run *models.WorkflowRun) error {
	expected := run.StepCount
	run.StepCount++
	run.UpdatedAt = e.now().UTC()

	err := e.persistence.RunRepository().CommitStep(ctx, run, expected)
	if err != nil {
		run.StepCount = expected
	}

	return err
}

func (e *Engine) release(ctx context.Context, run *models.WorkflowRun) error {
	if run.ClaimedBy == "" {
		return nil
	}

	return e.persistence.RunRepository().Release(ctx, run.ID, run.ClaimedBy)
}

func (e *Engine) subscriberContext(ctx context.Context, run *models.WorkflowRun) (adapters.SubscriberContext, error) {
	if run.SubscriberID == "" {
		return adapters.SubscriberContext{}, fmt.Errorf("run %s has no subscriber", run.ID)
	}

	return e.subscribers.Context(ctx, run.SubscriberID)
}

// buildVars assembles the personalization values for one render: live
// subscriber state, the event context captured at trigger time, then the
// node's own personalization map on top.
func (e *Engine) buildVars(run *models.WorkflowRun, sub adapters.SubscriberContext, overrides map[string]string) map[string]string {
	vars := map[string]string{
		"{{subscriber.name}}":  sub.Name,
		"{{subscriber.email}}": sub.Email,
		"{{subscriber.tier}}":  sub.TierID,
	}

	if first, _, found := strings.Cut(sub.Name, " "); found || first != "" {
		vars["{{subscriber.first_name}}"] = first
	}

	contextTokens := map[string]string{
		"publication_name": "{{publication.name}}",
		"publication_url":  "{{publication.url}}",
		"post_title":       "{{post.title}}",
		"post_url":         "{{post.url}}",
		"unsubscribe_url":  "{{unsubscribe.url}}",
	}

	for contextKey, token := range contextTokens {
		if value, ok := run.Context[contextKey].(string); ok && value != "" {
			vars[token] = value
		}
	}

	for token, value := range overrides {
		vars[token] = value
	}

	return vars
}

func (e *Engine) publishTerminal(ctx context.Context, run *models.WorkflowRun, reason string) {
	if e.bus == nil {
		return
	}

	base := events.BaseEvent{
		ID:        uuid.New().String(),
		Timestamp: e.now().UTC(),
	}

	var event eventbus.Event

	if run.Status == models.RunStatusFailed {
		base.Type = events.RunFailedEvent
		event = events.RunFailed{
			BaseEvent:  base,
			RunID:      run.ID,
			WorkflowID: run.WorkflowID,
			Error:      reason,
		}
	} else {
		base.Type = events.RunCompletedEvent
		event = events.RunCompleted{
			BaseEvent:  base,
			RunID:      run.ID,
			WorkflowID: run.WorkflowID,
			Duration:   e.now().Sub(run.CreatedAt),
		}
	}

	if err := e.bus.Publish(ctx, events.RunTopic, run.ID, event); err != nil {
		e.logger.ErrorContext(ctx, "Failed to publish run event",
			"run_id", run.ID, "error", err)
	}
}
