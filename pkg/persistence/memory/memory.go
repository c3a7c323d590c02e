// Package memory provides an in-memory persistence implementation used in
// tests and local development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/letterflow/letterflow/pkg/models"
	"github.com/letterflow/letterflow/pkg/persistence"
)

// Persistence implements the persistence.Persistence interface in memory.
// All reads and writes go through deep copies, so callers never share state
// with the store.
type Persistence struct {
	store *store
}

func NewPersistence() *Persistence {
	return &Persistence{store: newStore()}
}

func (p *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return &WorkflowRepository{store: p.store}
}

func (p *Persistence) RunRepository() persistence.RunRepository {
	return &RunRepository{store: p.store}
}

func (p *Persistence) HealthCheck(_ context.Context) error {
	return nil
}

func (p *Persistence) Close(_ context.Context) error {
	return nil
}

// WorkflowRepository implements persistence.WorkflowRepository in memory.
type WorkflowRepository struct {
	store *store
}

func (r *WorkflowRepository) List(_ context.Context, opts persistence.ListWorkflowsOptions) (*persistence.ListWorkflowsResult, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	matched := make([]*models.Workflow, 0)

	for _, workflow := range r.store.workflows {
		if workflow.DeletedAt != nil {
			continue
		}

		if opts.PublicationID != "" && workflow.PublicationID != opts.PublicationID {
			continue
		}

		if opts.Status != nil && workflow.Status != *opts.Status {
			continue
		}

		matched = append(matched, workflow)
	}

	sortWorkflows(matched, opts.SortBy, opts.SortOrder)

	total := int64(len(matched))

	offset := max(opts.Offset, 0)
	if offset > len(matched) {
		offset = len(matched)
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	end := min(offset+limit, len(matched))

	page := make([]*models.Workflow, 0, end-offset)

	for _, workflow := range matched[offset:end] {
		clone, err := cloneWorkflow(workflow)
		if err != nil {
			return nil, err
		}

		if !opts.IncludeDefinition {
			clone.Definition = nil
		}

		page = append(page, clone)
	}

	return &persistence.ListWorkflowsResult{
		Workflows:   page,
		TotalCount:  total,
		HasNextPage: int64(end) < total,
	}, nil
}

func (r *WorkflowRepository) GetByID(_ context.Context, id string) (*models.Workflow, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	workflow, ok := r.store.workflows[id]
	if !ok || workflow.DeletedAt != nil {
		return nil, persistence.ErrWorkflowNotFound
	}

	return cloneWorkflow(workflow)
}

func (r *WorkflowRepository) Save(_ context.Context, workflow *models.Workflow) error {
	now := time.Now().UTC()

	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	if workflow.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate workflow ID: %w", err)
		}

		workflow.ID = id.String()
	}

	clone, err := cloneWorkflow(workflow)
	if err != nil {
		return err
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if existing, ok := r.store.workflows[workflow.ID]; ok && clone.Definition == nil {
		clone.Definition = existing.Definition
	}

	r.store.workflows[workflow.ID] = clone

	return nil
}

func (r *WorkflowRepository) ReplaceDefinition(_ context.Context, workflowID string, def *models.Definition) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	workflow, ok := r.store.workflows[workflowID]
	if !ok || workflow.DeletedAt != nil {
		return persistence.ErrWorkflowNotFound
	}

	clone, err := cloneDefinition(def)
	if err != nil {
		return err
	}

	workflow.Definition = clone
	workflow.UpdatedAt = time.Now().UTC()

	return nil
}

func (r *WorkflowRepository) UpdateStatus(_ context.Context, id string, status models.WorkflowStatus, isActive bool) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	workflow, ok := r.store.workflows[id]
	if !ok || workflow.DeletedAt != nil {
		return persistence.ErrWorkflowNotFound
	}

	workflow.Status = status
	workflow.IsActive = isActive
	workflow.UpdatedAt = time.Now().UTC()

	return nil
}

func (r *WorkflowRepository) Delete(_ context.Context, id string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	workflow, ok := r.store.workflows[id]
	if !ok || workflow.DeletedAt != nil {
		return persistence.ErrWorkflowNotFound
	}

	now := time.Now().UTC()
	workflow.DeletedAt = &now
	workflow.IsActive = false
	workflow.UpdatedAt = now

	return nil
}

func (r *WorkflowRepository) ActiveByTrigger(_ context.Context, publicationID string, kind models.TriggerKind) ([]*models.Workflow, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	matched := make([]*models.Workflow, 0)

	for _, workflow := range r.store.workflows {
		if workflow.DeletedAt != nil || !workflow.IsActive {
			continue
		}

		if workflow.Status != models.WorkflowStatusActive {
			continue
		}

		if workflow.PublicationID != publicationID || workflow.Trigger != kind {
			continue
		}

		clone, err := cloneWorkflow(workflow)
		if err != nil {
			return nil, err
		}

		matched = append(matched, clone)
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})

	return matched, nil
}

func (r *WorkflowRepository) DueCustomDate(_ context.Context, now time.Time) ([]*models.Workflow, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	matched := make([]*models.Workflow, 0)

	for _, workflow := range r.store.workflows {
		if workflow.DeletedAt != nil || !workflow.IsActive {
			continue
		}

		if workflow.Status != models.WorkflowStatusActive || workflow.FiredAt != nil {
			continue
		}

		if !workflow.CustomDateDue(now) {
			continue
		}

		clone, err := cloneWorkflow(workflow)
		if err != nil {
			return nil, err
		}

		matched = append(matched, clone)
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})

	return matched, nil
}

func (r *WorkflowRepository) MarkFired(_ context.Context, id string, at time.Time) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	workflow, ok := r.store.workflows[id]
	if !ok || workflow.DeletedAt != nil {
		return false, persistence.ErrWorkflowNotFound
	}

	if workflow.FiredAt != nil {
		return false, nil
	}

	firedAt := at.UTC()
	workflow.FiredAt = &firedAt
	workflow.UpdatedAt = firedAt

	return true, nil
}

// RunRepository implements persistence.RunRepository in memory.
type RunRepository struct {
	store *store
}

func (r *RunRepository) Create(_ context.Context, run *models.WorkflowRun) error {
	now := time.Now().UTC()

	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}

	run.UpdatedAt = now

	clone, err := cloneRun(run)
	if err != nil {
		return err
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	r.store.runs[run.ID] = clone

	return nil
}

func (r *RunRepository) GetByID(_ context.Context, id string) (*models.WorkflowRun, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	run, ok := r.store.runs[id]
	if !ok {
		return nil, persistence.ErrRunNotFound
	}

	return cloneRun(run)
}

func (r *RunRepository) ListByWorkflow(_ context.Context, workflowID string) ([]*models.WorkflowRun, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	matched := make([]*models.WorkflowRun, 0)

	for _, run := range r.store.runs {
		if run.WorkflowID != workflowID {
			continue
		}

		clone, err := cloneRun(run)
		if err != nil {
			return nil, err
		}

		matched = append(matched, clone)
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	return matched, nil
}

func (r *RunRepository) Stats(_ context.Context, workflowID string) (*models.RunStats, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	stats := &models.RunStats{WorkflowID: workflowID}

	for _, run := range r.store.runs {
		if run.WorkflowID != workflowID {
			continue
		}

		stats.Total++

		switch run.Status {
		case models.RunStatusRunning:
			stats.Running++
		case models.RunStatusWaiting:
			stats.Waiting++
		case models.RunStatusCompleted:
			stats.Completed++
		case models.RunStatusFailed:
			stats.Failed++
		}
	}

	return stats, nil
}

func (r *RunRepository) ClaimDue(_ context.Context, ownerID string, now time.Time, lease time.Duration, limit int) ([]*models.WorkflowRun, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	due := make([]*models.WorkflowRun, 0)

	for _, run := range r.store.runs {
		if run.Status.IsTerminal() || !run.Due(now) || run.Claimed(now) {
			continue
		}

		due = append(due, run)
	}

	sort.Slice(due, func(i, j int) bool {
		return due[i].UpdatedAt.Before(due[j].UpdatedAt)
	})

	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	expiresAt := now.Add(lease)
	claimed := make([]*models.WorkflowRun, 0, len(due))

	for _, run := range due {
		run.ClaimedBy = ownerID
		run.ClaimExpiresAt = &expiresAt
		run.UpdatedAt = now

		clone, err := cloneRun(run)
		if err != nil {
			return nil, err
		}

		claimed = append(claimed, clone)
	}

	return claimed, nil
}

func (r *RunRepository) Release(_ context.Context, runID, ownerID string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	run, ok := r.store.runs[runID]
	if !ok || run.ClaimedBy != ownerID {
		return nil
	}

	run.ClaimedBy = ""
	run.ClaimExpiresAt = nil
	run.UpdatedAt = time.Now().UTC()

	return nil
}

func (r *RunRepository) CommitStep(_ context.Context, run *models.WorkflowRun, expectedStep int) error {
	clone, err := cloneRun(run)
	if err != nil {
		return err
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	stored, ok := r.store.runs[run.ID]
	if !ok {
		return persistence.ErrRunNotFound
	}

	if stored.StepCount != expectedStep {
		return persistence.ErrStaleRun
	}

	if stored.ClaimedBy != "" && stored.ClaimedBy != run.ClaimedBy {
		return persistence.ErrClaimLost
	}

	clone.ClaimedBy = stored.ClaimedBy
	clone.ClaimExpiresAt = stored.ClaimExpiresAt
	r.store.runs[run.ID] = clone

	return nil
}

func (r *RunRepository) FailActiveByWorkflow(_ context.Context, workflowID, reason string) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	now := time.Now().UTC()

	var failed int64

	for _, run := range r.store.runs {
		if run.WorkflowID != workflowID || run.Status.IsTerminal() {
			continue
		}

		run.Status = models.RunStatusFailed
		run.LastError = reason
		run.ClaimedBy = ""
		run.ClaimExpiresAt = nil
		run.StepCount++
		run.UpdatedAt = now
		run.FinishedAt = &now
		failed++
	}

	return failed, nil
}

func sortWorkflows(workflows []*models.Workflow, sortBy, sortOrder string) {
	ascending := strings.EqualFold(sortOrder, "asc")

	sort.Slice(workflows, func(i, j int) bool {
		var less bool

		switch sortBy {
		case "name":
			less = workflows[i].Name < workflows[j].Name
		case "status":
			less = workflows[i].Status < workflows[j].Status
		case "updated_at":
			less = workflows[i].UpdatedAt.Before(workflows[j].UpdatedAt)
		default:
			less = workflows[i].CreatedAt.Before(workflows[j].CreatedAt)
		}

		if ascending {
			return less
		}

		return !less
	})
}
